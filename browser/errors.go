package browser

import "errors"

var (
	// ErrSessionLost indicates the remote session died underneath us.
	// Per-browser runners treat it as retryable up to their retry limit.
	ErrSessionLost = errors.New("browser session lost")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("browser session closed")
)
