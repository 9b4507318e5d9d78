// Package browser defines the remote browser session collaborators the run
// orchestrator depends on. The wire protocol itself is external; this
// package specifies the Session and Launcher contracts and ships a W3C
// WebDriver grid implementation of both.
package browser

import "context"

// Session is an opaque handle to one remote browser, obtained from the
// pool and owned exclusively by the holding per-browser runner until it is
// released or forcibly reclaimed by pool cancellation.
type Session interface {
	// ID uniquely identifies the session within the run.
	ID() string

	// BrowserID names the configured browser this session belongs to.
	BrowserID() string

	// Navigate points the session at url.
	Navigate(ctx context.Context, url string) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close tears the remote session down. Closing twice is safe.
	Close(ctx context.Context) error
}

// Launcher creates sessions for a browser identifier. Implementations must
// be safe for concurrent use; the pool calls Launch from multiple
// per-browser runners at once.
type Launcher interface {
	Launch(ctx context.Context, browserID string) (Session, error)
}
