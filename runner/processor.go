package runner

import (
	"context"
	"errors"

	"github.com/krzysztoffpl/gemini/browser"
	"github.com/krzysztoffpl/gemini/coverage"
	"github.com/krzysztoffpl/gemini/types"
)

// StateProcessor captures and judges individual states. Prepare runs
// exactly once per run, before any browser starts; ProcessState may be
// called concurrently for different browsers.
type StateProcessor interface {
	Prepare(ctx context.Context) error
	ProcessState(ctx context.Context, sess browser.Session, suite *types.Suite, state *types.State) (StateOutcome, error)
}

// StateOutcome describes what happened to one processed state.
type StateOutcome struct {
	// Updated marks a reference update rather than a comparison.
	Updated bool

	// Equal reports whether the captured state matched its reference.
	// Ignored when Updated is set.
	Equal bool

	ReferencePath string
	CurrentPath   string

	// Coverage carries per-browser coverage data collected while
	// processing the state, if instrumentation produced any.
	Coverage coverage.Data
}

// FatalError marks a processing failure that must fail the whole browser
// run instead of being reported as a recoverable ERROR event.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

// Unwrap implements the errors.Unwrap interface
func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps err so the per-browser runner escalates it.
func NewFatalError(err error) *FatalError {
	return &FatalError{Err: err}
}

// IsFatal checks whether err is or wraps a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return err != nil && errors.As(err, &fatal)
}
