// Package events defines the run event vocabulary and the bus the run
// orchestrator owns. Every notification a run produces, whether passed
// through from a per-browser runner or emitted directly on the
// orchestrator, flows through a single Bus.
package events

import (
	"github.com/krzysztoffpl/gemini/coverage"
	"github.com/krzysztoffpl/gemini/types"
)

// Kind tags a run event.
type Kind string

const (
	// Lifecycle events, emitted exactly once per run in this order
	// (with the passthrough kinds in between Begin and End).
	KindStartRunner Kind = "startRunner"
	KindBegin       Kind = "begin"
	KindEnd         Kind = "end"
	KindEndRunner   Kind = "endRunner"

	// Passthrough events, originating in per-browser runners.
	KindRetry        Kind = "retry"
	KindBeginSuite   Kind = "beginSuite"
	KindSkipState    Kind = "skipState"
	KindBeginState   Kind = "beginState"
	KindEndState     Kind = "endState"
	KindInfo         Kind = "info"
	KindError        Kind = "err"
	KindTestResult   Kind = "testResult"
	KindUpdateResult Kind = "updateResult"
)

// Event is a tagged payload flowing through the bus. Events are immutable
// once emitted; payloads must not be mutated by handlers.
type Event struct {
	Kind    Kind
	Payload any
}

// IsPassthrough reports whether the kind belongs to the per-browser
// passthrough set the orchestrator re-emits verbatim.
func (k Kind) IsPassthrough() bool {
	switch k {
	case KindRetry, KindBeginSuite, KindSkipState, KindBeginState,
		KindEndState, KindInfo, KindError, KindTestResult, KindUpdateResult:
		return true
	}
	return false
}

// IsResult reports whether the kind carries a state result that statistics
// and coverage aggregation care about.
func (k Kind) IsResult() bool {
	return k == KindError || k == KindTestResult || k == KindUpdateResult
}

// RunnerIdentity carries the orchestrator's own identity on the
// StartRunner and EndRunner events.
type RunnerIdentity struct {
	Runner any
}

// BeginPayload announces the start of browser execution.
type BeginPayload struct {
	Suites      types.SuiteCollection
	TotalStates int
	BrowserIDs  []string
	Config      any
}

// SuitePayload accompanies BeginSuite.
type SuitePayload struct {
	Suite     *types.Suite
	BrowserID string
}

// StatePayload accompanies BeginState, EndState and SkipState.
type StatePayload struct {
	Suite     *types.Suite
	State     *types.State
	BrowserID string
	Reason    string // SkipState only
}

// RetryPayload accompanies Retry.
type RetryPayload struct {
	Suite     *types.Suite
	BrowserID string
	Attempt   int
	Err       error
}

// InfoPayload is an opaque per-browser progress message.
type InfoPayload struct {
	BrowserID string
	Message   string
}

// ResultPayload accompanies TestResult, UpdateResult and Error. Coverage,
// when present, is recorded by the coverage aggregator keyed by BrowserID
// before the event is re-emitted on the orchestrator's bus.
type ResultPayload struct {
	Suite     *types.Suite
	State     *types.State
	BrowserID string

	Equal          bool // TestResult only
	ReferencePath  string
	CurrentPath    string
	Err            error // Error only
	Coverage       coverage.Data
	SessionID      string
	DurationMillis int64
}

// EndPayload carries the final statistics summary.
type EndPayload struct {
	Summary types.RunSummary
}
