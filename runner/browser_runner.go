package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/krzysztoffpl/gemini/browser"
	"github.com/krzysztoffpl/gemini/events"
	"github.com/krzysztoffpl/gemini/metrics"
	"github.com/krzysztoffpl/gemini/pool"
	"github.com/krzysztoffpl/gemini/types"
)

type browserRunnerConfig struct {
	Log        log.Logger
	BrowserID  string
	Pool       *pool.BrowserPool
	Project    string
	RunID      string
	RetryLimit int

	// Emit is the orchestrator's passthrough sink. Every suite/state
	// transition, retry, skip and result goes through it.
	Emit events.Handler
}

// browserRunner drives one browser's walk of the full suite tree. One
// instance exists per configured browser per run; instances are never
// reused across browsers or runs.
type browserRunner struct {
	log        log.Logger
	browserID  string
	pool       *pool.BrowserPool
	project    string
	runID      string
	retryLimit int
	emit       events.Handler

	cancelled atomic.Bool
	abortMu   sync.Mutex
	abortFn   context.CancelFunc
	done      chan struct{}
	doneOnce  sync.Once
}

func newBrowserRunner(cfg browserRunnerConfig) *browserRunner {
	return &browserRunner{
		log:        cfg.Log.New("component", "browser-runner", "browser", cfg.BrowserID),
		browserID:  cfg.BrowserID,
		pool:       cfg.Pool,
		project:    cfg.Project,
		runID:      cfg.RunID,
		retryLimit: cfg.RetryLimit,
		emit:       cfg.Emit,
		done:       make(chan struct{}),
	}
}

// run executes every suite in order against sessions acquired from the
// pool. It settles only once the whole tree has executed or an
// unrecoverable failure occurred; recoverable per-state failures surface
// as ERROR events without failing the browser.
func (b *browserRunner) run(ctx context.Context, suites types.SuiteCollection, proc StateProcessor) error {
	defer b.doneOnce.Do(func() { close(b.done) })

	runCtx, abort := context.WithCancel(ctx)
	defer abort()
	b.abortMu.Lock()
	b.abortFn = abort
	b.abortMu.Unlock()

	if b.cancelled.Load() {
		return nil
	}
	b.log.Debug("Browser execution starting", "suites", len(suites.AllSuites()))

	for _, suite := range suites.AllSuites() {
		if b.cancelled.Load() {
			return nil
		}
		b.emit(ctx, events.Event{Kind: events.KindBeginSuite, Payload: events.SuitePayload{
			Suite:     suite,
			BrowserID: b.browserID,
		}})
		if err := b.runSuite(ctx, runCtx, suite, proc); err != nil {
			if b.cancelled.Load() {
				// Failures provoked by shutdown do not fail the browser.
				return nil
			}
			return err
		}
	}
	return nil
}

// runSuite retries a suite whose session was lost mid-flight, up to the
// retry limit.
func (b *browserRunner) runSuite(ctx, runCtx context.Context, suite *types.Suite, proc StateProcessor) error {
	for attempt := 0; ; attempt++ {
		err := b.trySuite(ctx, runCtx, suite, proc)
		if err == nil || !errors.Is(err, browser.ErrSessionLost) {
			return err
		}
		if b.cancelled.Load() || attempt >= b.retryLimit {
			return err
		}
		b.log.Warn("Session lost, retrying suite", "suite", suite.Name, "attempt", attempt+1)
		b.emit(ctx, events.Event{Kind: events.KindRetry, Payload: events.RetryPayload{
			Suite:     suite,
			BrowserID: b.browserID,
			Attempt:   attempt + 1,
			Err:       err,
		}})
	}
}

func (b *browserRunner) trySuite(ctx, runCtx context.Context, suite *types.Suite, proc StateProcessor) (retErr error) {
	sess, err := b.pool.Acquire(runCtx, b.browserID)
	if err != nil {
		if errors.Is(err, pool.ErrPoolClosed) && b.cancelled.Load() {
			return nil
		}
		return err
	}
	defer func() {
		// A dead session must not go back to the idle set; discarding
		// frees the slot so the retry launches a replacement.
		if errors.Is(retErr, browser.ErrSessionLost) {
			b.pool.Discard(ctx, sess)
		} else {
			b.pool.Release(sess)
		}
	}()

	for _, state := range suite.States {
		if b.cancelled.Load() {
			return nil
		}
		if state.ShouldSkip(b.browserID) {
			b.emit(ctx, events.Event{Kind: events.KindSkipState, Payload: events.StatePayload{
				Suite:     suite,
				State:     state,
				BrowserID: b.browserID,
				Reason:    "state disabled for browser",
			}})
			metrics.RecordStateResult(b.project, b.runID, b.browserID, types.TestStatusSkip)
			continue
		}
		if err := b.runState(ctx, runCtx, sess, suite, state, proc); err != nil {
			return err
		}
	}
	return nil
}

func (b *browserRunner) runState(ctx, runCtx context.Context, sess browser.Session, suite *types.Suite, state *types.State, proc StateProcessor) error {
	statePayload := events.StatePayload{Suite: suite, State: state, BrowserID: b.browserID}
	b.emit(ctx, events.Event{Kind: events.KindBeginState, Payload: statePayload})

	start := time.Now()
	out, err := proc.ProcessState(runCtx, sess, suite, state)
	result := events.ResultPayload{
		Suite:          suite,
		State:          state,
		BrowserID:      b.browserID,
		SessionID:      sess.ID(),
		DurationMillis: time.Since(start).Milliseconds(),
	}

	switch {
	case err == nil && out.Updated:
		result.ReferencePath = out.ReferencePath
		result.Coverage = out.Coverage
		b.emit(ctx, events.Event{Kind: events.KindUpdateResult, Payload: result})
		metrics.RecordStateResult(b.project, b.runID, b.browserID, types.TestStatusUpdated)

	case err == nil:
		result.Equal = out.Equal
		result.ReferencePath = out.ReferencePath
		result.CurrentPath = out.CurrentPath
		result.Coverage = out.Coverage
		b.emit(ctx, events.Event{Kind: events.KindTestResult, Payload: result})
		if out.Equal {
			metrics.RecordStateResult(b.project, b.runID, b.browserID, types.TestStatusPass)
		} else {
			metrics.RecordStateResult(b.project, b.runID, b.browserID, types.TestStatusFail)
		}

	case errors.Is(err, browser.ErrSessionLost):
		// The suite owns retry handling for a dead session.
		b.emit(ctx, events.Event{Kind: events.KindEndState, Payload: statePayload})
		return err

	case b.cancelled.Load():
		// Shutdown aborted this state; close the bracket so observers
		// never see a state left open.
		b.emit(ctx, events.Event{Kind: events.KindEndState, Payload: statePayload})
		return nil

	case IsFatal(err):
		result.Err = err
		b.emit(ctx, events.Event{Kind: events.KindError, Payload: result})
		b.emit(ctx, events.Event{Kind: events.KindEndState, Payload: statePayload})
		metrics.RecordStateResult(b.project, b.runID, b.browserID, types.TestStatusError)
		return err

	default:
		// Recoverable: reported, counted, execution continues.
		result.Err = err
		b.log.Warn("State processing failed", "suite", suite.Name, "state", state.Name, "error", err)
		b.emit(ctx, events.Event{Kind: events.KindError, Payload: result})
		metrics.RecordStateResult(b.project, b.runID, b.browserID, types.TestStatusError)
	}

	b.emit(ctx, events.Event{Kind: events.KindEndState, Payload: statePayload})
	return nil
}

// cancel stops scheduling further states, aborts in-flight processing and
// returns once the runner has settled and its session is back in the pool.
func (b *browserRunner) cancel(ctx context.Context) {
	b.cancelled.Store(true)

	b.abortMu.Lock()
	started := b.abortFn != nil
	if started {
		b.abortFn()
	}
	b.abortMu.Unlock()

	if !started {
		// run has not begun; it will observe the flag immediately.
		b.doneOnce.Do(func() { close(b.done) })
		return
	}

	select {
	case <-b.done:
	case <-ctx.Done():
		b.log.Warn("Gave up waiting for browser runner shutdown")
	}
}
