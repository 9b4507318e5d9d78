package runner

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/krzysztoffpl/gemini/coverage"
	"github.com/krzysztoffpl/gemini/events"
	"github.com/krzysztoffpl/gemini/metrics"
	"github.com/krzysztoffpl/gemini/pool"
	"github.com/krzysztoffpl/gemini/stats"
	"github.com/krzysztoffpl/gemini/types"
)

// Config holds configuration for creating a Runner.
type Config struct {
	Log log.Logger

	// BrowserIDs is the ordered list of target browsers. Order matters:
	// when several browsers fail, the earliest-configured browser's
	// failure represents the run.
	BrowserIDs []string

	Pool      *pool.BrowserPool
	Processor StateProcessor

	// Coverage, when non-nil, records result coverage payloads and is
	// finalized at the end of the run. Nil disables coverage entirely.
	Coverage *coverage.Aggregator

	// Tracer, when non-nil, opens a span per run and per browser.
	Tracer trace.Tracer

	// RetryLimit caps per-suite retries after a lost session.
	RetryLimit int

	Project string
	RunID   string

	// AppConfig is carried verbatim on the Begin event for subscribers.
	AppConfig any
}

// Runner is the run orchestrator. It owns the event bus, fans out one
// browserRunner per configured browser against the shared pool, aggregates
// their outcomes under the earliest-configured failure rule and emits the
// fixed run lifecycle.
type Runner struct {
	log   log.Logger
	cfg   Config
	bus   *events.Bus
	stats *stats.Aggregator

	mu        sync.Mutex
	cancelled bool
	runners   []*browserRunner
}

// New creates a Runner. The statistics aggregator is attached to the bus
// immediately so that events emitted directly on the runner before Run are
// counted too.
func New(cfg Config) (*Runner, error) {
	if cfg.Pool == nil {
		return nil, errors.New("pool is required")
	}
	if cfg.Processor == nil {
		return nil, errors.New("state processor is required")
	}
	if len(cfg.BrowserIDs) == 0 {
		return nil, errors.New("at least one browser is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.RetryLimit < 0 {
		return nil, errors.New("retry limit cannot be negative")
	}

	r := &Runner{
		log:   cfg.Log.New("component", "runner", "run_id", cfg.RunID),
		cfg:   cfg,
		bus:   events.NewBus(cfg.Log),
		stats: stats.New(),
	}
	r.stats.AttachRunner(r.bus)
	return r, nil
}

// Bus is the single subscription point for the run's event stream.
func (r *Runner) Bus() *events.Bus { return r.bus }

// RunID identifies this run.
func (r *Runner) RunID() string { return r.cfg.RunID }

// Emit publishes an event directly on the runner's stream. Such events are
// indistinguishable from passthrough events to subscribers; the statistics
// aggregator counts them identically.
func (r *Runner) Emit(ctx context.Context, ev events.Event) {
	r.bus.Emit(ctx, ev)
}

// Run executes the full suite collection across every configured browser
// and returns the statistics summary. When browsers fail, the returned
// error is the representative failure: the failure of the browser that
// appears earliest in configuration order, not the first to settle.
//
// The lifecycle events StartRunner, Begin, End and EndRunner are emitted
// exactly once, in that order, regardless of intermediate failures, and
// Run does not return before the EndRunner handlers have completed.
func (r *Runner) Run(ctx context.Context, suites types.SuiteCollection) (types.RunSummary, error) {
	start := time.Now()
	if r.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = r.cfg.Tracer.Start(ctx, "run")
		defer span.End()
	}
	r.log.Info("Starting run", "browsers", r.cfg.BrowserIDs, "coverage", r.cfg.Coverage != nil)

	r.bus.Emit(ctx, events.Event{Kind: events.KindStartRunner, Payload: events.RunnerIdentity{Runner: r}})

	// One-time global setup shared by all browsers. Must complete before
	// any browser starts.
	var runErr error
	if err := r.cfg.Processor.Prepare(ctx); err != nil {
		runErr = fmt.Errorf("prepare failed: %w", err)
		r.log.Error("Run preparation failed", "error", runErr)
		metrics.RecordErrorDetails("prepare", err)
	}

	totalStates := 0
	for _, s := range suites.AllSuites() {
		totalStates += s.StatesCount()
	}
	r.bus.Emit(ctx, events.Event{Kind: events.KindBegin, Payload: events.BeginPayload{
		Suites:      suites,
		TotalStates: totalStates,
		BrowserIDs:  slices.Clone(r.cfg.BrowserIDs),
		Config:      r.cfg.AppConfig,
	}})

	if runErr == nil {
		runErr = r.runBrowsers(ctx, suites)
	}

	// Coverage finalization runs whether or not browsers failed; its
	// failure replaces any per-browser failure as the run's outcome.
	if r.cfg.Coverage != nil {
		if err := r.cfg.Coverage.ProcessStats(ctx); err != nil {
			runErr = fmt.Errorf("coverage finalization failed: %w", err)
			r.log.Error("Coverage finalization failed", "error", err)
			metrics.RecordErrorDetails("coverage_finalize", err)
		}
	}

	summary := r.stats.GetResult()
	r.bus.Emit(ctx, events.Event{Kind: events.KindEnd, Payload: events.EndPayload{Summary: summary}})
	r.bus.Emit(ctx, events.Event{Kind: events.KindEndRunner, Payload: events.RunnerIdentity{Runner: r}})

	r.log.Info("Run finished", "duration", time.Since(start), "total", summary.Total, "failed", summary.Failed, "errored", summary.Errored)

	if r.isCancelled() {
		// Cancellation is a graceful shutdown, not a failure; failures
		// collected after it was requested do not represent the run.
		return summary, nil
	}
	return summary, runErr
}

func (r *Runner) runBrowsers(ctx context.Context, suites types.SuiteCollection) error {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		r.log.Info("Run cancelled before any browser started")
		return nil
	}
	runners := make([]*browserRunner, len(r.cfg.BrowserIDs))
	for i, id := range r.cfg.BrowserIDs {
		runners[i] = newBrowserRunner(browserRunnerConfig{
			Log:        r.cfg.Log,
			BrowserID:  id,
			Pool:       r.cfg.Pool,
			Project:    r.cfg.Project,
			RunID:      r.cfg.RunID,
			RetryLimit: r.cfg.RetryLimit,
			Emit:       r.passthrough,
		})
	}
	r.runners = runners
	r.mu.Unlock()

	errs := make([]error, len(runners))
	var wg sync.WaitGroup
	for i, br := range runners {
		wg.Add(1)
		go func(i int, br *browserRunner) {
			defer wg.Done()
			brCtx := ctx
			if r.cfg.Tracer != nil {
				var span trace.Span
				brCtx, span = r.cfg.Tracer.Start(ctx, "browser "+br.browserID)
				defer span.End()
			}
			errs[i] = br.run(brCtx, suites, r.cfg.Processor)
		}(i, br)
	}
	// Wait for every browser to settle; one failing browser never aborts
	// the others.
	wg.Wait()

	// Join in configuration order so the representative failure is
	// deterministic, independent of completion timing.
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("browser %s: %w", runners[i].browserID, err)
		}
	}
	return nil
}

// passthrough is the sink browser runners emit into. Result events first
// settle their coverage payload, then every event is re-emitted verbatim
// on the runner's own stream.
func (r *Runner) passthrough(ctx context.Context, ev events.Event) {
	if r.cfg.Coverage != nil && (ev.Kind == events.KindTestResult || ev.Kind == events.KindUpdateResult) {
		if p, ok := ev.Payload.(events.ResultPayload); ok {
			if err := r.cfg.Coverage.AddStatsForBrowser(ctx, p.Coverage, p.BrowserID); err != nil {
				r.log.Error("Failed to record coverage", "browser", p.BrowserID, "error", err)
				metrics.RecordErrorDetails("coverage_record", err)
			}
		}
	}
	r.bus.Emit(ctx, ev)
}

// Cancel requests cooperative shutdown. Called before Run has created any
// browser runner, it prevents browser execution from ever starting; called
// mid-run, it cancels every browser runner in creation order, waits for
// each, then cancels the pool. Safe to call concurrently and repeatedly.
func (r *Runner) Cancel(ctx context.Context) {
	r.mu.Lock()
	r.cancelled = true
	runners := slices.Clone(r.runners)
	r.mu.Unlock()

	for _, br := range runners {
		br.cancel(ctx)
	}
	if err := r.cfg.Pool.Cancel(ctx); err != nil {
		r.log.Warn("Error while cancelling browser pool", "error", err)
	}
}

func (r *Runner) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}
