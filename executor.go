package gemini

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/krzysztoffpl/gemini/browser"
	"github.com/krzysztoffpl/gemini/capture"
	"github.com/krzysztoffpl/gemini/coverage"
	"github.com/krzysztoffpl/gemini/events"
	"github.com/krzysztoffpl/gemini/logging"
	"github.com/krzysztoffpl/gemini/manifest"
	"github.com/krzysztoffpl/gemini/pool"
	"github.com/krzysztoffpl/gemini/runner"
	"github.com/krzysztoffpl/gemini/types"
)

// Failure is one failed or errored state kept for console reporting.
type Failure struct {
	Suite     string
	State     string
	BrowserID string
	Message   string
}

// RunResult captures the outcome of a single run.
type RunResult struct {
	RunID    string
	Summary  types.RunSummary
	Duration time.Duration
	LogDir   string
	Failures []Failure
}

// Status collapses the run into a single status.
func (r *RunResult) Status() types.TestStatus {
	return r.Summary.Status()
}

// String returns a one-line description of the run outcome.
func (r *RunResult) String() string {
	return fmt.Sprintf("Run %s: %s (total=%d passed=%d failed=%d updated=%d errored=%d skipped=%d retries=%d, %.1fs)",
		r.RunID, r.Summary.Status(),
		r.Summary.Total, r.Summary.Passed, r.Summary.Failed, r.Summary.Updated,
		r.Summary.Errored, r.Summary.Skipped, r.Summary.Retries, r.Duration.Seconds())
}

// RunExecutor is responsible for executing test runs.
type RunExecutor interface {
	RunTests(ctx context.Context) (*RunResult, error)
}

// DefaultRunExecutor implements the RunExecutor interface. Each call to
// RunTests composes a fresh pool, runner and run logger, so that a
// cancelled pool from a previous run never leaks into the next one.
type DefaultRunExecutor struct {
	config   *Config
	manifest *manifest.Manifest
	launcher browser.Launcher
	tracer   trace.Tracer
	logger   log.Logger
}

// NewDefaultRunExecutor creates a new DefaultRunExecutor.
func NewDefaultRunExecutor(config *Config, m *manifest.Manifest, launcher browser.Launcher, logger log.Logger) (*DefaultRunExecutor, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if m == nil {
		return nil, errors.New("manifest is required")
	}
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	return &DefaultRunExecutor{
		config:   config,
		manifest: m,
		launcher: launcher,
		tracer:   otel.Tracer("gemini"),
		logger:   logger,
	}, nil
}

// RunTests executes a full run across every selected browser and returns
// the aggregated result.
func (e *DefaultRunExecutor) RunTests(ctx context.Context) (*RunResult, error) {
	browserIDs, err := e.selectBrowsers()
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	runDir := filepath.Join(e.config.OutputDir, runID)
	start := time.Now()
	e.logger.Info("Starting test run", "run_id", runID, "browsers", browserIDs)

	runLogger, err := logging.NewRunLogger(e.config.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to create run logger: %w", err)
	}

	sessionPool, err := pool.New(pool.Config{
		Log:          e.logger,
		Launcher:     e.launcher,
		Limits:       e.manifest.SessionLimits(),
		DefaultLimit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser pool: %w", err)
	}

	rootURL := e.config.RootURL
	if rootURL == "" {
		rootURL = e.manifest.RootURL()
	}
	processor, err := capture.New(capture.Config{
		Log:           e.logger,
		RootURL:       rootURL,
		ReferencesDir: e.config.ReferencesDir,
		CurrentDir:    runDir,
		UpdateRefs:    e.config.UpdateRefs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create capture processor: %w", err)
	}

	var cov *coverage.Aggregator
	if e.manifest.CoverageEnabled() || e.config.Coverage {
		cov = coverage.New(coverage.Config{
			Log:       e.logger,
			OutputDir: runDir,
		})
	}

	testRunner, err := runner.New(runner.Config{
		Log:        e.logger,
		BrowserIDs: browserIDs,
		Pool:       sessionPool,
		Processor:  processor,
		Coverage:   cov,
		Tracer:     e.tracer,
		RetryLimit: e.config.Retries,
		Project:    e.manifest.Project(),
		RunID:      runID,
		AppConfig:  e.config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	var failures []Failure
	var failuresMu sync.Mutex
	collect := func(_ context.Context, ev events.Event) {
		p, ok := ev.Payload.(events.ResultPayload)
		if !ok {
			return
		}
		if ev.Kind == events.KindTestResult && p.Equal {
			return
		}
		f := Failure{BrowserID: p.BrowserID}
		if p.Suite != nil {
			f.Suite = p.Suite.Name
		}
		if p.State != nil {
			f.State = p.State.Name
		}
		if p.Err != nil {
			f.Message = p.Err.Error()
		}
		failuresMu.Lock()
		failures = append(failures, f)
		failuresMu.Unlock()
	}
	testRunner.Bus().Subscribe(events.KindError, collect)
	testRunner.Bus().Subscribe(events.KindTestResult, collect)

	runLogger.AttachRunner(testRunner.Bus())
	if e.config.ShowProgress {
		tracker := runner.NewProgressTracker(e.logger, e.config.ProgressInterval)
		tracker.AttachRunner(testRunner.Bus())
		defer tracker.Stop()
	}

	summary, runErr := testRunner.Run(ctx, e.manifest.Suites())

	// Reclaim any session left over from the run before reporting.
	if err := sessionPool.Cancel(ctx); err != nil {
		e.logger.Warn("Error closing browser pool", "run_id", runID, "error", err)
	}
	if err := runLogger.Complete(); err != nil {
		e.logger.Warn("Error finalizing run logs", "run_id", runID, "error", err)
	}

	if runErr != nil {
		e.logger.Error("Error running tests", "run_id", runID, "error", runErr)
		return nil, runErr
	}

	result := &RunResult{
		RunID:    runID,
		Summary:  summary,
		Duration: time.Since(start),
		LogDir:   runLogger.LogDir(),
		Failures: failures,
	}
	e.logger.Info("Test run completed", "run_id", runID, "status", result.Status())
	return result, nil
}

// selectBrowsers resolves the browsers for this run. An explicit browser
// filter keeps the manifest's configuration order, never the filter's.
func (e *DefaultRunExecutor) selectBrowsers() ([]string, error) {
	all := e.manifest.BrowserIDs()
	if len(e.config.Browsers) == 0 {
		return all, nil
	}
	var selected []string
	for _, id := range all {
		if slices.Contains(e.config.Browsers, id) {
			selected = append(selected, id)
		}
	}
	for _, id := range e.config.Browsers {
		if !slices.Contains(all, id) {
			return nil, fmt.Errorf("browser %q is not declared in the manifest", id)
		}
	}
	if len(selected) == 0 {
		return nil, errors.New("browser filter matched no configured browsers")
	}
	return selected, nil
}
