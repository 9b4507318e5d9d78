package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/krzysztoffpl/gemini/browser"
	"github.com/krzysztoffpl/gemini/exitcodes"
	"github.com/krzysztoffpl/gemini/manifest"
	"github.com/krzysztoffpl/gemini/types"
)

// defaultGridTimeout bounds each WebDriver call to the grid.
const defaultGridTimeout = 90 * time.Second

// gemini runs visual regression suites against a browser grid.
type gemini struct {
	ctx      context.Context
	config   *Config
	version  string
	manifest *manifest.Manifest

	scheduler RunScheduler
	executor  RunExecutor
	formatter ResultFormatter
	reporter  MetricsReporter
	result    *RunResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*gemini, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating gemini with config",
		"manifest", config.ManifestFile,
		"gridURL", config.GridURL,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"updateRefs", config.UpdateRefs)

	m, err := manifest.New(manifest.Config{
		Log:          config.Log,
		ManifestFile: config.ManifestFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	launcher, err := browser.NewGridLauncher(browser.GridConfig{
		Log:          config.Log,
		URL:          config.GridURL,
		Capabilities: m.Capabilities(),
		Timeout:      defaultGridTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create grid launcher: %w", err)
	}

	executor, err := NewDefaultRunExecutor(config, m, launcher, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create run executor: %w", err)
	}

	g := &gemini{
		ctx:              ctx,
		config:           config,
		version:          version,
		manifest:         m,
		scheduler:        NewDefaultRunScheduler(config.RunInterval, config.RunOnce, config.Log),
		executor:         executor,
		formatter:        NewConsoleResultFormatter(config.Log),
		reporter:         NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}
	g.scheduler.RegisterCallback(g.runTests)
	config.Log.Info("gemini.New: created manifest, launcher and executor", "project", m.Project())
	return g, nil
}

// Start runs the suites once, or periodically at the configured interval.
func (g *gemini) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			g.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	g.ctx = ctx
	g.running.Store(true)

	if g.config.RunOnce {
		g.config.Log.Info("Starting gemini in run-once mode")
	} else {
		g.config.Log.Info("Starting gemini in continuous mode", "interval", g.config.RunInterval)
	}

	if err := g.scheduler.Start(ctx); err != nil {
		g.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}

	// If in run-once mode, trigger shutdown and return
	if g.config.RunOnce {
		g.config.Log.Info("Run completed, exiting (run-once mode)")

		// Check if any states failed and return appropriate exit code
		if g.result != nil && g.result.Status() == types.TestStatusFail {
			g.config.Log.Warn("Run-once completed with failures, returning exit code 1")
			return NewTestFailureError(g.result.String())
		}

		// Only need to call this when we're in run-once mode and all states passed
		go func() {
			g.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	g.config.Log.Debug("gemini started successfully")
	return nil
}

// runTests runs all suites and processes the results
func (g *gemini) runTests() error {
	result, err := g.executor.RunTests(g.ctx)
	if err != nil {
		// This is a runtime error (not a comparison failure)
		return NewRuntimeError(err)
	}
	g.result = result

	if err := g.formatter.FormatResults(result); err != nil {
		g.config.Log.Error("Error formatting results", "error", err)
	}
	g.reporter.ReportResults(g.manifest.Project(), result)
	return nil
}

// Stop stops the gemini service.
func (g *gemini) Stop(ctx context.Context) error {
	g.config.Log.Info("Stopping gemini")

	// Check if we're already stopped
	if !g.running.Load() {
		g.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new runs
	g.running.Store(false)

	if err := g.scheduler.Stop(); err != nil {
		g.config.Log.Error("Error stopping scheduler", "error", err)
	}
	if err := g.scheduler.WaitForShutdown(ctx); err != nil {
		g.config.Log.Warn("Shutdown wait interrupted", "error", err)
	}

	g.config.Log.Info("gemini stopped successfully")
	return nil
}

// Stopped returns true if the gemini service is stopped.
func (g *gemini) Stopped() bool {
	return !g.running.Load()
}
