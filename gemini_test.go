package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krzysztoffpl/gemini/types"
)

type stubExecutor struct {
	result *RunResult
	err    error
	calls  int
}

func (e *stubExecutor) RunTests(ctx context.Context) (*RunResult, error) {
	e.calls++
	return e.result, e.err
}

type stubFormatter struct {
	formatted []*RunResult
}

func (f *stubFormatter) FormatResults(result *RunResult) error {
	f.formatted = append(f.formatted, result)
	return nil
}

type stubReporter struct {
	reported []*RunResult
}

func (r *stubReporter) ReportResults(project string, result *RunResult) {
	r.reported = append(r.reported, result)
}

func newTestGemini(t *testing.T, executor RunExecutor, runOnce bool) (*gemini, *stubFormatter, *stubReporter) {
	t.Helper()
	cfg := &Config{
		Log:     log.New(),
		RunOnce: runOnce,
	}
	formatter := &stubFormatter{}
	reporter := &stubReporter{}
	g := &gemini{
		ctx:              context.Background(),
		config:           cfg,
		manifest:         loadTestManifest(t),
		scheduler:        NewDefaultRunScheduler(time.Hour, runOnce, cfg.Log),
		executor:         executor,
		formatter:        formatter,
		reporter:         reporter,
		shutdownCallback: func(error) {},
	}
	g.scheduler.RegisterCallback(g.runTests)
	return g, formatter, reporter
}

func passingResult() *RunResult {
	return &RunResult{
		RunID:    "run-1",
		Summary:  types.RunSummary{Total: 2, Passed: 2},
		Duration: time.Second,
	}
}

func failingResult() *RunResult {
	return &RunResult{
		RunID:    "run-2",
		Summary:  types.RunSummary{Total: 2, Passed: 1, Failed: 1},
		Duration: time.Second,
	}
}

func TestGemini_RunOnceSuccess(t *testing.T) {
	executor := &stubExecutor{result: passingResult()}
	g, formatter, reporter := newTestGemini(t, executor, true)

	err := g.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, executor.calls)
	require.Len(t, formatter.formatted, 1)
	require.Len(t, reporter.reported, 1)
	assert.Equal(t, "run-1", reporter.reported[0].RunID)
}

func TestGemini_RunOnceTestFailure(t *testing.T) {
	executor := &stubExecutor{result: failingResult()}
	g, _, _ := newTestGemini(t, executor, true)

	err := g.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err), "a failing run must map to the test-failure exit code")
}

func TestGemini_RunOnceRuntimeError(t *testing.T) {
	executor := &stubExecutor{err: errors.New("grid exploded")}
	g, formatter, _ := newTestGemini(t, executor, true)

	err := g.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.Empty(t, formatter.formatted, "failed runs have no result to format")
}

func TestGemini_StopIdempotent(t *testing.T) {
	executor := &stubExecutor{result: passingResult()}
	g, _, _ := newTestGemini(t, executor, true)

	require.NoError(t, g.Start(context.Background()))
	assert.False(t, g.Stopped())

	require.NoError(t, g.Stop(context.Background()))
	assert.True(t, g.Stopped())
	require.NoError(t, g.Stop(context.Background()), "stopping twice must be safe")
}

func TestGemini_New_Validation(t *testing.T) {
	_, err := New(context.Background(), nil, "v0", func(error) {})
	assert.Error(t, err)
}
