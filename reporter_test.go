package gemini

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/krzysztoffpl/gemini/types"
)

func TestDefaultMetricsReporter_ReportResults(t *testing.T) {
	reporter := NewDefaultMetricsReporter()

	result := &RunResult{
		RunID: "run-1",
		Summary: types.RunSummary{
			Total: 3, Passed: 2, Failed: 1,
			PerBrowser: map[string]types.BrowserSummary{"chrome": {Passed: 2, Failed: 1}},
		},
		Duration: 2 * time.Second,
	}

	require.NotPanics(t, func() {
		reporter.ReportResults("storefront", result)
	})
}
