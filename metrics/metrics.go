package metrics

import (
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/krzysztoffpl/gemini/types"
)

const (
	MetricsNamespace = "gemini"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	stateResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "state_results_total",
		Help:      "Count of state check results",
	}, []string{
		"project",
		"run_id",
		"browser",
		"result",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of visual regression runs",
	}, []string{
		"project",
		"run_id",
		"result",
	})

	runStatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_states_total",
		Help:      "Total number of states checked per run",
	}, []string{
		"project",
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of visual regression runs",
	}, []string{
		"project",
		"run_id",
	})

	sessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "sessions_active",
		Help:      "Browser sessions currently held out of the pool",
	}, []string{
		"browser",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

// RecordError increments the error counter for the given error class.
func RecordError(errorLabel string) {
	errorsTotal.WithLabelValues(errorLabel).Inc()
}

// RecordErrorDetails increments the error counter with the error appended
// to the label.
func RecordErrorDetails(errorLabel string, err error) {
	if err == nil {
		return
	}
	RecordError(errorLabel + "_" + errToLabel(err))
}

// RecordStateResult counts one state check result for a browser.
func RecordStateResult(project, runID, browserID string, status types.TestStatus) {
	stateResultsTotal.WithLabelValues(project, runID, browserID, status.String()).Inc()
	runStatesTotal.WithLabelValues(project, runID).Inc()
}

// RecordRun records the terminal result and duration of a whole run.
func RecordRun(project, runID string, summary types.RunSummary, duration time.Duration) {
	runResults.WithLabelValues(project, runID, summary.Status().String()).Set(1)
	runDuration.WithLabelValues(project, runID).Set(duration.Seconds())
}

// RecordSessionAcquired tracks a session being handed out of the pool.
func RecordSessionAcquired(browserID string) {
	sessionsActive.WithLabelValues(browserID).Inc()
}

// RecordSessionReleased tracks a session being returned or reclaimed.
func RecordSessionReleased(browserID string) {
	sessionsActive.WithLabelValues(browserID).Dec()
}
