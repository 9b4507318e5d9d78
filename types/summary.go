package types

// RunSummary tallies result-bearing events for a whole run.
// Total counts errored, tested and updated states; skips and retries are
// tracked alongside but do not contribute to Total.
type RunSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Updated int `json:"updated"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
	Retries int `json:"retries"`

	PerBrowser map[string]BrowserSummary `json:"perBrowser,omitempty"`
}

// BrowserSummary is the per-browser slice of a RunSummary.
type BrowserSummary struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Updated int `json:"updated"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
	Retries int `json:"retries"`
}

// Status collapses the summary into a single run status.
func (r RunSummary) Status() TestStatus {
	switch {
	case r.Failed > 0 || r.Errored > 0:
		return TestStatusFail
	case r.Total == 0 && r.Skipped > 0:
		return TestStatusSkip
	default:
		return TestStatusPass
	}
}
