package gemini

import (
	"github.com/krzysztoffpl/gemini/types"
)

// getResultString returns a short string representing the run result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}
