package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_ShouldSkip(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		browserID string
		want      bool
	}{
		{
			name:      "no restrictions",
			state:     State{Name: "plain"},
			browserID: "chrome",
			want:      false,
		},
		{
			name:      "listed in skipBrowsers",
			state:     State{Name: "plain", SkipBrowsers: []string{"ie11"}},
			browserID: "ie11",
			want:      true,
		},
		{
			name:      "not listed in skipBrowsers",
			state:     State{Name: "plain", SkipBrowsers: []string{"ie11"}},
			browserID: "chrome",
			want:      false,
		},
		{
			name:      "listed in onlyBrowsers",
			state:     State{Name: "plain", OnlyBrowsers: []string{"chrome"}},
			browserID: "chrome",
			want:      false,
		},
		{
			name:      "not listed in onlyBrowsers",
			state:     State{Name: "plain", OnlyBrowsers: []string{"chrome"}},
			browserID: "firefox",
			want:      true,
		},
		{
			name:      "onlyBrowsers wins over skipBrowsers",
			state:     State{Name: "plain", OnlyBrowsers: []string{"chrome"}, SkipBrowsers: []string{"chrome"}},
			browserID: "chrome",
			want:      false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.state.ShouldSkip(tc.browserID))
		})
	}
}

func TestCollection_TotalStates(t *testing.T) {
	c := NewCollection([]*Suite{
		{Name: "a", States: []*State{{Name: "one"}, {Name: "two"}}},
		{Name: "b", States: []*State{{Name: "one"}}},
		{Name: "c"},
	})
	assert.Equal(t, 3, c.TotalStates())
	assert.Len(t, c.AllSuites(), 3)
}

func TestRunSummary_Status(t *testing.T) {
	assert.Equal(t, TestStatusPass, RunSummary{Total: 3, Passed: 3}.Status())
	assert.Equal(t, TestStatusFail, RunSummary{Total: 3, Passed: 2, Failed: 1}.Status())
	assert.Equal(t, TestStatusFail, RunSummary{Total: 3, Passed: 2, Errored: 1}.Status())
	assert.Equal(t, TestStatusSkip, RunSummary{Skipped: 2}.Status())
	assert.Equal(t, TestStatusPass, RunSummary{}.Status(), "an empty run with no skips counts as passing")
	assert.Equal(t, TestStatusPass, RunSummary{Total: 1, Updated: 1}.Status())
}
