package types

import "slices"

// State is a single visual check point within a suite: one named snapshot
// of the page that is captured and compared against its reference.
type State struct {
	Name         string   `yaml:"name"`
	SkipBrowsers []string `yaml:"skipBrowsers,omitempty"`
	OnlyBrowsers []string `yaml:"onlyBrowsers,omitempty"`
}

// ShouldSkip reports whether the state is excluded from the given browser.
// OnlyBrowsers, when set, wins over SkipBrowsers.
func (s *State) ShouldSkip(browserID string) bool {
	if len(s.OnlyBrowsers) > 0 {
		return !slices.Contains(s.OnlyBrowsers, browserID)
	}
	return slices.Contains(s.SkipBrowsers, browserID)
}
