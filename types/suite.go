package types

// Suite is an ordered grouping of states that share a page URL.
type Suite struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	States []*State `yaml:"states"`
}

// StatesCount returns the number of states the suite owns.
func (s *Suite) StatesCount() int {
	return len(s.States)
}

// SuiteCollection exposes the full set of suites to execute. The run
// orchestrator only ever reads AllSuites; it does not interpret hierarchy.
type SuiteCollection interface {
	AllSuites() []*Suite
}

// Collection is the concrete SuiteCollection produced by the manifest loader.
type Collection struct {
	suites []*Suite
}

// NewCollection creates a Collection over the given suites, in order.
func NewCollection(suites []*Suite) *Collection {
	return &Collection{suites: suites}
}

// AllSuites returns the suites in manifest order.
func (c *Collection) AllSuites() []*Suite {
	return c.suites
}

// TotalStates returns the sum of per-suite state counts.
func (c *Collection) TotalStates() int {
	total := 0
	for _, s := range c.suites {
		total += s.StatesCount()
	}
	return total
}
