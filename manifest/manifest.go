// Package manifest loads the YAML suite manifest: the browsers to run
// against, their session limits, and the suite/state tree. It is the
// suite-loading collaborator consumed by the run orchestrator; the
// orchestrator itself never reads manifest files.
package manifest

import (
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/krzysztoffpl/gemini/types"
)

// BrowserConfig configures one target browser in manifest order.
type BrowserConfig struct {
	ID string `yaml:"id"`

	// Sessions caps concurrently held pool sessions for this browser.
	Sessions int `yaml:"sessions,omitempty"`

	// Capability overrides the browserName sent to the grid; defaults to ID.
	Capability string `yaml:"capability,omitempty"`
}

// CoverageConfig toggles coverage aggregation for the run.
type CoverageConfig struct {
	Enabled bool `yaml:"enabled"`
}

// fileManifest mirrors the on-disk YAML document.
type fileManifest struct {
	Project  string          `yaml:"project"`
	RootURL  string          `yaml:"rootUrl"`
	Browsers []BrowserConfig `yaml:"browsers"`
	Coverage CoverageConfig  `yaml:"coverage"`
	Suites   []*types.Suite  `yaml:"suites"`
}

// Manifest holds the loaded and validated suite manifest.
type Manifest struct {
	config Config

	mu       sync.RWMutex
	project  string
	rootURL  string
	browsers []BrowserConfig
	coverage CoverageConfig
	suites   *types.Collection
}

// Config contains manifest loader configuration.
type Config struct {
	Log          log.Logger
	ManifestFile string
}

// New loads and validates the manifest file.
func New(cfg Config) (*Manifest, error) {
	if cfg.ManifestFile == "" {
		return nil, fmt.Errorf("manifest file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}

	m := &Manifest{config: cfg}
	if err := m.load(cfg.ManifestFile); err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	cfg.Log.Debug("Manifest loaded",
		"project", m.project,
		"browsers", len(m.browsers),
		"suites", len(m.suites.AllSuites()),
		"totalStates", m.suites.TotalStates())
	return m, nil
}

func (m *Manifest) load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading manifest file: %w", err)
	}

	var doc fileManifest
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing manifest file: %w", err)
	}

	if err := validate(&doc); err != nil {
		return err
	}

	m.project = doc.Project
	m.rootURL = doc.RootURL
	m.browsers = doc.Browsers
	m.coverage = doc.Coverage
	m.suites = types.NewCollection(doc.Suites)
	return nil
}

func validate(doc *fileManifest) error {
	if doc.Project == "" {
		return fmt.Errorf("manifest is missing a project name")
	}
	if len(doc.Browsers) == 0 {
		return fmt.Errorf("manifest lists no browsers")
	}

	seenBrowsers := make(map[string]bool, len(doc.Browsers))
	for _, b := range doc.Browsers {
		if b.ID == "" {
			return fmt.Errorf("browser entry without an id")
		}
		if seenBrowsers[b.ID] {
			return fmt.Errorf("duplicate browser %q", b.ID)
		}
		seenBrowsers[b.ID] = true
		if b.Sessions < 0 {
			return fmt.Errorf("browser %q has a negative session limit", b.ID)
		}
	}

	seenSuites := make(map[string]bool, len(doc.Suites))
	for _, s := range doc.Suites {
		if s.Name == "" {
			return fmt.Errorf("suite without a name")
		}
		if seenSuites[s.Name] {
			return fmt.Errorf("duplicate suite %q", s.Name)
		}
		seenSuites[s.Name] = true

		seenStates := make(map[string]bool, len(s.States))
		for _, st := range s.States {
			if st.Name == "" {
				return fmt.Errorf("suite %q has a state without a name", s.Name)
			}
			if seenStates[st.Name] {
				return fmt.Errorf("suite %q has a duplicate state %q", s.Name, st.Name)
			}
			seenStates[st.Name] = true
		}
	}
	return nil
}

// Project returns the project name.
func (m *Manifest) Project() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.project
}

// RootURL returns the base URL suite URLs are resolved against.
func (m *Manifest) RootURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rootURL
}

// BrowserIDs returns the configured browser identifiers in manifest order.
func (m *Manifest) BrowserIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.browsers))
	for i, b := range m.browsers {
		ids[i] = b.ID
	}
	return ids
}

// SessionLimits returns the per-browser session caps for the pool.
func (m *Manifest) SessionLimits() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limits := make(map[string]int, len(m.browsers))
	for _, b := range m.browsers {
		if b.Sessions > 0 {
			limits[b.ID] = b.Sessions
		}
	}
	return limits
}

// Capabilities returns the browserName overrides for the grid launcher.
func (m *Manifest) Capabilities() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	caps := make(map[string]string, len(m.browsers))
	for _, b := range m.browsers {
		if b.Capability != "" {
			caps[b.ID] = b.Capability
		}
	}
	return caps
}

// CoverageEnabled reports whether coverage aggregation is on.
func (m *Manifest) CoverageEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coverage.Enabled
}

// Suites returns the loaded suite collection.
func (m *Manifest) Suites() *types.Collection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.suites
}
