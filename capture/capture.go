// Package capture is the reference state-processing collaborator: it
// navigates a session to a suite's page, captures the named state and
// judges it against the stored reference image. The pixel comparison
// strategy is pluggable; the default is exact byte equality.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"

	"github.com/krzysztoffpl/gemini/browser"
	"github.com/krzysztoffpl/gemini/runner"
	"github.com/krzysztoffpl/gemini/types"
)

// CompareFunc judges whether a captured screenshot matches its reference.
type CompareFunc func(reference, current []byte) (bool, error)

// Config holds configuration for creating a Processor.
type Config struct {
	Log log.Logger

	// RootURL is the base suite URLs are resolved against.
	RootURL string

	// ReferencesDir stores the accepted reference screenshots.
	ReferencesDir string

	// CurrentDir receives the screenshots captured during this run.
	CurrentDir string

	// UpdateRefs switches the run from comparing to (re)writing references.
	UpdateRefs bool

	// Compare overrides the default byte-equality comparison.
	Compare CompareFunc
}

// Processor implements runner.StateProcessor over browser sessions.
type Processor struct {
	log     log.Logger
	cfg     Config
	compare CompareFunc
}

var _ runner.StateProcessor = (*Processor)(nil)

// New creates a Processor.
func New(cfg Config) (*Processor, error) {
	if cfg.ReferencesDir == "" || cfg.CurrentDir == "" {
		return nil, fmt.Errorf("references and current directories are required")
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
	}
	compare := cfg.Compare
	if compare == nil {
		compare = func(reference, current []byte) (bool, error) {
			return bytes.Equal(reference, current), nil
		}
	}
	return &Processor{
		log:     logger.New("component", "capture"),
		cfg:     cfg,
		compare: compare,
	}, nil
}

// Prepare creates the screenshot directories. Runs once per run, before
// any browser starts.
func (p *Processor) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, dir := range []string{p.cfg.ReferencesDir, p.cfg.CurrentDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create screenshot dir %q: %w", dir, err)
		}
	}
	return nil
}

// ProcessState captures one state in the given session and compares it
// against (or updates) its reference.
func (p *Processor) ProcessState(ctx context.Context, sess browser.Session, suite *types.Suite, state *types.State) (runner.StateOutcome, error) {
	pageURL, err := p.resolveURL(suite.URL)
	if err != nil {
		return runner.StateOutcome{}, runner.NewFatalError(err)
	}
	if err := sess.Navigate(ctx, pageURL); err != nil {
		return runner.StateOutcome{}, fmt.Errorf("failed to open %q: %w", pageURL, err)
	}
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		return runner.StateOutcome{}, fmt.Errorf("failed to capture %q: %w", state.Name, err)
	}

	refPath := p.imagePath(p.cfg.ReferencesDir, sess.BrowserID(), suite, state)
	curPath := p.imagePath(p.cfg.CurrentDir, sess.BrowserID(), suite, state)
	if err := writeImage(curPath, shot); err != nil {
		return runner.StateOutcome{}, err
	}

	if p.cfg.UpdateRefs {
		if err := writeImage(refPath, shot); err != nil {
			return runner.StateOutcome{}, err
		}
		p.log.Debug("Reference updated", "suite", suite.Name, "state", state.Name, "path", refPath)
		return runner.StateOutcome{Updated: true, ReferencePath: refPath, CurrentPath: curPath}, nil
	}

	reference, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return runner.StateOutcome{}, fmt.Errorf("no reference image for state %q (%s); run with --update-refs to create it", state.Name, refPath)
		}
		return runner.StateOutcome{}, fmt.Errorf("failed to read reference for %q: %w", state.Name, err)
	}
	equal, err := p.compare(reference, shot)
	if err != nil {
		return runner.StateOutcome{}, fmt.Errorf("comparison failed for %q: %w", state.Name, err)
	}
	return runner.StateOutcome{Equal: equal, ReferencePath: refPath, CurrentPath: curPath}, nil
}

func (p *Processor) resolveURL(suiteURL string) (string, error) {
	if p.cfg.RootURL == "" {
		return suiteURL, nil
	}
	base, err := url.Parse(p.cfg.RootURL)
	if err != nil {
		return "", fmt.Errorf("invalid root URL %q: %w", p.cfg.RootURL, err)
	}
	ref, err := url.Parse(suiteURL)
	if err != nil {
		return "", fmt.Errorf("invalid suite URL %q: %w", suiteURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (p *Processor) imagePath(root, browserID string, suite *types.Suite, state *types.State) string {
	return filepath.Join(root, browserID, suite.Name, state.Name+".png")
}

func writeImage(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dir for %q: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}
