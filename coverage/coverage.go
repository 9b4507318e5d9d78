// Package coverage accumulates per-browser code-coverage payloads reported
// alongside state results and consolidates them into a single report at the
// end of a run. It is only constructed when coverage is enabled.
package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Lines maps a 1-based line number to whether it was executed.
type Lines map[int]bool

// Data is a coverage payload: executed lines keyed by source file path.
type Data map[string]Lines

// Merge folds other into d, OR-ing line hits per file.
func (d Data) Merge(other Data) {
	for file, lines := range other {
		dst, ok := d[file]
		if !ok {
			dst = make(Lines, len(lines))
			d[file] = dst
		}
		for line, hit := range lines {
			if hit {
				dst[line] = true
			}
		}
	}
}

// FileReport is the consolidated coverage for one source file.
type FileReport struct {
	File    string  `json:"file"`
	Covered int     `json:"covered"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// Report is the consolidated cross-browser coverage report.
type Report struct {
	Browsers []string     `json:"browsers"`
	Files    []FileReport `json:"files"`
}

// Config holds configuration for creating an Aggregator.
type Config struct {
	Log       log.Logger
	OutputDir string
}

// Aggregator merges coverage payloads per browser identifier and writes the
// consolidated report when the run finishes.
type Aggregator struct {
	log       log.Logger
	outputDir string

	mu        sync.Mutex
	byBrowser map[string]Data
}

// New creates an Aggregator writing its report under cfg.OutputDir.
func New(cfg Config) *Aggregator {
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
	}
	return &Aggregator{
		log:       logger.New("component", "coverage"),
		outputDir: cfg.OutputDir,
		byBrowser: make(map[string]Data),
	}
}

// AddStatsForBrowser merges data into the running total for browserID.
// A nil payload is a no-op so callers can invoke it uniformly per result.
func (a *Aggregator) AddStatsForBrowser(ctx context.Context, data Data, browserID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if browserID == "" {
		return fmt.Errorf("coverage payload without browser identifier")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	total, ok := a.byBrowser[browserID]
	if !ok {
		total = make(Data)
		a.byBrowser[browserID] = total
	}
	total.Merge(data)
	return nil
}

// DataForBrowser returns a copy of the data recorded so far for browserID.
func (a *Aggregator) DataForBrowser(browserID string) Data {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(Data)
	out.Merge(a.byBrowser[browserID])
	return out
}

// ProcessStats consolidates everything recorded so far across browsers and
// writes coverage.json under the output directory. Called once per run.
func (a *Aggregator) ProcessStats(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	report := a.buildReport()

	if err := os.MkdirAll(a.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create coverage output dir: %w", err)
	}
	path := filepath.Join(a.outputDir, "coverage.json")
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode coverage report: %w", err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("failed to write coverage report: %w", err)
	}

	a.log.Info("Coverage report written", "path", path, "files", len(report.Files), "browsers", len(report.Browsers))
	return nil
}

func (a *Aggregator) buildReport() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged := make(Data)
	browsers := make([]string, 0, len(a.byBrowser))
	for id, data := range a.byBrowser {
		browsers = append(browsers, id)
		merged.Merge(data)
	}
	slices.Sort(browsers)

	files := make([]FileReport, 0, len(merged))
	for file, lines := range merged {
		covered := 0
		for _, hit := range lines {
			if hit {
				covered++
			}
		}
		total := len(lines)
		percent := 0.0
		if total > 0 {
			percent = float64(covered) / float64(total) * 100
		}
		files = append(files, FileReport{File: file, Covered: covered, Total: total, Percent: percent})
	}
	slices.SortFunc(files, func(a, b FileReport) int {
		return strings.Compare(a.File, b.File)
	})

	return &Report{Browsers: browsers, Files: files}
}
