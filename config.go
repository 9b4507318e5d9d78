package gemini

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/krzysztoffpl/gemini/flags"
)

// Config holds the application configuration
type Config struct {
	ManifestFile     string        // Path to the suite manifest
	GridURL          string        // WebDriver grid endpoint
	RootURL          string        // Overrides the manifest rootUrl when set
	Browsers         []string      // Restrict the run to these browsers (manifest order kept)
	UpdateRefs       bool          // Write references instead of comparing
	ReferencesDir    string        // Reference screenshot directory
	OutputDir        string        // Captured screenshots and reports
	LogDir           string        // Run event logs
	Coverage         bool          // Force-enable coverage aggregation
	Retries          int           // Suite retries after a lost session
	RunInterval      time.Duration // Interval between runs
	RunOnce          bool          // Exit after one run
	ShowProgress     bool          // Log periodic progress updates
	ProgressInterval time.Duration // Interval between progress updates
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	manifestFile := ctx.String(flags.Manifest.Name)
	if manifestFile == "" {
		return nil, errors.New("suite manifest is required")
	}
	gridURL := ctx.String(flags.GridURL.Name)
	if gridURL == "" {
		return nil, errors.New("grid URL is required")
	}

	absManifest, err := filepath.Abs(manifestFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", manifestFile, err)
	}

	retries := ctx.Int(flags.Retries.Name)
	if retries < 0 {
		return nil, errors.New("retries cannot be negative")
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	resolveDir := func(path string) (string, error) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path for '%s': %w", path, err)
		}
		return abs, nil
	}
	refsDir, err := resolveDir(ctx.String(flags.ReferencesDir.Name))
	if err != nil {
		return nil, err
	}
	outputDir, err := resolveDir(ctx.String(flags.OutputDir.Name))
	if err != nil {
		return nil, err
	}
	logDir, err := resolveDir(ctx.String(flags.LogDir.Name))
	if err != nil {
		return nil, err
	}

	return &Config{
		ManifestFile:     absManifest,
		GridURL:          gridURL,
		RootURL:          ctx.String(flags.RootURL.Name),
		Browsers:         ctx.StringSlice(flags.Browsers.Name),
		UpdateRefs:       ctx.Bool(flags.UpdateRefs.Name),
		ReferencesDir:    refsDir,
		OutputDir:        outputDir,
		LogDir:           logDir,
		Coverage:         ctx.Bool(flags.Coverage.Name),
		Retries:          retries,
		RunInterval:      runInterval,
		RunOnce:          runOnce,
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		Log:              logger,
	}, nil
}
