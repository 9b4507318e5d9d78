package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "GEMINI"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Manifest = &cli.StringFlag{
		Name:     "manifest",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("MANIFEST"),
		Usage:    "Path to the suite manifest file (eg. 'gemini.yaml')",
	}
	GridURL = &cli.StringFlag{
		Name:     "grid-url",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("GRID_URL"),
		Usage:    "WebDriver grid endpoint (eg. 'http://localhost:4444/wd/hub')",
	}
	RootURL = &cli.StringFlag{
		Name:    "root-url",
		Value:   "",
		EnvVars: prefixEnvVars("ROOT_URL"),
		Usage:   "Base URL suite URLs are resolved against; overrides the manifest's rootUrl",
	}
	Browsers = &cli.StringSliceFlag{
		Name:    "browser",
		EnvVars: prefixEnvVars("BROWSER"),
		Usage:   "Run only the given browser(s); may be repeated. Defaults to every browser in the manifest.",
	}
	UpdateRefs = &cli.BoolFlag{
		Name:    "update-refs",
		Value:   false,
		EnvVars: prefixEnvVars("UPDATE_REFS"),
		Usage:   "Write captured screenshots as new references instead of comparing",
	}
	ReferencesDir = &cli.StringFlag{
		Name:    "refs-dir",
		Value:   "gemini/refs",
		EnvVars: prefixEnvVars("REFS_DIR"),
		Usage:   "Directory holding reference screenshots",
	}
	OutputDir = &cli.StringFlag{
		Name:    "output-dir",
		Value:   "gemini/output",
		EnvVars: prefixEnvVars("OUTPUT_DIR"),
		Usage:   "Directory receiving captured screenshots and reports",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: prefixEnvVars("LOGDIR"),
		Usage:   "Directory to store run event logs",
	}
	Coverage = &cli.BoolFlag{
		Name:    "coverage",
		Value:   false,
		EnvVars: prefixEnvVars("COVERAGE"),
		Usage:   "Force-enable coverage aggregation regardless of the manifest",
	}
	Retries = &cli.IntFlag{
		Name:    "retries",
		Value:   1,
		EnvVars: prefixEnvVars("RETRIES"),
		Usage:   "How many times a suite is retried after its session is lost",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: prefixEnvVars("SHOW_PROGRESS"),
		Usage:   "Log periodic progress updates during the run",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   0,
		EnvVars: prefixEnvVars("PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (debug, info, warn, error)",
	}
)

var requiredFlags = []cli.Flag{
	Manifest,
	GridURL,
}

var optionalFlags = []cli.Flag{
	RootURL,
	Browsers,
	UpdateRefs,
	ReferencesDir,
	OutputDir,
	LogDir,
	Coverage,
	Retries,
	RunInterval,
	ShowProgress,
	ProgressInterval,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
