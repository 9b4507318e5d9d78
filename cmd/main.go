package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	gemini "github.com/krzysztoffpl/gemini"
	"github.com/krzysztoffpl/gemini/flags"
	"github.com/krzysztoffpl/gemini/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

const stopTimeout = 30 * time.Second

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "gemini"
	app.Usage = "Visual Regression Testing Service"
	app.Description = "gemini captures page states across a browser grid and compares them against reference screenshots"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if gemini.IsRuntimeError(err) {
				// For runtime errors, use exit code 2
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else if gemini.IsTestFailureError(err) {
				// For comparison failures, use exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx := context.Background()

	// Start server
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	// Start CLI
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(cliCtx *cli.Context) error {
	logger, err := newLogger(cliCtx.String(flags.LogLevel.Name))
	if err != nil {
		return gemini.NewRuntimeError(fmt.Errorf("failed to create logger: %w", err))
	}
	log.SetDefault(logger)

	cfg, err := gemini.NewConfig(cliCtx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return gemini.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	appCtx, cancelApp := context.WithCancelCause(cliCtx.Context)
	defer cancelApp(nil)

	app, err := gemini.New(appCtx, cfg, Version, cancelApp)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return gemini.NewRuntimeError(fmt.Errorf("failed to create gemini: %w", err))
	}

	if err := app.Start(appCtx); err != nil {
		return err
	}

	// Block until the run-once shutdown callback fires or a signal arrives
	<-appCtx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return gemini.NewRuntimeError(fmt.Errorf("failed to stop gemini: %w", err))
	}

	if cause := context.Cause(appCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// newLogger builds a terminal logger at the requested level.
func newLogger(lvlStr string) (log.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(lvlStr) {
	case "debug":
		lvl = log.LevelDebug
	case "info":
		lvl = log.LevelInfo
	case "warn":
		lvl = log.LevelWarn
	case "error":
		lvl = log.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q", lvlStr)
	}
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)
	return log.NewLogger(handler), nil
}
