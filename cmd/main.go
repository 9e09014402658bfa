package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	orchestrator "github.com/testforge/test-orchestrator"
	"github.com/testforge/test-orchestrator/exitcodes"
	"github.com/testforge/test-orchestrator/flags"
	"github.com/testforge/test-orchestrator/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "test-orchestrator"
	app.Usage = "Concurrent Test Execution Orchestrator"
	app.Description = "test-orchestrator runs generated test suites across a bounded worker pool, respecting declared dependency order"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if orchestrator.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if orchestrator.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(cliCtx *cli.Context) error {
	logger, err := setupLogger(cliCtx.String(flags.LogLevel.Name))
	if err != nil {
		return orchestrator.NewRuntimeError(err)
	}

	cfg, err := orchestrator.NewConfig(cliCtx, logger)
	if err != nil {
		return orchestrator.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "suite", cfg.SuiteFile, "runner", cfg.RunnerCommand, "run_once", cfg.RunOnce)

	orch, err := orchestrator.New(cfg, Version)
	if err != nil {
		return orchestrator.NewRuntimeError(fmt.Errorf("failed to create orchestrator: %w", err))
	}

	// Health and metrics servers live for the whole process.
	svc := service.New(func() service.Health {
		h := service.Health{Status: "ok", Version: Version}
		if report := orch.LastReport(); report != nil {
			h.LastRunID = report.RunID
			h.LastRunResult = string(report.Classification)
		}
		return h
	})
	svc.Start(cliCtx.Context)
	defer svc.Shutdown()

	if err := orch.Start(cliCtx.Context); err != nil {
		return err
	}
	if cfg.RunOnce {
		return nil
	}

	// Continuous mode: block until an interrupt arrives, then drain.
	<-cliCtx.Context.Done()
	logger.Info("Shutdown signal received")
	if err := orch.Stop(); err != nil {
		logger.Error("Error stopping orchestrator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return orch.WaitForShutdown(shutdownCtx)
}

// setupLogger installs a JSON slog handler at the requested level as the
// process-wide default logger and returns it.
func setupLogger(level string) (log.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := log.NewLogger(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	log.SetDefault(logger)
	return logger, nil
}
