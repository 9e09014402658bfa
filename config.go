package orchestrator

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/testforge/test-orchestrator/flags"
	"github.com/testforge/test-orchestrator/types"
)

// Config holds the application configuration
type Config struct {
	SuiteFile     string   // Path to the suite descriptor file
	RunnerCommand []string // Command invoked per test case, source appended
	WorkDir       string   // Working directory for runner subprocesses

	RunInterval time.Duration // Interval between test runs; 0 means run-once
	RunOnce     bool

	Exec types.ExecutionConfig // Per-run execution options

	AdaptiveConcurrency bool          // Drive the limit from resource sampling
	ShowProgress        bool          // Log periodic progress updates during a run
	ProgressInterval    time.Duration // Interval between progress log lines
	ReportDir           string        // Directory for per-run report files; empty disables file reports

	Log log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	suiteFile := ctx.String(flags.SuiteFile.Name)
	if suiteFile == "" {
		return nil, errors.New("suite file is required")
	}
	absSuiteFile, err := filepath.Abs(suiteFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suite file %q: %w", suiteFile, err)
	}

	runnerCmd := strings.Fields(ctx.String(flags.RunnerCommand.Name))
	if len(runnerCmd) == 0 {
		return nil, errors.New("runner command is required")
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	exec := types.ExecutionConfig{
		MaxConcurrency:          ctx.Int(flags.MaxConcurrency.Name),
		MinConcurrency:          ctx.Int(flags.MinConcurrency.Name),
		GlobalTimeout:           ctx.Duration(flags.GlobalTimeout.Name),
		PerTestTimeoutDefault:   ctx.Duration(flags.TestTimeout.Name),
		GracePeriod:             ctx.Duration(flags.GracePeriod.Name),
		SkipOnDependencyFailure: ctx.Bool(flags.SkipOnDependencyFailure.Name),
		Retry: types.RetryPolicy{
			Kind:     types.RetryKind(ctx.String(flags.RetryPolicy.Name)),
			Attempts: ctx.Int(flags.RetryAttempts.Name),
			Base:     ctx.Duration(flags.RetryBase.Name),
		},
	}
	exec.Normalize()
	if err := exec.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		SuiteFile:           absSuiteFile,
		RunnerCommand:       runnerCmd,
		WorkDir:             ctx.String(flags.WorkDir.Name),
		RunInterval:         runInterval,
		RunOnce:             runInterval == 0,
		Exec:                exec,
		AdaptiveConcurrency: ctx.Bool(flags.AdaptiveConcurrency.Name),
		ShowProgress:        ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval:    ctx.Duration(flags.ProgressInterval.Name),
		ReportDir:           ctx.String(flags.ReportDir.Name),
		Log:                 log,
	}, nil
}
