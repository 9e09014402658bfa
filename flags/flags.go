package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TEST_ORCHESTRATOR"

// prefixEnvVars derives the environment variable names for a flag.
func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	SuiteFile = &cli.StringFlag{
		Name:     "suite",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("SUITE"),
		Usage:    "Path to the suite descriptor file (eg. 'suite.yaml')",
	}
	RunnerCommand = &cli.StringFlag{
		Name:     "runner-cmd",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("RUNNER_CMD"),
		Usage:    "Command invoked per test case; the case's source reference is appended (eg. 'pytest -x')",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   "",
		EnvVars: prefixEnvVars("WORKDIR"),
		Usage:   "Working directory for runner subprocesses",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	MaxConcurrency = &cli.IntFlag{
		Name:    "max-concurrency",
		Value:   8,
		EnvVars: prefixEnvVars("MAX_CONCURRENCY"),
		Usage:   "Upper bound on concurrent test executions",
	}
	MinConcurrency = &cli.IntFlag{
		Name:    "min-concurrency",
		Value:   1,
		EnvVars: prefixEnvVars("MIN_CONCURRENCY"),
		Usage:   "Floor the adaptive controller never shrinks below",
	}
	GlobalTimeout = &cli.DurationFlag{
		Name:    "global-timeout",
		Value:   0,
		EnvVars: prefixEnvVars("GLOBAL_TIMEOUT"),
		Usage:   "Deadline for a whole run; 0 disables it",
	}
	TestTimeout = &cli.DurationFlag{
		Name:    "test-timeout",
		Value:   0,
		EnvVars: prefixEnvVars("TEST_TIMEOUT"),
		Usage:   "Default per-test timeout, overridable per case in the suite file",
	}
	GracePeriod = &cli.DurationFlag{
		Name:    "grace-period",
		Value:   0,
		EnvVars: prefixEnvVars("GRACE_PERIOD"),
		Usage:   "Wait after cooperative cancellation before a test is reclaimed forcefully",
	}
	RetryPolicy = &cli.StringFlag{
		Name:    "retry-policy",
		Value:   "none",
		EnvVars: prefixEnvVars("RETRY_POLICY"),
		Usage:   "Retry policy for failed tests: none, fixed or backoff",
	}
	RetryAttempts = &cli.IntFlag{
		Name:    "retry-attempts",
		Value:   0,
		EnvVars: prefixEnvVars("RETRY_ATTEMPTS"),
		Usage:   "Number of retries per failed test under fixed/backoff policies",
	}
	RetryBase = &cli.DurationFlag{
		Name:    "retry-base",
		Value:   0,
		EnvVars: prefixEnvVars("RETRY_BASE"),
		Usage:   "Initial backoff interval under the backoff retry policy",
	}
	SkipOnDependencyFailure = &cli.BoolFlag{
		Name:    "skip-on-dependency-failure",
		Value:   true,
		EnvVars: prefixEnvVars("SKIP_ON_DEPENDENCY_FAILURE"),
		Usage:   "Mark dependents of a failed test Skipped instead of Failed",
	}
	AdaptiveConcurrency = &cli.BoolFlag{
		Name:    "adaptive-concurrency",
		Value:   true,
		EnvVars: prefixEnvVars("ADAPTIVE_CONCURRENCY"),
		Usage:   "Adjust the concurrency limit from CPU/memory telemetry",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "progress",
		Value:   true,
		EnvVars: prefixEnvVars("PROGRESS"),
		Usage:   "Log periodic progress updates during a run",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   0,
		EnvVars: prefixEnvVars("PROGRESS_INTERVAL"),
		Usage:   "Interval between progress log lines",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "reports",
		EnvVars: prefixEnvVars("REPORT_DIR"),
		Usage:   "Directory for per-run report files; empty disables file reports",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level: trace, debug, info, warn, error or crit",
	}
)

var requiredFlags = []cli.Flag{
	SuiteFile,
	RunnerCommand,
}

var optionalFlags = []cli.Flag{
	WorkDir,
	RunInterval,
	MaxConcurrency,
	MinConcurrency,
	GlobalTimeout,
	TestTimeout,
	GracePeriod,
	RetryPolicy,
	RetryAttempts,
	RetryBase,
	SkipOnDependencyFailure,
	AdaptiveConcurrency,
	ShowProgress,
	ProgressInterval,
	ReportDir,
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
