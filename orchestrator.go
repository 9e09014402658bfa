// Package orchestrator wires the suite loader, dependency graph builder and
// concurrent execution core into a runnable service.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/testforge/test-orchestrator/graph"
	"github.com/testforge/test-orchestrator/reporting"
	"github.com/testforge/test-orchestrator/runner"
	"github.com/testforge/test-orchestrator/suite"
	"github.com/testforge/test-orchestrator/types"
)

// Orchestrator loads a test suite, compiles its dependency graph once, and
// runs it through the coordinator on demand or on a schedule.
type Orchestrator struct {
	config    *Config
	version   string
	suite     *types.TestSuite
	graph     *graph.Graph
	coord     *runner.Coordinator
	scheduler RunScheduler
	sink      *reporting.TextSummarySink

	mu         sync.Mutex
	lastReport *types.TestReport
}

// New validates the configuration, loads the suite and builds the execution
// graph. Graph and configuration errors surface here, before anything runs.
func New(config *Config, version string) (*Orchestrator, error) {
	if config == nil {
		return nil, NewRuntimeError(fmt.Errorf("config is required"))
	}

	ts, err := suite.Load(config.SuiteFile, config.Log)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to load suite: %w", err))
	}

	g, err := graph.Build(ts.Cases)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to build dependency graph: %w", err))
	}

	testRunner, err := runner.NewSubprocessRunner(
		config.RunnerCommand, config.WorkDir, nil, config.Exec.GracePeriod, config.Log)
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	o := &Orchestrator{
		config:    config,
		version:   version,
		suite:     ts,
		graph:     g,
		scheduler: NewDefaultRunScheduler(config.RunInterval, config.RunOnce, config.Log),
	}
	if config.ReportDir != "" {
		o.sink = reporting.NewTextSummarySink(config.ReportDir, config.Log)
	}

	opts := []runner.Option{}
	if config.AdaptiveConcurrency {
		opts = append(opts, runner.WithSampler(runner.NewSystemSampler(nil)))
	}
	if config.ShowProgress {
		opts = append(opts, runner.WithProgressListener(o.logProgress))
	}

	coord, err := runner.NewCoordinator(testRunner, config.Exec, config.Log, opts...)
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	o.coord = coord

	config.Log.Info("Orchestrator created",
		"suite", ts.Name, "tests", len(ts.Cases), "version", version)
	return o, nil
}

// Start begins test execution. The first run happens synchronously; in
// continuous mode subsequent runs fire on the configured interval until Stop.
// In run-once mode a TestFailureError is returned when tests failed.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.config.RunOnce {
		o.config.Log.Info("Starting test-orchestrator in run-once mode")
	} else {
		o.config.Log.Info("Starting test-orchestrator in continuous mode", "interval", o.config.RunInterval)
	}

	o.scheduler.RegisterCallback(func() error { return o.runTests(ctx) })
	if err := o.scheduler.Start(ctx); err != nil {
		return err
	}

	if o.config.RunOnce {
		report := o.LastReport()
		if report != nil && (report.Stats.Failed > 0 || report.Stats.TimedOut > 0) {
			return NewTestFailureError(fmt.Sprintf("%d of %d tests did not pass",
				report.Stats.Failed+report.Stats.TimedOut, report.Stats.Total))
		}
	}
	return nil
}

// Stop stops scheduled runs. In-flight runs finish through their own
// escalation path when the caller cancels the run context.
func (o *Orchestrator) Stop() error {
	o.config.Log.Info("Stopping test-orchestrator")
	return o.scheduler.Stop()
}

// Stopped reports whether the scheduler has stopped.
func (o *Orchestrator) Stopped() bool {
	return o.scheduler.Stopped()
}

// WaitForShutdown blocks until scheduler goroutines have terminated.
func (o *Orchestrator) WaitForShutdown(ctx context.Context) error {
	return o.scheduler.WaitForShutdown(ctx)
}

// LastReport returns the most recent finalized report, or nil before the
// first run completes.
func (o *Orchestrator) LastReport() *types.TestReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastReport
}

// runTests executes one full orchestration run and processes the report.
func (o *Orchestrator) runTests(ctx context.Context) error {
	o.config.Log.Info("Running test suite", "suite", o.suite.Name)

	report, err := o.coord.Run(ctx, o.graph)
	if err != nil {
		// Coordinator errors are operational; timeouts and cancellations
		// still produce a report.
		return NewRuntimeError(err)
	}

	o.mu.Lock()
	o.lastReport = report
	o.mu.Unlock()

	fmt.Fprintln(os.Stdout, reporting.RenderSummaryTable(report))

	if o.sink != nil {
		if err := o.sink.Write(report); err != nil {
			o.config.Log.Error("Failed to write report files", "error", err)
		}
	}

	o.config.Log.Info("Test run completed",
		"run_id", report.RunID,
		"classification", report.Classification,
		"passed", report.Stats.Passed,
		"failed", report.Stats.Failed)
	return nil
}

// logProgress drains one run's progress stream, logging a summary line on
// the configured interval and every non-passing terminal event as it lands.
func (o *Orchestrator) logProgress(updates <-chan types.ProgressUpdate) {
	interval := o.config.ProgressInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		var last types.ProgressUpdate
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case u, ok := <-updates:
				if !ok {
					return
				}
				last = u
				switch u.Status {
				case types.TestStatusFailed, types.TestStatusTimedOut:
					o.config.Log.Warn("Test did not pass", "test", u.NodeID, "status", u.Status)
				}
			case <-ticker.C:
				if last.Total == 0 {
					continue
				}
				o.config.Log.Info("Run progress",
					"completed", last.Completed,
					"total", last.Total,
					"failed", last.Failed,
					"elapsed", last.Elapsed.Round(time.Second),
					"remaining", last.Remaining.Round(time.Second))
			}
		}
	}()
}

// Version returns the build version the orchestrator was started with.
func (o *Orchestrator) Version() string {
	return o.version
}
