package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/testforge/test-orchestrator/graph"
	"github.com/testforge/test-orchestrator/metrics"
	"github.com/testforge/test-orchestrator/types"
)

// Coordinator is the single-threaded control loop that walks the graph's
// frontier, dispatches ready nodes to the worker pool within the concurrency
// controller's ceiling, and reacts to completions. All per-node state lives
// on the coordinator goroutine for the duration of a run; workers only
// communicate through the pool's completion channel.
//
// The concurrency controller is the single capacity authority: complexity
// ordering only selects which ready nodes fill the available slots.
type Coordinator struct {
	runner  TestRunner
	cfg     types.ExecutionConfig
	log     log.Logger
	sampler ResourceSampler

	onProgress func(<-chan types.ProgressUpdate)
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithSampler enables adaptive concurrency driven by the given resource
// sampler. Without it the limit stays at MaxConcurrency.
func WithSampler(s ResourceSampler) Option {
	return func(c *Coordinator) { c.sampler = s }
}

// WithProgressListener registers a callback invoked at the start of each run
// with that run's progress stream. The listener owns draining the channel.
func WithProgressListener(fn func(<-chan types.ProgressUpdate)) Option {
	return func(c *Coordinator) { c.onProgress = fn }
}

// NewCoordinator validates the configuration and builds a coordinator.
// Configuration errors are fatal here, before anything is dispatched.
func NewCoordinator(r TestRunner, cfg types.ExecutionConfig, logger log.Logger, opts ...Option) (*Coordinator, error) {
	if r == nil {
		return nil, fmt.Errorf("test runner is required")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		runner: r,
		cfg:    cfg,
		log:    logger.New("component", "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// runState is the per-run mutable state, owned exclusively by the Run
// goroutine and keyed by graph node index.
type runState struct {
	graph     *graph.Graph
	status    []types.TestStatus
	remaining []int // unmet dependency count per node
	attempts  []int // executions so far per node
	frontier  *readyQueue
	terminal  int
	inFlight  int
}

// Run executes the graph and always returns a complete report: a run that
// hits the global timeout or an external cancellation yields TimedOut and
// Cancelled entries rather than an error.
func (c *Coordinator) Run(ctx context.Context, g *graph.Graph) (*types.TestReport, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is required")
	}

	runID := uuid.New().String()
	rlog := c.log.New("run_id", runID)
	n := g.Len()

	levels := g.Levels()
	factor := 1.0
	if len(levels) > 0 {
		factor = float64(n) / float64(len(levels))
	}
	rlog.Info("Starting test run",
		"tests", n,
		"batches", len(levels),
		"maxParallelism", g.MaxParallelism(),
		"parallelizationFactor", fmt.Sprintf("%.1f", factor),
		"maxConcurrency", c.cfg.MaxConcurrency)

	timeouts := NewTimeoutManager(c.cfg, rlog)
	runCtx, cancelRun := timeouts.RunContext(ctx, c.cfg.GlobalTimeout)
	defer cancelRun()
	controller := NewConcurrencyController(c.cfg, c.sampler, rlog)
	controller.Start(runCtx)
	defer controller.Stop()

	pool := NewWorkerPool(c.runner, c.cfg.MaxConcurrency, c.cfg.GracePeriod, rlog)
	pool.Start()

	aggr := NewResultAggregator(runID, n, rlog)

	var prog *ProgressReporter
	if c.onProgress != nil {
		prog = NewProgressReporter(c.cfg, n, rlog)
		c.onProgress(prog.Updates())
	}

	st := &runState{
		graph:     g,
		status:    make([]types.TestStatus, n),
		remaining: make([]int, n),
		attempts:  make([]int, n),
		frontier:  newReadyQueue(g),
	}
	for i := 0; i < n; i++ {
		st.status[i] = types.TestStatusPending
		st.remaining[i] = len(g.Node(i).Deps)
	}
	for i := 0; i < n; i++ {
		if st.remaining[i] == 0 {
			c.markReady(st, prog, i)
		}
	}

	retryCh := make(chan int, n)
	classification := types.RunCompleted

loop:
	for st.terminal < n {
		c.dispatchReady(st, prog, controller, timeouts, pool, runCtx)
		if st.terminal >= n {
			break
		}

		select {
		case comp := <-pool.Results():
			controller.Release()
			st.inFlight--
			timeouts.Forget(comp.NodeID)
			c.handleCompletion(st, aggr, prog, retryCh, runCtx, comp, rlog)

		case i := <-retryCh:
			if st.status[i] == types.TestStatusPending {
				c.markReady(st, prog, i)
			}

		case <-runCtx.Done():
			if runCtx.Err() == context.DeadlineExceeded {
				classification = types.RunTimedOut
				rlog.Warn("Global timeout reached; escalating run shutdown", "timeout", c.cfg.GlobalTimeout)
			} else {
				classification = types.RunCancelled
				rlog.Warn("Run cancelled externally; escalating run shutdown")
			}
			c.shutdown(st, aggr, prog, timeouts, controller, pool, rlog)
			break loop
		}
	}

	pool.Close()
	if prog != nil {
		prog.Close()
	}

	report := aggr.Finalize(classification)
	metrics.RecordRun(runID, string(classification), report.Stats, report.WallClock)
	rlog.Info("Test run finished",
		"classification", classification,
		"passed", report.Stats.Passed,
		"failed", report.Stats.Failed,
		"timedOut", report.Stats.TimedOut,
		"cancelled", report.Stats.Cancelled,
		"skipped", report.Stats.Skipped,
		"duration", report.WallClock)
	return report, nil
}

// dispatchReady moves frontier nodes into the pool while the controller
// grants permits. Highest estimated complexity first; ties broken by suite
// insertion order.
func (c *Coordinator) dispatchReady(st *runState, prog *ProgressReporter, controller *ConcurrencyController, timeouts *TimeoutManager, pool *WorkerPool, runCtx context.Context) {
	for st.frontier.Len() > 0 && runCtx.Err() == nil {
		if !controller.Permit() {
			return
		}
		i := st.frontier.pop()
		node := st.graph.Node(i)

		st.status[i] = types.TestStatusRunning
		st.attempts[i]++
		st.inFlight++
		c.publish(prog, node.Case.ID, types.TestStatusRunning)

		nodeCtx := timeouts.Track(runCtx, node.Case.ID, node.Case.Timeout)
		pool.Submit(Dispatch{
			NodeID:  node.Case.ID,
			Case:    node.Case,
			Ctx:     nodeCtx,
			Attempt: st.attempts[i],
		})
	}
}

// handleCompletion folds one worker completion into run state, scheduling a
// retry when the policy allows and the failure is retryable.
func (c *Coordinator) handleCompletion(st *runState, aggr *ResultAggregator, prog *ProgressReporter, retryCh chan int, runCtx context.Context, comp Completion, rlog log.Logger) {
	i, ok := st.graph.IndexOf(comp.NodeID)
	if !ok {
		rlog.Error("Completion for unknown node", "test", comp.NodeID)
		return
	}
	if st.status[i].IsTerminal() {
		rlog.Warn("Late completion for already-terminal node", "test", comp.NodeID, "status", st.status[i])
		return
	}

	if comp.Result.Status == types.TestStatusFailed && c.retriesLeft(st.attempts[i]) && runCtx.Err() == nil {
		delay := c.retryDelay(st.attempts[i])
		rlog.Info("Scheduling retry for failed test",
			"test", comp.NodeID, "attempt", st.attempts[i], "delay", delay)
		st.status[i] = types.TestStatusPending
		idx := i
		time.AfterFunc(delay, func() { retryCh <- idx })
		return
	}

	c.recordTerminal(st, aggr, prog, i, comp.Result)
}

// recordTerminal marks a node terminal, feeds the aggregator and progress
// stream, and updates dependents' readiness. Non-passing outcomes propagate
// to transitive dependents according to the skip policy.
func (c *Coordinator) recordTerminal(st *runState, aggr *ResultAggregator, prog *ProgressReporter, i int, res *types.TestResult) {
	st.status[i] = res.Status
	st.terminal++
	aggr.Record(res)
	c.publish(prog, res.NodeID, res.Status)

	node := st.graph.Node(i)
	if res.Status == types.TestStatusPassed {
		for _, j := range node.Dependents {
			st.remaining[j]--
			if st.remaining[j] == 0 && st.status[j] == types.TestStatusPending {
				c.markReady(st, prog, j)
			}
		}
		return
	}

	// Terminally failed ancestor: dependents can never become Ready, so they
	// get a terminal status now instead of dangling.
	stack := make([]int, 0, len(node.Dependents))
	stack = append(stack, node.Dependents...)
	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if st.status[j] != types.TestStatusPending {
			continue
		}
		dep := st.graph.Node(j)
		var dres *types.TestResult
		if c.cfg.SkipOnDependencyFailure {
			dres = &types.TestResult{
				NodeID: dep.Case.ID,
				Status: types.TestStatusSkipped,
				Error:  fmt.Errorf("skipped: dependency %q finished as %s", res.NodeID, res.Status),
			}
		} else {
			dres = &types.TestResult{
				NodeID: dep.Case.ID,
				Status: types.TestStatusFailed,
				Error:  fmt.Errorf("dependency %q finished as %s", res.NodeID, res.Status),
			}
		}
		st.status[j] = dres.Status
		st.terminal++
		aggr.Record(dres)
		c.publish(prog, dres.NodeID, dres.Status)
		stack = append(stack, dep.Dependents...)
	}
}

// shutdown handles run-level termination: every running node is escalated
// through the timeout manager and every node not yet dispatched is marked
// Cancelled, so nothing is left in a non-terminal state.
func (c *Coordinator) shutdown(st *runState, aggr *ResultAggregator, prog *ProgressReporter, timeouts *TimeoutManager, controller *ConcurrencyController, pool *WorkerPool, rlog log.Logger) {
	timeouts.EscalateAll()

	for i := 0; i < st.graph.Len(); i++ {
		switch st.status[i] {
		case types.TestStatusPending, types.TestStatusReady:
			c.recordTerminal(st, aggr, prog, i, &types.TestResult{
				NodeID: st.graph.Node(i).Case.ID,
				Status: types.TestStatusCancelled,
				Error:  fmt.Errorf("run terminated before dispatch"),
			})
		}
	}

	// Drain in-flight executions; the pool guarantees each returns within the
	// grace period once its context is dead.
	for st.inFlight > 0 {
		comp := <-pool.Results()
		controller.Release()
		st.inFlight--
		timeouts.Forget(comp.NodeID)
		if i, ok := st.graph.IndexOf(comp.NodeID); ok && !st.status[i].IsTerminal() {
			c.recordTerminal(st, aggr, prog, i, comp.Result)
		}
	}
	rlog.Info("Run shutdown complete", "terminal", st.terminal, "total", st.graph.Len())
}

func (c *Coordinator) markReady(st *runState, prog *ProgressReporter, i int) {
	st.status[i] = types.TestStatusReady
	st.frontier.push(i)
	c.publish(prog, st.graph.Node(i).Case.ID, types.TestStatusReady)
}

func (c *Coordinator) publish(prog *ProgressReporter, id string, status types.TestStatus) {
	if prog != nil {
		prog.Publish(id, status)
	}
}

// retriesLeft reports whether the retry policy allows another execution after
// the given number of attempts.
func (c *Coordinator) retriesLeft(attempts int) bool {
	switch c.cfg.Retry.Kind {
	case types.RetryFixed, types.RetryBackoff:
		return attempts <= c.cfg.Retry.Attempts
	default:
		return false
	}
}

// retryDelay computes the wait before the next attempt. Fixed retries
// re-queue immediately; backoff retries follow an exponential schedule with
// the configured base interval.
func (c *Coordinator) retryDelay(attempts int) time.Duration {
	if c.cfg.Retry.Kind != types.RetryBackoff {
		return 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Retry.Base
	b.RandomizationFactor = 0
	b.Multiplier = 2

	var d time.Duration
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	if d < 0 {
		d = c.cfg.Retry.Base
	}
	return d
}
