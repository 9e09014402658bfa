package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"

	"github.com/testforge/test-orchestrator/types"
)

// Dispatch is one unit of work handed to the pool. Ctx carries the node's
// deadline and is cancelled on escalation.
type Dispatch struct {
	NodeID  string
	Case    types.TestCase
	Ctx     context.Context
	Attempt int
}

// Completion is delivered on the pool's result channel for every dispatch,
// including abandoned ones.
type Completion struct {
	NodeID  string
	Attempt int
	Result  *types.TestResult
}

// WorkerPool is a bounded set of reused execution slots. A weighted semaphore
// caps in-flight executions at the configured size as a hard backstop; the
// coordinator additionally keeps dispatches within the adaptive limit. Any
// panic or error from a single execution is contained into a Failed result
// and never terminates the pool.
type WorkerPool struct {
	runner TestRunner
	size   int
	grace  time.Duration
	log    log.Logger

	slots   *semaphore.Weighted
	work    chan Dispatch
	results chan Completion
	wg      sync.WaitGroup
}

// NewWorkerPool creates a pool with the given number of slots. Grace is the
// bounded wait after cooperative cancellation before a slot is reclaimed from
// a non-cooperative runner.
func NewWorkerPool(r TestRunner, size int, grace time.Duration, logger log.Logger) *WorkerPool {
	if r == nil {
		panic("worker pool: runner cannot be nil")
	}
	if size < 1 {
		panic("worker pool: size must be at least 1")
	}
	return &WorkerPool{
		runner:  r,
		size:    size,
		grace:   grace,
		log:     logger.New("component", "worker-pool"),
		slots:   semaphore.NewWeighted(int64(size)),
		work:    make(chan Dispatch),
		results: make(chan Completion, size),
	}
}

// Start launches the worker goroutines. Each freed slot immediately pulls the
// next dispatched node; no execution contexts are created per test.
func (p *WorkerPool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit hands a node to the pool. The coordinator only submits within its
// permit budget, so this blocks at most briefly while a freed worker returns
// to the channel.
func (p *WorkerPool) Submit(d Dispatch) {
	p.work <- d
}

// Results is the completion channel. It is closed after Close once all
// workers have drained.
func (p *WorkerPool) Results() <-chan Completion {
	return p.results
}

// Close stops accepting work, waits for in-flight executions to finish and
// closes the result channel.
func (p *WorkerPool) Close() {
	close(p.work)
	p.wg.Wait()
	close(p.results)
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	wlog := p.log.New("worker", id)
	for d := range p.work {
		if err := p.slots.Acquire(d.Ctx, 1); err != nil {
			// Node context already dead before the slot was claimed.
			p.results <- Completion{NodeID: d.NodeID, Attempt: d.Attempt, Result: p.cancelledResult(d)}
			continue
		}
		res := p.execute(wlog, d)
		p.slots.Release(1)
		p.results <- Completion{NodeID: d.NodeID, Attempt: d.Attempt, Result: res}
	}
}

// execute runs one dispatch, containing panics and enforcing the grace period
// after cooperative cancellation. The runner call happens in an inner
// goroutine so a non-cooperative runner can be abandoned without blocking the
// slot forever.
func (p *WorkerPool) execute(wlog log.Logger, d Dispatch) *types.TestResult {
	start := time.Now()
	outCh := make(chan *types.TestResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				wlog.Error("Runner panicked", "test", d.NodeID, "panic", r)
				outCh <- &types.TestResult{
					NodeID:   d.NodeID,
					Status:   types.TestStatusFailed,
					Duration: time.Since(start),
					Error:    fmt.Errorf("runner panic: %v\n%s", r, debug.Stack()),
					Attempts: d.Attempt,
				}
			}
		}()
		out, err := p.runner.Execute(d.Ctx, d.Case)
		outCh <- p.classify(d, out, err, time.Since(start))
	}()

	select {
	case res := <-outCh:
		return res
	case <-d.Ctx.Done():
	}

	// Cooperative cancellation was signalled; give the runner the grace
	// period to observe it.
	graceTimer := time.NewTimer(p.grace)
	defer graceTimer.Stop()
	select {
	case res := <-outCh:
		return res
	case <-graceTimer.C:
		wlog.Warn("Runner did not observe cancellation within grace period; reclaiming slot",
			"test", d.NodeID, "grace", p.grace)
		return p.reclaimedResult(d, time.Since(start))
	}
}

// classify converts a runner return into a terminal result, consulting the
// node context to distinguish timeouts from external cancellation.
func (p *WorkerPool) classify(d Dispatch, out types.RawOutcome, err error, elapsed time.Duration) *types.TestResult {
	res := &types.TestResult{
		NodeID:   d.NodeID,
		Duration: elapsed,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Attempts: d.Attempt,
	}
	if out.Duration > 0 {
		res.Duration = out.Duration
	}

	switch ctxErr := d.Ctx.Err(); {
	case ctxErr == context.DeadlineExceeded:
		res.Status = types.TestStatusTimedOut
		res.Error = fmt.Errorf("test timed out after %v", elapsed)
	case ctxErr != nil:
		res.Status = types.TestStatusCancelled
		res.Error = context.Cause(d.Ctx)
	case err != nil:
		res.Status = types.TestStatusFailed
		res.Error = err
	case out.ExitStatus != 0:
		res.Status = types.TestStatusFailed
		res.Error = fmt.Errorf("runner exited with status %d", out.ExitStatus)
	default:
		res.Status = types.TestStatusPassed
	}
	return res
}

func (p *WorkerPool) reclaimedResult(d Dispatch, elapsed time.Duration) *types.TestResult {
	status := types.TestStatusTimedOut
	reason := fmt.Errorf("test timed out after %v; runner forcefully reclaimed after %v grace", elapsed, p.grace)
	if d.Ctx.Err() != context.DeadlineExceeded {
		status = types.TestStatusCancelled
		reason = fmt.Errorf("test cancelled; runner forcefully reclaimed after %v grace", p.grace)
	}
	return &types.TestResult{
		NodeID:   d.NodeID,
		Status:   status,
		Duration: elapsed,
		Error:    reason,
		Attempts: d.Attempt,
	}
}

func (p *WorkerPool) cancelledResult(d Dispatch) *types.TestResult {
	status := types.TestStatusCancelled
	if d.Ctx.Err() == context.DeadlineExceeded {
		status = types.TestStatusTimedOut
	}
	return &types.TestResult{
		NodeID:   d.NodeID,
		Status:   status,
		Error:    context.Cause(d.Ctx),
		Attempts: d.Attempt,
	}
}
