package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/test-orchestrator/types"
)

func collectOne(t *testing.T, pool *WorkerPool) Completion {
	t.Helper()
	select {
	case comp := <-pool.Results():
		return comp
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		return Completion{}
	}
}

func TestWorkerPool_PassAndFail(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, tc types.TestCase) (types.RawOutcome, error) {
		if tc.ID == "bad" {
			return types.RawOutcome{ExitStatus: 1, Stderr: "assertion failed"}, nil
		}
		return types.RawOutcome{Stdout: "ok"}, nil
	})
	pool := NewWorkerPool(runner, 2, time.Second, log.New())
	pool.Start()
	defer pool.Close()

	pool.Submit(Dispatch{NodeID: "good", Case: types.TestCase{ID: "good"}, Ctx: context.Background(), Attempt: 1})
	comp := collectOne(t, pool)
	require.Equal(t, "good", comp.NodeID)
	assert.Equal(t, types.TestStatusPassed, comp.Result.Status)
	assert.Equal(t, "ok", comp.Result.Stdout)
	assert.NoError(t, comp.Result.Error)

	pool.Submit(Dispatch{NodeID: "bad", Case: types.TestCase{ID: "bad"}, Ctx: context.Background(), Attempt: 1})
	comp = collectOne(t, pool)
	assert.Equal(t, types.TestStatusFailed, comp.Result.Status)
	assert.ErrorContains(t, comp.Result.Error, "exited with status 1")
	assert.Equal(t, "assertion failed", comp.Result.Stderr)
}

func TestWorkerPool_RunnerError(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, tc types.TestCase) (types.RawOutcome, error) {
		return types.RawOutcome{}, errors.New("could not start runner")
	})
	pool := NewWorkerPool(runner, 1, time.Second, log.New())
	pool.Start()
	defer pool.Close()

	pool.Submit(Dispatch{NodeID: "a", Case: types.TestCase{ID: "a"}, Ctx: context.Background(), Attempt: 1})
	comp := collectOne(t, pool)
	assert.Equal(t, types.TestStatusFailed, comp.Result.Status)
	assert.ErrorContains(t, comp.Result.Error, "could not start runner")
}

func TestWorkerPool_PanicContained(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, tc types.TestCase) (types.RawOutcome, error) {
		panic("runner exploded")
	})
	pool := NewWorkerPool(runner, 1, time.Second, log.New())
	pool.Start()
	defer pool.Close()

	pool.Submit(Dispatch{NodeID: "a", Case: types.TestCase{ID: "a"}, Ctx: context.Background(), Attempt: 1})
	comp := collectOne(t, pool)
	require.Equal(t, types.TestStatusFailed, comp.Result.Status)
	assert.ErrorContains(t, comp.Result.Error, "runner exploded")

	// The slot survives the panic and keeps executing.
	pool.Submit(Dispatch{NodeID: "b", Case: types.TestCase{ID: "b"}, Ctx: context.Background(), Attempt: 1})
	comp = collectOne(t, pool)
	assert.Equal(t, types.TestStatusFailed, comp.Result.Status)
}

func TestWorkerPool_CooperativeTimeout(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, tc types.TestCase) (types.RawOutcome, error) {
		<-ctx.Done()
		return types.RawOutcome{}, ctx.Err()
	})
	pool := NewWorkerPool(runner, 1, time.Second, log.New())
	pool.Start()
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	pool.Submit(Dispatch{NodeID: "slow", Case: types.TestCase{ID: "slow"}, Ctx: ctx, Attempt: 1})

	comp := collectOne(t, pool)
	assert.Equal(t, types.TestStatusTimedOut, comp.Result.Status)
	assert.ErrorContains(t, comp.Result.Error, "timed out")
}

func TestWorkerPool_CooperativeCancellation(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, tc types.TestCase) (types.RawOutcome, error) {
		<-ctx.Done()
		return types.RawOutcome{}, ctx.Err()
	})
	pool := NewWorkerPool(runner, 1, time.Second, log.New())
	pool.Start()
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	pool.Submit(Dispatch{NodeID: "a", Case: types.TestCase{ID: "a"}, Ctx: ctx, Attempt: 1})
	cancel()

	comp := collectOne(t, pool)
	assert.Equal(t, types.TestStatusCancelled, comp.Result.Status)
}

func TestWorkerPool_ReclaimsNonCooperativeRunner(t *testing.T) {
	release := make(chan struct{})
	runner := RunnerFunc(func(ctx context.Context, tc types.TestCase) (types.RawOutcome, error) {
		// Ignores cancellation entirely.
		<-release
		return types.RawOutcome{}, nil
	})
	pool := NewWorkerPool(runner, 1, 30*time.Millisecond, log.New())
	pool.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	pool.Submit(Dispatch{NodeID: "stuck", Case: types.TestCase{ID: "stuck"}, Ctx: ctx, Attempt: 2})

	comp := collectOne(t, pool)
	require.Equal(t, types.TestStatusTimedOut, comp.Result.Status)
	assert.ErrorContains(t, comp.Result.Error, "forcefully reclaimed")
	assert.Equal(t, 2, comp.Result.Attempts)

	// Unblock the abandoned goroutine, then shut down cleanly.
	close(release)
	pool.Close()
}

func TestWorkerPool_CapsInFlight(t *testing.T) {
	const size = 2
	var inFlight, peak atomic.Int64
	gate := make(chan struct{})

	runner := RunnerFunc(func(ctx context.Context, tc types.TestCase) (types.RawOutcome, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		<-gate
		inFlight.Add(-1)
		return types.RawOutcome{}, nil
	})

	pool := NewWorkerPool(runner, size, time.Second, log.New())
	pool.Start()

	go func() {
		for i := 0; i < 6; i++ {
			pool.Submit(Dispatch{NodeID: "n", Case: types.TestCase{ID: "n"}, Ctx: context.Background(), Attempt: 1})
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(gate)
	for i := 0; i < 6; i++ {
		collectOne(t, pool)
	}
	pool.Close()

	assert.LessOrEqual(t, peak.Load(), int64(size))
}
