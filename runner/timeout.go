package runner

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testforge/test-orchestrator/types"
)

// TimeoutManager tracks one deadline per dispatched node plus the whole-run
// deadline. Per-node contexts derive from the run context, so the run-level
// deadline or an external cancellation escalates every tracked node at once.
type TimeoutManager struct {
	defaultTimeout time.Duration
	grace          time.Duration
	log            log.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewTimeoutManager builds a manager for one run.
func NewTimeoutManager(cfg types.ExecutionConfig, logger log.Logger) *TimeoutManager {
	return &TimeoutManager{
		defaultTimeout: cfg.PerTestTimeoutDefault,
		grace:          cfg.GracePeriod,
		log:            logger.New("component", "timeout-manager"),
		active:         make(map[string]context.CancelFunc),
	}
}

// RunContext applies the whole-run deadline to ctx. A zero globalTimeout
// means no run-level deadline.
func (tm *TimeoutManager) RunContext(ctx context.Context, globalTimeout time.Duration) (context.Context, context.CancelFunc) {
	if globalTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, globalTimeout)
}

// Track registers a dispatched node and returns its execution context,
// carrying the node's explicit timeout or the configured default.
func (tm *TimeoutManager) Track(runCtx context.Context, nodeID string, explicit time.Duration) context.Context {
	timeout := explicit
	if timeout <= 0 {
		timeout = tm.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(runCtx, timeout)

	tm.mu.Lock()
	tm.active[nodeID] = cancel
	tm.mu.Unlock()

	return ctx
}

// Forget releases the deadline resources of a node that reached a terminal
// result.
func (tm *TimeoutManager) Forget(nodeID string) {
	tm.mu.Lock()
	cancel, ok := tm.active[nodeID]
	if ok {
		delete(tm.active, nodeID)
	}
	tm.mu.Unlock()
	if ok {
		cancel()
	}
}

// EscalateAll cancels every tracked node. Used when the run deadline fires or
// an external cancellation arrives; the worker pool's grace handling turns
// the cancellation forceful for non-cooperative runners.
func (tm *TimeoutManager) EscalateAll() {
	tm.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(tm.active))
	n := len(tm.active)
	for id, cancel := range tm.active {
		cancels = append(cancels, cancel)
		delete(tm.active, id)
	}
	tm.mu.Unlock()

	if n > 0 {
		tm.log.Warn("Escalating cancellation of all running tests", "count", n, "grace", tm.grace)
	}
	for _, cancel := range cancels {
		cancel()
	}
}

// TrackedCount returns the number of nodes with live deadlines.
func (tm *TimeoutManager) TrackedCount() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.active)
}

// Grace returns the configured grace period.
func (tm *TimeoutManager) Grace() time.Duration {
	return tm.grace
}
