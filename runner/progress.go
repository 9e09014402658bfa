package runner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testforge/test-orchestrator/types"
)

// ProgressReporter exposes a bounded stream of status-change events to
// external consumers. When the buffer is full the configured backpressure
// policy either blocks the producer or drops the oldest event; dropped events
// only affect visibility, never report correctness.
type ProgressReporter struct {
	policy types.BackpressurePolicy
	log    log.Logger

	ch      chan types.ProgressUpdate
	dropped atomic.Int64

	total     int
	start     time.Time
	completed atomic.Int64
	failed    atomic.Int64

	closeOnce sync.Once
	// dropMu serializes the evict-then-send path so two producers cannot
	// both evict for a single free slot.
	dropMu sync.Mutex
}

// NewProgressReporter builds a reporter for a run of total nodes.
func NewProgressReporter(cfg types.ExecutionConfig, total int, logger log.Logger) *ProgressReporter {
	return &ProgressReporter{
		policy: cfg.ProgressBackpressure,
		log:    logger.New("component", "progress-reporter"),
		ch:     make(chan types.ProgressUpdate, cfg.ProgressBufferSize),
		total:  total,
		start:  time.Now(),
	}
}

// Updates is the event stream for external consumers. Closed when the run
// finishes.
func (p *ProgressReporter) Updates() <-chan types.ProgressUpdate {
	return p.ch
}

// Publish emits one status-change event for a node.
func (p *ProgressReporter) Publish(nodeID string, status types.TestStatus) {
	if status.IsTerminal() {
		p.completed.Add(1)
		switch status {
		case types.TestStatusFailed, types.TestStatusTimedOut:
			p.failed.Add(1)
		}
	}

	u := types.ProgressUpdate{
		NodeID:    nodeID,
		Status:    status,
		Timestamp: time.Now(),
		Completed: int(p.completed.Load()),
		Total:     p.total,
		Failed:    int(p.failed.Load()),
		Elapsed:   time.Since(p.start),
	}
	if u.Completed > 0 && u.Completed < u.Total {
		perNode := u.Elapsed / time.Duration(u.Completed)
		u.Remaining = perNode * time.Duration(u.Total-u.Completed)
	}

	if p.policy == types.BlockProducer {
		p.ch <- u
		return
	}

	// Drop-oldest: evict one buffered event when full, then retry once.
	select {
	case p.ch <- u:
		return
	default:
	}
	p.dropMu.Lock()
	defer p.dropMu.Unlock()
	select {
	case <-p.ch:
		p.dropped.Add(1)
	default:
	}
	select {
	case p.ch <- u:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns the count of events evicted under the drop-oldest policy.
func (p *ProgressReporter) Dropped() int64 {
	return p.dropped.Load()
}

// Close ends the stream. Publish must not be called afterwards.
func (p *ProgressReporter) Close() {
	p.closeOnce.Do(func() {
		if n := p.dropped.Load(); n > 0 {
			p.log.Debug("Progress events dropped under backpressure", "count", n)
		}
		close(p.ch)
	})
}
