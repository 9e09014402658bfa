package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/testforge/test-orchestrator/metrics"
	"github.com/testforge/test-orchestrator/types"
)

// ResourceSampler produces point-in-time resource snapshots for the
// concurrency controller.
type ResourceSampler interface {
	Sample(ctx context.Context) (types.ResourceSnapshot, error)
}

// systemSampler reads CPU and memory utilization from the host via gopsutil.
type systemSampler struct {
	activeWorkers func() int
}

// NewSystemSampler returns a sampler backed by host telemetry. activeWorkers
// reports the current number of busy execution slots and may be nil.
func NewSystemSampler(activeWorkers func() int) ResourceSampler {
	return &systemSampler{activeWorkers: activeWorkers}
}

func (s *systemSampler) Sample(ctx context.Context) (types.ResourceSnapshot, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return types.ResourceSnapshot{}, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return types.ResourceSnapshot{}, err
	}

	snap := types.ResourceSnapshot{
		MemoryPercent: vm.UsedPercent / 100.0,
		SampledAt:     time.Now(),
	}
	if len(percents) > 0 {
		snap.CPUPercent = percents[0] / 100.0
	}
	if s.activeWorkers != nil {
		snap.ActiveWorkers = s.activeWorkers()
	}
	return snap, nil
}

// ConcurrencyController maintains an adaptive worker-slot ceiling from
// periodic resource telemetry. The limit shrinks by one when utilization
// breaches the high watermark, grows by one after GrowAfter consecutive
// samples below the low watermark, and never changes more often than the
// cooldown allows. A sampling failure degrades the controller to a static
// MaxConcurrency limit (fail-open) rather than aborting the run.
//
// Permit and Release are lock-free; the limit is read-mostly and updated
// atomically by the sampling goroutine only.
type ConcurrencyController struct {
	limit  atomic.Int64
	active atomic.Int64

	min, max  int64
	high, low float64
	growAfter int
	cooldown  time.Duration
	interval  time.Duration

	sampler ResourceSampler
	log     log.Logger

	// Touched only by the sampling goroutine.
	lowStreak  int
	lastChange time.Time
	failedOpen bool

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewConcurrencyController builds a controller starting at the configured
// MaxConcurrency. Pass a nil sampler to keep the limit static.
func NewConcurrencyController(cfg types.ExecutionConfig, sampler ResourceSampler, logger log.Logger) *ConcurrencyController {
	c := &ConcurrencyController{
		min:       int64(cfg.MinConcurrency),
		max:       int64(cfg.MaxConcurrency),
		high:      cfg.HighWatermark,
		low:       cfg.LowWatermark,
		growAfter: cfg.GrowAfter,
		cooldown:  cfg.AdjustCooldown,
		interval:  cfg.SampleInterval,
		sampler:   sampler,
		log:       logger.New("component", "concurrency-controller"),
		done:      make(chan struct{}),
	}
	c.limit.Store(c.max)
	metrics.SetConcurrencyLimit(int(c.max))
	return c
}

// Start launches the periodic sampling loop. No-op when the controller has no
// sampler.
func (c *ConcurrencyController) Start(ctx context.Context) {
	if c.sampler == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				snap, err := c.sampler.Sample(ctx)
				c.observe(snap, err)
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the sampling loop and waits for it to exit.
func (c *ConcurrencyController) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

// CurrentLimit returns the worker-slot ceiling in effect right now.
func (c *ConcurrencyController) CurrentLimit() int {
	return int(c.limit.Load())
}

// Active returns the number of currently held permits.
func (c *ConcurrencyController) Active() int {
	return int(c.active.Load())
}

// Permit attempts to claim an execution slot without blocking. Lowering the
// limit never revokes held permits; it only stops new ones being granted.
func (c *ConcurrencyController) Permit() bool {
	for {
		cur := c.active.Load()
		if cur >= c.limit.Load() {
			return false
		}
		if c.active.CompareAndSwap(cur, cur+1) {
			metrics.SetActiveWorkers(int(c.active.Load()))
			return true
		}
	}
}

// Release returns a previously claimed slot.
func (c *ConcurrencyController) Release() {
	n := c.active.Add(-1)
	if n < 0 {
		panic("concurrency controller: release without permit")
	}
	metrics.SetActiveWorkers(int(n))
}

// observe folds one sample (or sampling error) into the limit.
func (c *ConcurrencyController) observe(snap types.ResourceSnapshot, err error) {
	if err != nil {
		if !c.failedOpen {
			c.failedOpen = true
			c.limit.Store(c.max)
			metrics.SetConcurrencyLimit(int(c.max))
			metrics.RecordError("resource_sampling")
			c.log.Warn("Resource sampling failed; falling back to static concurrency limit",
				"limit", c.max, "error", err)
		}
		return
	}
	if c.failedOpen {
		c.failedOpen = false
		c.log.Info("Resource sampling recovered; resuming adaptive concurrency")
	}

	util := snap.CPUPercent
	if snap.MemoryPercent > util {
		util = snap.MemoryPercent
	}

	switch {
	case util > c.high:
		c.lowStreak = 0
		c.tryAdjust(-1, util)
	case util < c.low:
		c.lowStreak++
		if c.lowStreak >= c.growAfter {
			if c.tryAdjust(+1, util) {
				c.lowStreak = 0
			}
		}
	default:
		c.lowStreak = 0
	}
}

// tryAdjust applies a one-step limit change, honoring bounds and cooldown.
func (c *ConcurrencyController) tryAdjust(delta int64, util float64) bool {
	if time.Since(c.lastChange) < c.cooldown {
		return false
	}
	cur := c.limit.Load()
	next := cur + delta
	if next < c.min {
		next = c.min
	}
	if next > c.max {
		next = c.max
	}
	if next == cur {
		return false
	}
	c.limit.Store(next)
	c.lastChange = time.Now()
	metrics.SetConcurrencyLimit(int(next))
	c.log.Debug("Adjusted concurrency limit", "from", cur, "to", next, "utilization", util)
	return true
}
