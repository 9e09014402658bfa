package runner

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testforge/test-orchestrator/metrics"
	"github.com/testforge/test-orchestrator/types"
)

// ResultAggregator accumulates terminal results into the run's TestReport.
// It accepts exactly one terminal result per node id: duplicate deliveries
// (racing cancellation against completion, retry edges) are rejected with a
// warning and never alter the report.
type ResultAggregator struct {
	log log.Logger

	mu      sync.Mutex
	runID   string
	total   int
	start   time.Time
	results map[string]*types.TestResult
	stats   types.ReportStats
	final   bool
}

// NewResultAggregator creates the aggregator for one run of total nodes.
func NewResultAggregator(runID string, total int, logger log.Logger) *ResultAggregator {
	return &ResultAggregator{
		log:     logger.New("component", "result-aggregator"),
		runID:   runID,
		total:   total,
		start:   time.Now(),
		results: make(map[string]*types.TestResult, total),
		stats:   types.ReportStats{Total: total},
	}
}

// Record accepts one terminal result. Returns false when the delivery is a
// duplicate or the report is already finalized.
func (a *ResultAggregator) Record(res *types.TestResult) bool {
	if res == nil || !res.Status.IsTerminal() {
		a.log.Error("Rejected non-terminal result delivery", "result", res)
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.final {
		a.log.Warn("Rejected result delivered after finalization", "test", res.NodeID)
		return false
	}
	if _, dup := a.results[res.NodeID]; dup {
		a.log.Warn("Rejected duplicate terminal result", "test", res.NodeID, "status", res.Status)
		return false
	}

	a.results[res.NodeID] = res
	switch res.Status {
	case types.TestStatusPassed:
		a.stats.Passed++
	case types.TestStatusFailed:
		a.stats.Failed++
	case types.TestStatusTimedOut:
		a.stats.TimedOut++
	case types.TestStatusCancelled:
		a.stats.Cancelled++
	case types.TestStatusSkipped:
		a.stats.Skipped++
	}
	metrics.RecordTestResult(a.runID, string(res.Status))
	return true
}

// Recorded reports how many terminal results have been accepted.
func (a *ResultAggregator) Recorded() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}

// Stats returns a copy of the current aggregate counts. Safe for streaming
// partial snapshots while the run is in flight.
func (a *ResultAggregator) Stats() types.ReportStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Finalize seals the report. Only the coordinator calls this, after every
// node holds a terminal status. Further deliveries are rejected.
func (a *ResultAggregator) Finalize(classification types.RunClassification) *types.TestReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.final = true
	end := time.Now()

	results := make(map[string]*types.TestResult, len(a.results))
	for id, res := range a.results {
		results[id] = res
	}

	return &types.TestReport{
		RunID:          a.runID,
		Classification: classification,
		Stats:          a.stats,
		Results:        results,
		Start:          a.start,
		End:            end,
		WallClock:      end.Sub(a.start),
	}
}
