package types

import (
	"time"
)

// TestStatus represents the possible states of a test node during a run
type TestStatus string

const (
	TestStatusPending   TestStatus = "pending"
	TestStatusReady     TestStatus = "ready"
	TestStatusRunning   TestStatus = "running"
	TestStatusPassed    TestStatus = "passed"
	TestStatusFailed    TestStatus = "failed"
	TestStatusTimedOut  TestStatus = "timeout"
	TestStatusCancelled TestStatus = "cancelled"
	TestStatusSkipped   TestStatus = "skipped"
)

// IsTerminal reports whether no further transition is possible from s.
func (s TestStatus) IsTerminal() bool {
	switch s {
	case TestStatusPassed, TestStatusFailed, TestStatusTimedOut, TestStatusCancelled, TestStatusSkipped:
		return true
	default:
		return false
	}
}

// TestCase describes a single executable test as consumed by the orchestrator.
// The orchestrator never interprets Source; it is handed verbatim to the
// TestRunner collaborator.
type TestCase struct {
	ID         string
	Source     string
	Complexity float64
	Timeout    time.Duration
	DependsOn  []string
}

// TestSuite is an ordered collection of test cases. Order matters: it is the
// tie-breaker when two ready nodes have equal complexity.
type TestSuite struct {
	Name  string
	Cases []TestCase
}

// RawOutcome is what a TestRunner reports back for one execution.
type RawOutcome struct {
	Stdout     string
	Stderr     string
	ExitStatus int
	Duration   time.Duration
}

// TestResult captures the terminal outcome of a single test node.
// It is immutable once produced; the aggregator rejects duplicates rather
// than merging them.
type TestResult struct {
	NodeID   string
	Status   TestStatus
	Duration time.Duration
	Error    error  // diagnostic for failed/timed-out/cancelled nodes
	Stdout   string // captured runner stdout
	Stderr   string // captured runner stderr
	Attempts int    // number of executions, >1 only under a retry policy
}

// RunClassification is the overall outcome of a run.
type RunClassification string

const (
	RunCompleted RunClassification = "completed"
	RunTimedOut  RunClassification = "timeout"
	RunCancelled RunClassification = "cancelled"
)

// ReportStats holds aggregate counts for a run.
type ReportStats struct {
	Total     int
	Passed    int
	Failed    int
	TimedOut  int
	Cancelled int
	Skipped   int
}

// TestReport is the final product of a run: exactly one TestResult per node,
// wall-clock bounds and an overall classification. It is created once per run
// and finalized only when every node holds a terminal status.
type TestReport struct {
	RunID          string
	Classification RunClassification
	Stats          ReportStats
	Results        map[string]*TestResult
	Start          time.Time
	End            time.Time
	WallClock      time.Duration
}

// ProgressUpdate is a single status-change event streamed to external
// consumers. Counters describe the run at the instant the event was produced.
type ProgressUpdate struct {
	NodeID    string
	Status    TestStatus
	Timestamp time.Time

	Completed int
	Total     int
	Failed    int
	Elapsed   time.Duration
	Remaining time.Duration // rough estimate, zero until at least one node completes
}

// ResourceSnapshot is a point-in-time view of system utilization used by the
// concurrency controller. Transient, never persisted.
type ResourceSnapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	ActiveWorkers int
	SampledAt     time.Time
}
