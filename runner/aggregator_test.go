package runner

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/test-orchestrator/types"
)

func TestResultAggregator_RecordAndFinalize(t *testing.T) {
	aggr := NewResultAggregator("run-1", 3, log.New())

	require.True(t, aggr.Record(&types.TestResult{NodeID: "a", Status: types.TestStatusPassed, Duration: 10 * time.Millisecond}))
	require.True(t, aggr.Record(&types.TestResult{NodeID: "b", Status: types.TestStatusFailed, Error: errors.New("boom")}))
	require.True(t, aggr.Record(&types.TestResult{NodeID: "c", Status: types.TestStatusSkipped}))
	assert.Equal(t, 3, aggr.Recorded())

	report := aggr.Finalize(types.RunCompleted)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, types.RunCompleted, report.Classification)
	assert.Equal(t, 3, report.Stats.Total)
	assert.Equal(t, 1, report.Stats.Passed)
	assert.Equal(t, 1, report.Stats.Failed)
	assert.Equal(t, 1, report.Stats.Skipped)
	assert.Len(t, report.Results, 3)
	assert.GreaterOrEqual(t, report.WallClock, time.Duration(0))
}

func TestResultAggregator_RejectsDuplicates(t *testing.T) {
	aggr := NewResultAggregator("run-2", 1, log.New())

	require.True(t, aggr.Record(&types.TestResult{NodeID: "a", Status: types.TestStatusPassed}))

	// The second delivery for the same node must not alter the report,
	// regardless of status.
	assert.False(t, aggr.Record(&types.TestResult{NodeID: "a", Status: types.TestStatusFailed}))
	assert.Equal(t, 1, aggr.Recorded())

	stats := aggr.Stats()
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 0, stats.Failed)
}

func TestResultAggregator_RejectsNonTerminal(t *testing.T) {
	aggr := NewResultAggregator("run-3", 1, log.New())

	assert.False(t, aggr.Record(&types.TestResult{NodeID: "a", Status: types.TestStatusRunning}))
	assert.False(t, aggr.Record(nil))
	assert.Equal(t, 0, aggr.Recorded())
}

func TestResultAggregator_RejectsAfterFinalize(t *testing.T) {
	aggr := NewResultAggregator("run-4", 2, log.New())

	require.True(t, aggr.Record(&types.TestResult{NodeID: "a", Status: types.TestStatusPassed}))
	report := aggr.Finalize(types.RunCancelled)
	assert.Equal(t, types.RunCancelled, report.Classification)

	assert.False(t, aggr.Record(&types.TestResult{NodeID: "b", Status: types.TestStatusPassed}))
	assert.Equal(t, 1, aggr.Recorded())
}
