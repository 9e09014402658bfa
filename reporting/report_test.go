package reporting

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/test-orchestrator/types"
)

func sampleReport() *types.TestReport {
	return &types.TestReport{
		RunID:          "run-42",
		Classification: types.RunCompleted,
		Stats:          types.ReportStats{Total: 3, Passed: 1, Failed: 1, Skipped: 1},
		WallClock:      1234 * time.Millisecond,
		Results: map[string]*types.TestResult{
			"db_setup": {
				NodeID:   "db_setup",
				Status:   types.TestStatusPassed,
				Duration: 800 * time.Millisecond,
				Attempts: 1,
			},
			"db_query": {
				NodeID:   "db_query",
				Status:   types.TestStatusFailed,
				Duration: 400 * time.Millisecond,
				Attempts: 2,
				Error:    errors.New("rows mismatch"),
				Stderr:   "expected 3 rows, got 2",
			},
			"api_ping": {
				NodeID: "api_ping",
				Status: types.TestStatusSkipped,
				Error:  errors.New("skipped: upstream dependency failed"),
			},
		},
	}
}

func TestRenderSummaryTable(t *testing.T) {
	out := RenderSummaryTable(sampleReport())

	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "✓ pass")
	assert.Contains(t, out, "✗ fail")
	assert.Contains(t, out, "- skip")
	assert.Contains(t, out, "rows mismatch")
	assert.Contains(t, out, "1 passed / 1 failed / 0 timeout / 0 cancelled / 1 skipped")

	// Rows come out in id order.
	lines := strings.Split(out, "\n")
	pos := map[string]int{}
	for i, line := range lines {
		for _, id := range []string{"api_ping", "db_query", "db_setup"} {
			if strings.Contains(line, id) && pos[id] == 0 {
				pos[id] = i
			}
		}
	}
	require.NotZero(t, pos["api_ping"])
	assert.Less(t, pos["api_ping"], pos["db_query"])
	assert.Less(t, pos["db_query"], pos["db_setup"])
}
