// Package reporting renders finalized TestReports for console and file
// consumers. The orchestrator core mandates no persisted format; these sinks
// are one serialization, not the only one.
package reporting

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/testforge/test-orchestrator/types"
)

// RenderSummaryTable renders a report as a human-readable table, one row per
// test in id order.
func RenderSummaryTable(report *types.TestReport) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Test Run %s (%s, %s)",
		report.RunID, report.Classification, formatDuration(report.WallClock)))

	t.AppendHeader(table.Row{"ID", "Status", "Attempts", "Duration", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Attempts", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	ids := make([]string, 0, len(report.Results))
	for id := range report.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res := report.Results[id]
		errText := ""
		if res.Error != nil {
			errText = res.Error.Error()
		}
		t.AppendRow(table.Row{
			res.NodeID,
			statusGlyph(res.Status),
			res.Attempts,
			formatDuration(res.Duration),
			errText,
		})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d tests", report.Stats.Total),
		fmt.Sprintf("%d passed / %d failed / %d timeout / %d cancelled / %d skipped",
			report.Stats.Passed, report.Stats.Failed, report.Stats.TimedOut,
			report.Stats.Cancelled, report.Stats.Skipped),
		"", "", "",
	})

	return t.Render()
}

// statusGlyph returns a marked string for a terminal status.
func statusGlyph(status types.TestStatus) string {
	switch status {
	case types.TestStatusPassed:
		return "✓ pass"
	case types.TestStatusSkipped:
		return "- skip"
	case types.TestStatusCancelled:
		return "· cancelled"
	case types.TestStatusTimedOut:
		return "✗ timeout"
	default:
		return "✗ fail"
	}
}

// formatDuration rounds to the millisecond for table display.
func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
