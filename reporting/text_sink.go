package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/testforge/test-orchestrator/types"
)

// TextSummarySink writes a per-run directory containing the summary table
// plus captured output for every non-passing test.
type TextSummarySink struct {
	baseDir string
	log     log.Logger
}

// NewTextSummarySink creates a sink rooted at baseDir.
func NewTextSummarySink(baseDir string, logger log.Logger) *TextSummarySink {
	return &TextSummarySink{
		baseDir: baseDir,
		log:     logger.New("component", "text-sink"),
	}
}

// Write persists the report under <baseDir>/<runID>/.
func (s *TextSummarySink) Write(report *types.TestReport) error {
	runDir := filepath.Join(s.baseDir, report.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create report directory %q", runDir)
	}

	summaryPath := filepath.Join(runDir, "summary.txt")
	if err := os.WriteFile(summaryPath, []byte(RenderSummaryTable(report)+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "failed to write summary")
	}

	for id, res := range report.Results {
		if res.Status == types.TestStatusPassed || res.Status == types.TestStatusSkipped {
			continue
		}
		if res.Stdout == "" && res.Stderr == "" && res.Error == nil {
			continue
		}
		body := fmt.Sprintf("test: %s\nstatus: %s\nattempts: %d\nduration: %s\n",
			id, res.Status, res.Attempts, res.Duration)
		if res.Error != nil {
			body += fmt.Sprintf("error: %v\n", res.Error)
		}
		if res.Stdout != "" {
			body += "\n--- stdout ---\n" + res.Stdout
		}
		if res.Stderr != "" {
			body += "\n--- stderr ---\n" + res.Stderr
		}
		outPath := filepath.Join(runDir, sanitizeFilename(id)+".txt")
		if err := os.WriteFile(outPath, []byte(body), 0o644); err != nil {
			return errors.Wrapf(err, "failed to write output capture for %q", id)
		}
	}

	s.log.Info("Report written", "dir", runDir, "tests", report.Stats.Total)
	return nil
}

// sanitizeFilename replaces path separators so test ids cannot escape the run
// directory.
func sanitizeFilename(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch r {
		case '/', '\\', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
