package runner

import (
	"context"

	"github.com/testforge/test-orchestrator/types"
)

// TestRunner is the capability the orchestrator consumes to execute a single
// test case. Implementations are expected to observe ctx cancellation within
// the configured grace period; non-cooperative runners are reclaimed
// forcefully by the worker pool.
//
// Anything with this method qualifies; no hierarchy is required.
type TestRunner interface {
	Execute(ctx context.Context, tc types.TestCase) (types.RawOutcome, error)
}

// RunnerFunc adapts a plain function to the TestRunner interface.
type RunnerFunc func(ctx context.Context, tc types.TestCase) (types.RawOutcome, error)

func (f RunnerFunc) Execute(ctx context.Context, tc types.TestCase) (types.RawOutcome, error) {
	return f(ctx, tc)
}
