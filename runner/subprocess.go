package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testforge/test-orchestrator/types"
)

// SubprocessRunner executes each test case by invoking an external test
// command with the case's source reference appended, e.g.
// {"pytest", "-x"} + "tests/test_db.py::test_setup". Cancellation is
// cooperative first (SIGTERM to the process group) and forceful after the
// grace period (SIGKILL), so unkillable children cannot pin a worker slot.
type SubprocessRunner struct {
	command []string
	dir     string
	env     []string
	grace   time.Duration
	log     log.Logger
}

// NewSubprocessRunner builds a runner around the given command line. Extra
// env entries are appended to the inherited environment.
func NewSubprocessRunner(command []string, dir string, env []string, grace time.Duration, logger log.Logger) (*SubprocessRunner, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("runner command cannot be empty")
	}
	return &SubprocessRunner{
		command: command,
		dir:     dir,
		env:     env,
		grace:   grace,
		log:     logger.New("component", "subprocess-runner"),
	}, nil
}

// Execute runs the test command for one case and captures its output.
func (r *SubprocessRunner) Execute(ctx context.Context, tc types.TestCase) (types.RawOutcome, error) {
	args := append(append([]string{}, r.command[1:]...), tc.Source)
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), r.env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Children get their own process group so cancellation reaches the whole
	// test process tree, not just the immediate child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		r.log.Debug("Sending SIGTERM to test process group", "test", tc.ID, "pid", cmd.Process.Pid)
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	// exec promotes to SIGKILL when the child ignores Cancel for this long.
	cmd.WaitDelay = r.grace

	start := time.Now()
	r.log.Debug("Executing test", "test", tc.ID, "source", tc.Source)
	err := cmd.Run()
	elapsed := time.Since(start)

	outcome := types.RawOutcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}
	if cmd.ProcessState != nil {
		outcome.ExitStatus = cmd.ProcessState.ExitCode()
	}

	// A dead context is reported through the context, not as a runner error;
	// the pool classifies it as TimedOut or Cancelled.
	if ctx.Err() != nil {
		return outcome, nil
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			// Non-zero exit is a test failure, carried by ExitStatus.
			return outcome, nil
		}
		return outcome, fmt.Errorf("failed to invoke test command: %w", err)
	}
	return outcome, nil
}
