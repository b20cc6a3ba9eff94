package executor

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"
)

const (
	// maxOutputBytes caps the amount of stdout/stderr captured from a stage.
	maxOutputBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 2 * time.Second

	// DefaultTimeout is the wall-clock bound applied to each stage of an
	// attempt when the caller does not configure one.
	DefaultTimeout = 5 * time.Second
)

// stageResult captures one child-process stage of an attempt.
type stageResult struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
	spawnErr error
}

// runStage runs argv as a child process in dir with stdout and stderr captured
// separately, bounded by timeout. The child is placed in its own process group
// so that on expiry the whole tree is terminated: SIGTERM first, SIGKILL after
// a grace period. Context cancellation kills the group the same way.
func runStage(ctx context.Context, argv []string, dir string, timeout time.Duration) stageResult {
	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	// Termination is managed here, not by CommandContext: the process group
	// must die with the leader.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return stageResult{spawnErr: err}
	}
	pgid := cmd.Process.Pid

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-timeoutTimer.C:
		killGroup(pgid, waitErr)
		return stageResult{
			stdout:   truncate(stdout.String()),
			stderr:   truncate(stderr.String()),
			timedOut: true,
		}

	case <-ctx.Done():
		killGroup(pgid, waitErr)
		return stageResult{
			stdout:   truncate(stdout.String()),
			stderr:   truncate(stderr.String()),
			spawnErr: ctx.Err(),
		}

	case err := <-waitErr:
		res := stageResult{
			stdout: truncate(stdout.String()),
			stderr: truncate(stderr.String()),
		}
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				res.exitCode = exitErr.ExitCode()
			} else {
				res.spawnErr = err
			}
		}
		return res
	}
}

// killGroup terminates the process group: SIGTERM, wait up to the grace
// period, then SIGKILL. It blocks until the child has been reaped.
func killGroup(pgid int, waitErr <-chan error) {
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case <-waitErr:
		// Exited after SIGTERM.
	case <-grace.C:
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-waitErr
	}
}

func truncate(s string) string {
	if len(s) > maxOutputBytes {
		return s[:maxOutputBytes]
	}
	return s
}
