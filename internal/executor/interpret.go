package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattjoyce/runlet/internal/toolchain"
)

// InterpretedRequest describes an interpreted-language backend. There is no
// compile stage; the interpreter runs the snippet directly.
type InterpretedRequest struct {
	// Language is the key this backend serves, used only in diagnostics.
	Language string
	// Toolchains are candidate interpreter binaries, in preference order.
	Toolchains []string
	// Args are passed to the interpreter before the source path.
	Args []string
	// SourceExt is the source filename extension, including the dot.
	SourceExt string
	// Timeout bounds the run. Zero means DefaultTimeout.
	Timeout time.Duration
	// ScratchRoot is the parent for per-attempt scratch directories.
	// Empty means the system temp dir.
	ScratchRoot string
}

// RunInterpreted executes one attempt of an interpreted snippet with the same
// guarantees as CompileAndRun: fresh scratch directory, hard kill of the
// interpreter's process group on timeout, unconditional cleanup.
//
// The snippet always runs out of process. Running interpreted code on an
// in-process worker only abandons the worker when the timeout elapses; the
// computation keeps burning CPU in the background, so that approach is not
// offered here.
func RunInterpreted(ctx context.Context, source string, req InterpretedRequest) Outcome {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	interp, err := toolchain.Find(req.Toolchains...)
	if err != nil {
		return Failure(KindToolchainMissing,
			fmt.Sprintf("no %s interpreter found (tried: %s)", req.Language, strings.Join(req.Toolchains, ", ")))
	}

	dir, err := os.MkdirTemp(req.ScratchRoot, "runlet-")
	if err != nil {
		return Failure(KindRuntimeFailure, fmt.Sprintf("create scratch directory: %v", err))
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, sourceFileName+req.SourceExt)
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return Failure(KindRuntimeFailure, fmt.Sprintf("write source file: %v", err))
	}

	argv := make([]string, 0, len(req.Args)+2)
	argv = append(argv, interp)
	argv = append(argv, req.Args...)
	argv = append(argv, srcPath)

	run := runStage(ctx, argv, dir, timeout)
	switch {
	case run.timedOut:
		return Failure(KindExecutionTimeout, fmt.Sprintf("execution exceeded %v timeout", timeout))
	case run.spawnErr != nil:
		return Failure(KindRuntimeFailure, fmt.Sprintf("run interpreter: %v", run.spawnErr))
	case run.exitCode != 0:
		return Failure(KindRuntimeFailure, fmt.Sprintf("exit code %d\n%s", run.exitCode, run.stderr))
	}
	return Success(run.stdout)
}
