package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mattjoyce/runlet/internal/toolchain"
)

// sourceFileName is the fixed basename for the snippet inside a scratch dir.
const sourceFileName = "main"

// CompileRequest describes a compiled-language backend.
type CompileRequest struct {
	// Language is the key this backend serves, used only in diagnostics.
	Language string
	// Toolchains are candidate compiler binaries, in preference order.
	Toolchains []string
	// Flags are passed to the compiler before the output and source paths.
	Flags []string
	// SourceExt is the source filename extension, including the dot.
	SourceExt string
	// Timeout bounds the compile stage and the run stage independently; each
	// stage gets the full duration. Zero means DefaultTimeout.
	Timeout time.Duration
	// ScratchRoot is the parent for per-attempt scratch directories.
	// Empty means the system temp dir.
	ScratchRoot string
}

// CompileAndRun executes one attempt of a compiled-language snippet: resolve
// the toolchain, write the source into a fresh scratch directory, compile,
// run the artifact, and remove the scratch directory on every exit path.
func CompileAndRun(ctx context.Context, source string, req CompileRequest) Outcome {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// Toolchain resolution short-circuits before any filesystem work.
	cc, err := toolchain.Find(req.Toolchains...)
	if err != nil {
		return Failure(KindToolchainMissing,
			fmt.Sprintf("no %s toolchain found (tried: %s)", req.Language, strings.Join(req.Toolchains, ", ")))
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

	artifact := filepath.Join(dir, artifactName())
	argv := make([]string, 0, len(req.Flags)+4)
	argv = append(argv, cc)
	argv = append(argv, req.Flags...)
	argv = append(argv, "-o", artifact, srcPath)

	compile := runStage(ctx, argv, dir, timeout)
	switch {
	case compile.timedOut:
		return Failure(KindCompileTimeout, fmt.Sprintf("compilation exceeded %v timeout", timeout))
	case compile.spawnErr != nil:
		return Failure(KindCompileFailure, fmt.Sprintf("run compiler: %v", compile.spawnErr))
	case compile.exitCode != 0:
		return Failure(KindCompileFailure, "compilation failed:\n"+compile.stdout+compile.stderr)
	}

	// The run stage gets a fresh instance of the full timeout: a slow but
	// valid compile must not starve execution time.
	run := runStage(ctx, []string{artifact}, dir, timeout)
	switch {
	case run.timedOut:
		return Failure(KindExecutionTimeout, fmt.Sprintf("execution exceeded %v timeout", timeout))
	case run.spawnErr != nil:
		return Failure(KindRuntimeFailure, fmt.Sprintf("run artifact: %v", run.spawnErr))
	case run.exitCode != 0:
		return Failure(KindRuntimeFailure, fmt.Sprintf("exit code %d\n%s", run.exitCode, run.stderr))
	}
	return Success(run.stdout)
}

// artifactName returns the platform-appropriate executable name.
func artifactName() string {
	if runtime.GOOS == "windows" {
		return "snippet.exe"
	}
	return "snippet"
}
