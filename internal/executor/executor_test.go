package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable shell script in dir.
func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
}

// setupFakeToolchains installs fake compiler binaries on PATH and returns the
// bin directory. The real PATH is kept so scripts can still find coreutils.
func setupFakeToolchains(t *testing.T) string {
	t.Helper()
	bin := t.TempDir()

	// okcc "compiles" by copying the source (itself a shell script) to the
	// output path and marking it executable.
	writeScript(t, bin, "okcc", `
out=""
src=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    *)  src="$1"; shift ;;
  esac
done
cp "$src" "$out"
chmod +x "$out"
`)

	// badcc always rejects its input with a diagnostic.
	writeScript(t, bin, "badcc", `
echo "main.src:1: syntax error near token" >&2
exit 1
`)

	// slowcc never finishes within a short timeout.
	writeScript(t, bin, "slowcc", `sleep 30`)

	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	return bin
}

func compileReq(toolchain string, timeout time.Duration, scratch string) CompileRequest {
	return CompileRequest{
		Language:    "fake",
		Toolchains:  []string{toolchain},
		Flags:       []string{"-O2"},
		SourceExt:   ".src",
		Timeout:     timeout,
		ScratchRoot: scratch,
	}
}

func TestCompileAndRunSuccess(t *testing.T) {
	setupFakeToolchains(t)

	out := CompileAndRun(context.Background(), "#!/bin/sh\necho hello world\n",
		compileReq("okcc", 5*time.Second, ""))
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}
	if !strings.Contains(out.Output, "hello world") {
		t.Errorf("expected output to contain 'hello world', got %q", out.Output)
	}
}

func TestCompileAndRunEmptyOutput(t *testing.T) {
	setupFakeToolchains(t)

	out := CompileAndRun(context.Background(), "#!/bin/sh\nexit 0\n",
		compileReq("okcc", 5*time.Second, ""))
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Output != "(no output)" {
		t.Errorf("expected '(no output)' marker, got %q", out.Output)
	}
}

func TestCompileAndRunToolchainMissing(t *testing.T) {
	scratch := t.TempDir()

	out := CompileAndRun(context.Background(), "irrelevant",
		compileReq("no-such-compiler-anywhere", time.Second, scratch))
	if out.OK || out.Kind != KindToolchainMissing {
		t.Fatalf("expected toolchain_missing, got %+v", out)
	}

	// Resolution failure must short-circuit before any filesystem work.
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatalf("read scratch root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no scratch directories, found %d", len(entries))
	}
}

func TestCompileAndRunCompileFailure(t *testing.T) {
	setupFakeToolchains(t)

	out := CompileAndRun(context.Background(), "whatever",
		compileReq("badcc", 5*time.Second, ""))
	if out.OK || out.Kind != KindCompileFailure {
		t.Fatalf("expected compile_failure, got %+v", out)
	}
	if !strings.Contains(out.Output, "syntax error") {
		t.Errorf("expected compiler diagnostics in output, got %q", out.Output)
	}
}

func TestCompileAndRunCompileTimeout(t *testing.T) {
	setupFakeToolchains(t)

	start := time.Now()
	out := CompileAndRun(context.Background(), "whatever",
		compileReq("slowcc", 300*time.Millisecond, ""))
	if out.OK || out.Kind != KindCompileTimeout {
		t.Fatalf("expected compile_timeout, got %+v", out)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long to fire: %v", elapsed)
	}
}

func TestCompileAndRunExecutionTimeout(t *testing.T) {
	setupFakeToolchains(t)

	// Compilation must succeed first; only the run stage hangs.
	out := CompileAndRun(context.Background(), "#!/bin/sh\nwhile true; do sleep 0.05; done\n",
		compileReq("okcc", 300*time.Millisecond, ""))
	if out.OK || out.Kind != KindExecutionTimeout {
		t.Fatalf("expected execution_timeout, got %+v", out)
	}
}

func TestCompileAndRunRuntimeFailure(t *testing.T) {
	setupFakeToolchains(t)

	out := CompileAndRun(context.Background(), "#!/bin/sh\necho boom >&2\nexit 3\n",
		compileReq("okcc", 5*time.Second, ""))
	if out.OK || out.Kind != KindRuntimeFailure {
		t.Fatalf("expected runtime_failure, got %+v", out)
	}
	if !strings.Contains(out.Output, "exit code 3") {
		t.Errorf("expected exit code in output, got %q", out.Output)
	}
	if !strings.Contains(out.Output, "boom") {
		t.Errorf("expected stderr in output, got %q", out.Output)
	}
}

func TestScratchDirAlwaysRemoved(t *testing.T) {
	setupFakeToolchains(t)

	cases := []struct {
		name      string
		toolchain string
		source    string
		timeout   time.Duration
	}{
		{"success", "okcc", "#!/bin/sh\necho hi\n", 5 * time.Second},
		{"compile failure", "badcc", "whatever", 5 * time.Second},
		{"compile timeout", "slowcc", "whatever", 300 * time.Millisecond},
		{"execution timeout", "okcc", "#!/bin/sh\nsleep 30\n", 300 * time.Millisecond},
		{"runtime failure", "okcc", "#!/bin/sh\nexit 1\n", 5 * time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scratch := t.TempDir()
			CompileAndRun(context.Background(), tc.source,
				compileReq(tc.toolchain, tc.timeout, scratch))

			entries, err := os.ReadDir(scratch)
			if err != nil {
				t.Fatalf("read scratch root: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("scratch directory leaked: %d entries remain", len(entries))
			}
		})
	}
}

func TestRunInterpretedSuccess(t *testing.T) {
	out := RunInterpreted(context.Background(), "echo interpreted\n", InterpretedRequest{
		Language:   "shell",
		Toolchains: []string{"sh"},
		SourceExt:  ".sh",
		Timeout:    5 * time.Second,
	})
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}
	if !strings.Contains(out.Output, "interpreted") {
		t.Errorf("unexpected output %q", out.Output)
	}
}

func TestRunInterpretedNonzeroExit(t *testing.T) {
	out := RunInterpreted(context.Background(), "echo nope >&2\nexit 7\n", InterpretedRequest{
		Language:   "shell",
		Toolchains: []string{"sh"},
		SourceExt:  ".sh",
		Timeout:    5 * time.Second,
	})
	if out.OK || out.Kind != KindRuntimeFailure {
		t.Fatalf("expected runtime_failure, got %+v", out)
	}
	if !strings.Contains(out.Output, "exit code 7") {
		t.Errorf("expected exit code in output, got %q", out.Output)
	}
}

func TestRunInterpretedTimeoutKillsChild(t *testing.T) {
	scratch := t.TempDir()
	start := time.Now()
	out := RunInterpreted(context.Background(), "sleep 30\n", InterpretedRequest{
		Language:    "shell",
		Toolchains:  []string{"sh"},
		SourceExt:   ".sh",
		Timeout:     300 * time.Millisecond,
		ScratchRoot: scratch,
	})
	if out.OK || out.Kind != KindExecutionTimeout {
		t.Fatalf("expected execution_timeout, got %+v", out)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long to fire: %v", elapsed)
	}

	// Timeout is a normal exit path for cleanup.
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatalf("read scratch root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch directory leaked after timeout: %d entries remain", len(entries))
	}
}

func TestRunInterpretedMissingInterpreter(t *testing.T) {
	out := RunInterpreted(context.Background(), "print('hi')", InterpretedRequest{
		Language:   "fake",
		Toolchains: []string{"no-such-interpreter-anywhere"},
		SourceExt:  ".fake",
	})
	if out.OK || out.Kind != KindToolchainMissing {
		t.Fatalf("expected toolchain_missing, got %+v", out)
	}
}

func TestSuccessEmptyOutputMarker(t *testing.T) {
	if got := Success("").Output; got != "(no output)" {
		t.Errorf("expected '(no output)', got %q", got)
	}
	if got := Success("x").Output; got != "x" {
		t.Errorf("expected 'x', got %q", got)
	}
}
