// Package executor implements the staged compile-and-run protocol used by
// language backends. Every execution attempt runs in its own scratch
// directory, each stage is bounded by the full configured timeout, and child
// processes are hard-killed on expiry.
package executor

import "context"

// Kind tags a failed outcome with its cause.
type Kind string

const (
	KindToolchainMissing Kind = "toolchain_missing"
	KindCompileTimeout   Kind = "compile_timeout"
	KindCompileFailure   Kind = "compile_failure"
	KindExecutionTimeout Kind = "execution_timeout"
	KindRuntimeFailure   Kind = "runtime_failure"
	KindNoExecutor       Kind = "no_executor"
)

// Outcome is the uniform result of one execution attempt. Kind is empty on
// success and set to the failure cause otherwise. Errors never propagate past
// this type: an executor always reports through an Outcome.
type Outcome struct {
	OK     bool   `json:"ok"`
	Kind   Kind   `json:"kind,omitempty"`
	Output string `json:"output"`
}

// Func is the single contract a language backend must satisfy: source text in,
// outcome out. Implementations hold no state; the toolchain is resolved fresh
// on every call.
type Func func(ctx context.Context, source string) Outcome

// Success builds a successful outcome. Empty output is replaced with an
// explicit marker so success is never confused with an empty failure.
func Success(output string) Outcome {
	if output == "" {
		output = "(no output)"
	}
	return Outcome{OK: true, Output: output}
}

// Failure builds a failed outcome tagged with kind.
func Failure(kind Kind, output string) Outcome {
	return Outcome{OK: false, Kind: kind, Output: output}
}
