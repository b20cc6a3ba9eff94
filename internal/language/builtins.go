package language

import (
	"context"
	"strings"
	"time"

	"github.com/mattjoyce/runlet/internal/executor"
	"github.com/mattjoyce/runlet/internal/registry"
)

// Builtin describes one of the languages the service supports without any
// plugin manifest. Toolchain candidates are tried in order against PATH at
// execution time.
type Builtin struct {
	Name        string
	Interpreted bool
	Extension   string
	Toolchains  []string
	// Flags are compiler flags (compiled languages only).
	Flags []string
	// Args precede the source path on the interpreter command line
	// (interpreted languages only).
	Args []string
}

// Builtins returns the built-in language set in registration order.
func Builtins() []Builtin {
	return []Builtin{
		{
			Name:       "c",
			Extension:  ".c",
			Toolchains: []string{"gcc", "clang"},
			Flags:      []string{"-std=c11", "-O2", "-pipe"},
		},
		{
			Name:       "cpp",
			Extension:  ".cpp",
			Toolchains: []string{"g++", "clang++"},
			Flags:      []string{"-std=c++20", "-O2", "-pipe"},
		},
		{
			Name:       "go",
			Extension:  ".go",
			Toolchains: []string{"go"},
			Flags:      []string{"build"},
		},
		{
			Name:        "python",
			Interpreted: true,
			Extension:   ".py",
			Toolchains:  []string{"python3", "python"},
		},
		{
			Name:        "javascript",
			Interpreted: true,
			Extension:   ".js",
			Toolchains:  []string{"node"},
		},
	}
}

// Executor builds the executor function for a builtin. All stages share the
// given per-stage timeout; zero selects the executor default.
func (b Builtin) Executor(timeout time.Duration) executor.Func {
	if b.Interpreted {
		req := executor.InterpretedRequest{
			Language:   b.Name,
			Toolchains: b.Toolchains,
			Args:       b.Args,
			SourceExt:  b.Extension,
			Timeout:    timeout,
		}
		return func(ctx context.Context, source string) executor.Outcome {
			return executor.RunInterpreted(ctx, source, req)
		}
	}
	req := executor.CompileRequest{
		Language:   b.Name,
		Toolchains: b.Toolchains,
		Flags:      b.Flags,
		SourceExt:  b.Extension,
		Timeout:    timeout,
	}
	return func(ctx context.Context, source string) executor.Outcome {
		return executor.CompileAndRun(ctx, source, req)
	}
}

// RegisterBuiltins registers every builtin language with the registry,
// skipping names in disabled. A builtin is registered even when its
// toolchain is absent; resolution happens per execution so installing a
// compiler later requires no restart.
func RegisterBuiltins(reg *registry.Registry, timeout time.Duration, disabled []string) {
	skip := make(map[string]struct{}, len(disabled))
	for _, name := range disabled {
		skip[strings.ToLower(name)] = struct{}{}
	}
	for _, b := range Builtins() {
		if _, ok := skip[b.Name]; ok {
			continue
		}
		reg.Register(b.Name, b.Executor(timeout))
	}
}
