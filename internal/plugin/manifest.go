package plugin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/runlet/internal/executor"
)

// Mode selects which execution routine a plugin's language uses.
type Mode string

const (
	// ModeCompiled runs the staged compile-then-run protocol.
	ModeCompiled Mode = "compiled"
	// ModeInterpreted runs the interpreter directly on the source file.
	ModeInterpreted Mode = "interpreted"
)

func (m Mode) valid() bool {
	return m == ModeCompiled || m == ModeInterpreted
}

// Manifest defines the structure of a plugin's manifest.yaml file. A plugin
// is purely declarative: it names a language and describes how to build an
// executor for it, it carries no code of its own.
type Manifest struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Mode        Mode     `yaml:"mode"`
	Extension   string   `yaml:"extension"`
	Toolchains  []string `yaml:"toolchains"`
	Flags       []string `yaml:"flags,omitempty"`
	Args        []string `yaml:"args,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// validateManifest checks required manifest fields.
func validateManifest(m *Manifest) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !m.Mode.valid() {
		return fmt.Errorf("invalid mode %q (valid: compiled, interpreted)", m.Mode)
	}
	if m.Extension == "" || !strings.HasPrefix(m.Extension, ".") {
		return fmt.Errorf("extension must start with a dot, got %q", m.Extension)
	}
	if strings.Contains(m.Extension, "/") || strings.Contains(m.Extension, "..") {
		return fmt.Errorf("extension contains path separators: %s", m.Extension)
	}
	if len(m.Toolchains) == 0 {
		return fmt.Errorf("at least one toolchain candidate is required")
	}
	if m.Mode == ModeInterpreted && len(m.Flags) > 0 {
		return fmt.Errorf("flags are only valid for compiled mode (use args)")
	}
	if m.Mode == ModeCompiled && len(m.Args) > 0 {
		return fmt.Errorf("args are only valid for interpreted mode (use flags)")
	}
	return nil
}

// buildExecutor turns a validated manifest into an executor function.
func buildExecutor(m Manifest, timeout time.Duration) executor.Func {
	if m.Mode == ModeCompiled {
		req := executor.CompileRequest{
			Language:   m.Name,
			Toolchains: m.Toolchains,
			Flags:      m.Flags,
			SourceExt:  m.Extension,
			Timeout:    timeout,
		}
		return func(ctx context.Context, source string) executor.Outcome {
			return executor.CompileAndRun(ctx, source, req)
		}
	}
	req := executor.InterpretedRequest{
		Language:   m.Name,
		Toolchains: m.Toolchains,
		Args:       m.Args,
		SourceExt:  m.Extension,
		Timeout:    timeout,
	}
	return func(ctx context.Context, source string) executor.Outcome {
		return executor.RunInterpreted(ctx, source, req)
	}
}
