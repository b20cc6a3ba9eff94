package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/runlet/internal/registry"
)

func writeManifest(t *testing.T, root, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	path := filepath.Join(dir, manifestFilename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

const shellManifest = `name: shell
version: "1.0"
mode: interpreted
extension: .sh
toolchains:
  - sh
`

func TestDiscoverRegistersValidPlugin(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "shell", shellManifest)

	reg := registry.New()
	w := NewWatcher(root)

	statuses := w.Discover(context.Background(), reg)
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if statuses[0].Name != "shell" || statuses[0].Action != registry.ActionLoaded {
		t.Errorf("unexpected status: %+v", statuses[0])
	}
	if !reg.Has("shell") {
		t.Error("expected shell executor to be registered")
	}
}

func TestDiscoveredExecutorRuns(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "shell", shellManifest)

	reg := registry.New()
	NewWatcher(root, WithTimeout(10*time.Second)).Discover(context.Background(), reg)

	out := reg.Execute(context.Background(), "echo from-plugin", "shell")
	if !out.OK {
		t.Fatalf("expected success, got kind=%s output=%q", out.Kind, out.Output)
	}
	if out.Output != "from-plugin\n" {
		t.Errorf("unexpected output: %q", out.Output)
	}
}

func TestDiscoverSecondScanUnchanged(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "shell", shellManifest)

	reg := registry.New()
	w := NewWatcher(root)

	w.Discover(context.Background(), reg)
	statuses := w.Discover(context.Background(), reg)
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if statuses[0].Action != registry.ActionUnchanged {
		t.Errorf("expected unchanged, got %s", statuses[0].Action)
	}
}

func TestDiscoverReloadsModifiedManifest(t *testing.T) {
	root := t.TempDir()
	path := writeManifest(t, root, "shell", shellManifest)

	reg := registry.New()
	w := NewWatcher(root)
	w.Discover(context.Background(), reg)

	// Bump the mtime well past the recorded one; filesystems with coarse
	// timestamps would otherwise make this test flaky.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to bump mtime: %v", err)
	}

	statuses := w.Discover(context.Background(), reg)
	if statuses[0].Action != registry.ActionReloaded {
		t.Errorf("expected reloaded, got %s", statuses[0].Action)
	}
}

func TestDiscoverBrokenPluginDoesNotAbortScan(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "broken", "name: broken\nmode: bogus\n")
	writeManifest(t, root, "shell", shellManifest)

	reg := registry.New()
	statuses := NewWatcher(root).Discover(context.Background(), reg)

	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	byName := make(map[string]registry.PluginStatus)
	for _, s := range statuses {
		byName[s.Name] = s
	}
	if byName["broken"].Action != registry.ActionFailed {
		t.Errorf("expected broken plugin to fail, got %s", byName["broken"].Action)
	}
	if byName["broken"].Error == "" {
		t.Error("expected failed status to carry an error")
	}
	if byName["shell"].Action != registry.ActionLoaded {
		t.Errorf("expected shell plugin to load, got %s", byName["shell"].Action)
	}
	if reg.Has("broken") {
		t.Error("broken plugin must not be registered")
	}
}

func TestDiscoverFailedManifestRetriedWithoutMtimeChange(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "broken", "name: broken\nmode: bogus\n")

	reg := registry.New()
	w := NewWatcher(root)
	w.Discover(context.Background(), reg)

	// mtime is only recorded on success, so a second scan must retry.
	statuses := w.Discover(context.Background(), reg)
	if statuses[0].Action != registry.ActionFailed {
		t.Errorf("expected failed on retry, got %s", statuses[0].Action)
	}
}

func TestDiscoverRefusesWorldWritableDir(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "sketchy", shellManifest)
	if err := os.Chmod(filepath.Join(root, "sketchy"), 0777); err != nil {
		t.Fatalf("failed to chmod plugin dir: %v", err)
	}

	reg := registry.New()
	statuses := NewWatcher(root).Discover(context.Background(), reg)

	if statuses[0].Action != registry.ActionFailed {
		t.Fatalf("expected failed, got %s", statuses[0].Action)
	}
	if reg.Has("shell") {
		t.Error("plugin from world-writable dir must not be registered")
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	reg := registry.New()
	w := NewWatcher(filepath.Join(t.TempDir(), "does-not-exist"))

	if statuses := w.Discover(context.Background(), reg); statuses != nil {
		t.Errorf("expected nil statuses for missing root, got %v", statuses)
	}
}

func TestDiscoverForgetsRemovedManifest(t *testing.T) {
	root := t.TempDir()
	path := writeManifest(t, root, "shell", shellManifest)

	reg := registry.New()
	w := NewWatcher(root)
	w.Discover(context.Background(), reg)

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove manifest: %v", err)
	}
	if statuses := w.Discover(context.Background(), reg); len(statuses) != 0 {
		t.Fatalf("expected no statuses after removal, got %v", statuses)
	}

	// Re-created plugin must load fresh, not report unchanged.
	writeManifest(t, root, "shell", shellManifest)
	statuses := w.Discover(context.Background(), reg)
	if len(statuses) != 1 || statuses[0].Action != registry.ActionLoaded {
		t.Errorf("expected re-created plugin to load, got %v", statuses)
	}
}

func TestValidateManifest(t *testing.T) {
	valid := Manifest{
		Name:       "c",
		Mode:       ModeCompiled,
		Extension:  ".c",
		Toolchains: []string{"gcc", "clang"},
		Flags:      []string{"-O2"},
	}

	tests := []struct {
		name    string
		mutate  func(*Manifest)
		wantErr bool
	}{
		{"valid compiled", func(m *Manifest) {}, false},
		{"valid interpreted", func(m *Manifest) {
			m.Mode = ModeInterpreted
			m.Flags = nil
			m.Args = []string{"-u"}
		}, false},
		{"missing name", func(m *Manifest) { m.Name = " " }, true},
		{"invalid mode", func(m *Manifest) { m.Mode = "jit" }, true},
		{"extension without dot", func(m *Manifest) { m.Extension = "c" }, true},
		{"extension with traversal", func(m *Manifest) { m.Extension = "../x" }, true},
		{"no toolchains", func(m *Manifest) { m.Toolchains = nil }, true},
		{"flags on interpreted", func(m *Manifest) {
			m.Mode = ModeInterpreted
		}, true},
		{"args on compiled", func(m *Manifest) { m.Args = []string{"-u"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			m.Toolchains = append([]string(nil), valid.Toolchains...)
			m.Flags = append([]string(nil), valid.Flags...)
			tt.mutate(&m)
			err := validateManifest(&m)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateManifest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
