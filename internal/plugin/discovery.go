package plugin

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/runlet/internal/registry"
)

const manifestFilename = "manifest.yaml"

// Watcher scans a plugin root for manifest.yaml files and registers the
// executors they describe. It remembers manifest modification times between
// scans so that repeated scans only reload manifests that actually changed.
//
// A Watcher never fails a whole scan because one plugin is broken: each
// plugin gets its own status and broken ones are skipped.
type Watcher struct {
	root    string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	mtimes map[string]time.Time
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithTimeout sets the per-stage timeout applied to executors built from
// discovered manifests.
func WithTimeout(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.timeout = d }
}

// WithLogger sets the logger used for per-plugin load results.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher creates a Watcher over the given plugin root. The root does not
// have to exist yet; a missing root simply yields zero plugins.
func NewWatcher(root string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:    root,
		timeout: 0, // executor default applies
		logger:  slog.Default(),
		mtimes:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Discover walks the plugin root and registers an executor for every valid
// manifest. It satisfies registry.DiscoverFunc so a Watcher can be handed to
// a registry via registry.WithSource.
func (w *Watcher) Discover(ctx context.Context, reg *registry.Registry) []registry.PluginStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	absRoot, err := filepath.Abs(w.root)
	if err != nil {
		w.logger.Warn("failed to resolve plugin root", "root", w.root, "error", err)
		return nil
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		// No plugin root is a valid configuration, not an error.
		return nil
	}

	var statuses []registry.PluginStatus
	seen := make(map[string]struct{})

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || d.Name() != manifestFilename {
			return nil
		}

		seen[path] = struct{}{}
		statuses = append(statuses, w.loadOne(path, absRoot, reg))
		return nil
	})
	if walkErr != nil {
		w.logger.Warn("plugin scan aborted", "root", absRoot, "error", walkErr)
	}

	// Forget manifests that disappeared so a re-created plugin reloads.
	for path := range w.mtimes {
		if _, ok := seen[path]; !ok {
			delete(w.mtimes, path)
		}
	}

	return statuses
}

// loadOne processes a single manifest file and returns its status.
func (w *Watcher) loadOne(path, root string, reg *registry.Registry) registry.PluginStatus {
	name := filepath.Base(filepath.Dir(path))

	failed := func(err error) registry.PluginStatus {
		w.logger.Warn("failed to load plugin", "plugin", name, "path", path, "error", err.Error())
		return registry.PluginStatus{Name: name, Action: registry.ActionFailed, Error: err.Error()}
	}

	info, err := os.Stat(path)
	if err != nil {
		return failed(fmt.Errorf("failed to stat manifest: %w", err))
	}

	prev, known := w.mtimes[path]
	if known && !info.ModTime().After(prev) {
		return registry.PluginStatus{Name: name, Action: registry.ActionUnchanged}
	}

	manifest, err := loadManifest(path, root)
	if err != nil {
		return failed(err)
	}

	reg.Register(manifest.Name, buildExecutor(*manifest, w.timeout))
	w.mtimes[path] = info.ModTime()

	action := registry.ActionLoaded
	if known {
		action = registry.ActionReloaded
	}
	w.logger.Info("loaded plugin",
		"plugin", manifest.Name,
		"version", manifest.Version,
		"mode", manifest.Mode,
		"path", filepath.Dir(path),
		"action", action)
	return registry.PluginStatus{Name: manifest.Name, Action: action}
}

// loadManifest reads and validates a single plugin manifest.
func loadManifest(manifestPath, root string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}

	if err := validateManifest(&manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	if err := validateTrust(filepath.Dir(manifestPath), root); err != nil {
		return nil, fmt.Errorf("trust validation failed: %w", err)
	}

	return &manifest, nil
}

// validateTrust enforces security constraints on a plugin directory.
func validateTrust(pluginPath, root string) error {
	resolvedPlugin, err := filepath.EvalSymlinks(pluginPath)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin path symlink: %w", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin root symlink: %w", err)
	}

	if resolvedPlugin != resolvedRoot &&
		!strings.HasPrefix(resolvedPlugin, resolvedRoot+string(os.PathSeparator)) {
		return fmt.Errorf("plugin directory %s is not under plugin root %s", resolvedPlugin, resolvedRoot)
	}

	info, err := os.Stat(resolvedPlugin)
	if err != nil {
		return fmt.Errorf("plugin directory not found: %w", err)
	}
	if info.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("plugin directory is world-writable: %s", resolvedPlugin)
	}

	return nil
}
