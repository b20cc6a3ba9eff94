// Package registry holds the process-wide table of language executors and
// owns discovery triggering. A Registry is constructed explicitly and passed
// around by the host; there is no package-level instance.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/runlet/internal/executor"
)

// DefaultTickThrottle is the minimum interval between filesystem rescans
// triggered via Tick.
const DefaultTickThrottle = 250 * time.Millisecond

// Action describes what Reload did with one plugin.
type Action string

const (
	ActionLoaded    Action = "loaded"
	ActionReloaded  Action = "reloaded"
	ActionUnchanged Action = "unchanged"
	ActionFailed    Action = "failed"
)

// PluginStatus is the per-plugin result of one discovery pass.
type PluginStatus struct {
	Name   string `json:"name"`
	Action Action `json:"action"`
	Error  string `json:"error,omitempty"`
}

// DiscoverFunc is a discovery source: it inspects its backing store (plugin
// directory, built-in set) and registers executors against reg. A failing
// plugin is reported in the returned statuses, never as an error; discovery
// of the remaining plugins continues.
type DiscoverFunc func(ctx context.Context, reg *Registry) []PluginStatus

// Registry maps language keys to executors. Keys are case-insensitive and the
// most recent registration wins. Reads and writes may come from concurrent
// callers; a reader never observes a partially updated table.
type Registry struct {
	mu   sync.RWMutex
	exec map[string]executor.Func

	scanMu   sync.Mutex
	sources  []DiscoverFunc
	lastScan time.Time
	throttle time.Duration

	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithSource appends a discovery source consulted by Reload and Tick.
func WithSource(fn DiscoverFunc) Option {
	return func(r *Registry) {
		r.sources = append(r.sources, fn)
	}
}

// WithTickThrottle overrides the minimum interval between Tick rescans.
func WithTickThrottle(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.throttle = d
		}
	}
}

// WithLogger sets the logger used for discovery reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry. Discovery sources run only when the host
// calls Reload or Tick; nothing happens at construction.
func New(opts ...Option) *Registry {
	r := &Registry{
		exec:     make(map[string]executor.Func),
		throttle: DefaultTickThrottle,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds fn to lang, overwriting any previous binding.
func (r *Registry) Register(lang string, fn executor.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec[strings.ToLower(lang)] = fn
}

// Unregister removes the binding for lang if present.
func (r *Registry) Unregister(lang string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exec, strings.ToLower(lang))
}

// Has reports whether lang has a bound executor.
func (r *Registry) Has(lang string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.exec[strings.ToLower(lang)]
	return ok
}

// Get returns the executor bound to lang, or nil.
func (r *Registry) Get(lang string) executor.Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exec[strings.ToLower(lang)]
}

// Languages returns the bound language keys in sorted order.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.exec))
	for lang := range r.exec {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Execute runs code with the executor bound to lang. An unbound language is a
// reported outcome, not an error; nothing escapes this boundary.
func (r *Registry) Execute(ctx context.Context, code, lang string) executor.Outcome {
	fn := r.Get(lang)
	if fn == nil {
		return executor.Failure(executor.KindNoExecutor,
			fmt.Sprintf("no executor for %q; install a plugin or enable a builtin", lang))
	}
	return fn(ctx, code)
}

// Reload runs every discovery source and returns the per-plugin results. Scans
// are serialized: concurrent Reload/Tick calls queue rather than interleave.
func (r *Registry) Reload(ctx context.Context) []PluginStatus {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	return r.reloadLocked(ctx)
}

func (r *Registry) reloadLocked(ctx context.Context) []PluginStatus {
	var statuses []PluginStatus
	for _, src := range r.sources {
		statuses = append(statuses, src(ctx, r)...)
	}
	r.lastScan = time.Now()

	for _, st := range statuses {
		if st.Action == ActionFailed {
			r.logger.Warn("plugin load failed", "plugin", st.Name, "error", st.Error)
		} else {
			r.logger.Debug("plugin discovery", "plugin", st.Name, "action", string(st.Action))
		}
	}
	return statuses
}

// Tick triggers a rescan only if the throttle interval has elapsed since the
// last one, so a polling caller does not hammer the filesystem. It reports
// whether a scan actually ran.
func (r *Registry) Tick(ctx context.Context) bool {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	if time.Since(r.lastScan) <= r.throttle {
		return false
	}
	r.reloadLocked(ctx)
	return true
}
