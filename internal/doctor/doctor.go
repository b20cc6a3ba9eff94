// Package doctor validates runlet configuration and toolchain availability.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattjoyce/runlet/internal/config"
	"github.com/mattjoyce/runlet/internal/language"
	"github.com/mattjoyce/runlet/internal/storage"
	"github.com/mattjoyce/runlet/internal/toolchain"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid      bool        `json:"valid"`
	Errors     []Issue     `json:"errors,omitempty"`
	Warnings   []Issue     `json:"warnings,omitempty"`
	Toolchains []Toolchain `json:"toolchains"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Toolchain reports PATH resolution for one builtin language.
type Toolchain struct {
	Language   string   `json:"language"`
	Candidates []string `json:"candidates"`
	Resolved   string   `json:"resolved,omitempty"`
	Disabled   bool     `json:"disabled,omitempty"`
}

// Doctor validates a loaded configuration against the host.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkToolchains(r)
	d.checkPluginsDir(r)
	d.checkHistory(r)
	d.checkAPI(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkToolchains resolves every builtin language's toolchain candidates
// against PATH. A missing toolchain is a warning, not an error: resolution
// happens per execution, so the language starts working the moment its
// compiler is installed.
func (d *Doctor) checkToolchains(r *Result) {
	disabled := make(map[string]struct{})
	for _, name := range d.cfg.Builtins.Disabled {
		disabled[strings.ToLower(name)] = struct{}{}
	}

	for _, b := range language.Builtins() {
		tc := Toolchain{Language: b.Name, Candidates: b.Toolchains}
		if _, ok := disabled[b.Name]; ok {
			tc.Disabled = true
			r.Toolchains = append(r.Toolchains, tc)
			continue
		}

		path, err := toolchain.Find(b.Toolchains...)
		if err != nil {
			d.addWarning(r, "toolchain", b.Name,
				fmt.Sprintf("no toolchain for %q on PATH (tried %s); executions will fail until one is installed",
					b.Name, strings.Join(b.Toolchains, ", ")))
		} else {
			tc.Resolved = path
		}
		r.Toolchains = append(r.Toolchains, tc)
	}
}

// checkPluginsDir verifies the plugin root, when configured, is usable.
func (d *Doctor) checkPluginsDir(r *Result) {
	dir := d.cfg.Plugins.Dir
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			d.addWarning(r, "plugins", "plugins.dir",
				fmt.Sprintf("plugin directory %q does not exist; no plugins will load", dir))
			return
		}
		d.addError(r, "plugins", "plugins.dir", fmt.Sprintf("cannot stat plugin directory: %v", err))
		return
	}
	if !info.IsDir() {
		d.addError(r, "plugins", "plugins.dir", fmt.Sprintf("plugin path %q is not a directory", dir))
	}
}

// checkHistory verifies the journal path is on a filesystem SQLite can use.
func (d *Doctor) checkHistory(r *Result) {
	if !d.cfg.History.Enabled {
		return
	}
	if d.cfg.History.Path == "" {
		d.addError(r, "history", "history.path", "history.path is required when history is enabled")
		return
	}
	if err := storage.EnsureLocalFilesystem(d.cfg.History.Path); err != nil {
		d.addError(r, "history", "history.path", err.Error())
	}
}

// checkAPI checks HTTP API settings.
func (d *Doctor) checkAPI(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when the API is enabled")
	}
	if d.cfg.API.APIKey == "" {
		d.addWarning(r, "api", "api.api_key", "API enabled without an api_key; anyone who can reach the listener can run code")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	b.WriteString("Toolchains:\n")
	for _, tc := range r.Toolchains {
		switch {
		case tc.Disabled:
			fmt.Fprintf(&b, "  %-12s disabled\n", tc.Language)
		case tc.Resolved != "":
			fmt.Fprintf(&b, "  %-12s %s\n", tc.Language, tc.Resolved)
		default:
			fmt.Fprintf(&b, "  %-12s MISSING (tried %s)\n", tc.Language, strings.Join(tc.Candidates, ", "))
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
