package api

import (
	"github.com/mattjoyce/runlet/internal/executor"
	"github.com/mattjoyce/runlet/internal/history"
	"github.com/mattjoyce/runlet/internal/registry"
)

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ExecuteResponse is the result of one execution.
type ExecuteResponse struct {
	ID         string        `json:"id,omitempty"`
	OK         bool          `json:"ok"`
	Kind       executor.Kind `json:"kind,omitempty"`
	Output     string        `json:"output"`
	DurationMS int64         `json:"duration_ms"`
}

// LanguagesResponse lists registered language names.
type LanguagesResponse struct {
	Languages []string `json:"languages"`
}

// ReloadResponse reports per-plugin scan results.
type ReloadResponse struct {
	Plugins []registry.PluginStatus `json:"plugins"`
}

// HistoryResponse lists recent attempts, newest first.
type HistoryResponse struct {
	Attempts []history.Attempt `json:"attempts"`
}

// HealthzResponse is the ops health payload.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Languages     int    `json:"languages"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
