package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/runlet/internal/history"
	"github.com/mattjoyce/runlet/internal/registry"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Languages:     len(s.runner.Languages()),
	})
}

// handleExecute handles POST /execute.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	body := http.MaxBytesReader(w, r.Body, s.config.MaxSourceBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		s.writeError(w, http.StatusBadRequest, "language is required")
		return
	}
	if req.Code == "" {
		s.writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	start := time.Now()
	outcome := s.runner.Execute(r.Context(), req.Code, req.Language)
	duration := time.Since(start)

	resp := ExecuteResponse{
		OK:         outcome.OK,
		Kind:       outcome.Kind,
		Output:     outcome.Output,
		DurationMS: duration.Milliseconds(),
	}

	if s.recorder != nil {
		id, err := s.recorder.Record(r.Context(), history.Attempt{
			Language:   strings.ToLower(req.Language),
			SourceHash: history.HashSource(req.Code),
			OK:         outcome.OK,
			Kind:       outcome.Kind,
			Output:     outcome.Output,
			Duration:   duration,
		})
		if err != nil {
			// The execution already happened; journal trouble must not
			// turn a good outcome into an API error.
			s.logger.Error("failed to record attempt", "language", req.Language, "error", err)
		} else {
			resp.ID = id
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleLanguages handles GET /languages.
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, LanguagesResponse{Languages: s.runner.Languages()})
}

// handleReload handles POST /reload.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	statuses := s.runner.Reload(r.Context())
	if statuses == nil {
		statuses = []registry.PluginStatus{}
	}
	respondJSON(w, http.StatusOK, ReloadResponse{Plugins: statuses})
}

// handleHistory handles GET /history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	attempts, err := s.recorder.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if attempts == nil {
		attempts = []history.Attempt{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Attempts: attempts})
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
