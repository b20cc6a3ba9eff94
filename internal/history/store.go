package history

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/runlet/internal/executor"
)

const maxStoredOutput = 64 * 1024

// Attempt is one recorded execution.
type Attempt struct {
	ID         string        `json:"id"`
	Language   string        `json:"language"`
	SourceHash string        `json:"source_hash"`
	OK         bool          `json:"ok"`
	Kind       executor.Kind `json:"kind,omitempty"`
	Output     string        `json:"output"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Store journals execution attempts to SQLite.
type Store struct {
	db *sql.DB
}

// New wraps an already-bootstrapped database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// HashSource fingerprints a snippet so the journal never stores source text.
func HashSource(source string) string {
	sum := blake3.Sum256([]byte(source))
	return "blake3:" + hex.EncodeToString(sum[:])
}

// Record journals one attempt. A missing ID gets a fresh UUID; the stored
// output is truncated so one huge run cannot bloat the journal.
func (s *Store) Record(ctx context.Context, a Attempt) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	output := a.Output
	if len(output) > maxStoredOutput {
		output = output[:maxStoredOutput]
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (id, language, source_hash, ok, kind, output, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		a.ID, a.Language, a.SourceHash, boolToInt(a.OK), string(a.Kind),
		output, a.Duration.Milliseconds(), a.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("record attempt: %w", err)
	}
	return a.ID, nil
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, language, source_hash, ok, kind, output, duration_ms, created_at
		 FROM run_log ORDER BY created_at DESC, id LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query run log: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			a          Attempt
			ok         int
			kind       string
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&a.ID, &a.Language, &a.SourceHash, &ok, &kind, &a.Output, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run log row: %w", err)
		}
		a.OK = ok != 0
		a.Kind = executor.Kind(kind)
		a.Duration = time.Duration(durationMS) * time.Millisecond
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		a.CreatedAt = ts
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
