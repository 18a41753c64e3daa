// Package auditlog records every Control API mutation for later review.
// Grounded in the teacher's internal/upgrade/checker.go schema-check-
// against-Postgres pattern, generalized into an append-only audit sink:
// a Postgres-backed sink (jackc/pgx/v5 + golang-migrate/migrate/v4) when
// a DSN is configured, matching the teacher's DatabaseConfig.
// IsManagedMode() optionality, else a local append-only file sink so the
// gateway never requires a database to run.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one recorded Control API mutation.
type Entry struct {
	OccurredAt time.Time `json:"occurredAt"`
	TokenLabel string    `json:"tokenLabel"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	SessionID  string    `json:"sessionId,omitempty"`
	StatusCode int       `json:"statusCode"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink records audit entries. Record should never block the request
// that triggered it for long; implementations log-and-continue on write
// failure rather than propagating an error to the caller.
type Sink interface {
	Record(ctx context.Context, e Entry)
	Close()
}

// New builds a Sink: Postgres-backed if dsn is non-empty (applying
// migrations on construction), otherwise a local file sink at
// fallbackPath.
func New(ctx context.Context, dsn, fallbackPath string) (Sink, error) {
	if dsn == "" {
		return newFileSink(fallbackPath)
	}
	if err := runMigrations(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("auditlog: connect: %w", err)
	}
	return &pgSink{pool: pool}, nil
}

type pgSink struct {
	pool *pgxpool.Pool
}

func (s *pgSink) Record(ctx context.Context, e Entry) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO control_audit_log (occurred_at, token_label, method, route, session_id, status_code, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.OccurredAt, e.TokenLabel, e.Method, e.Route, nullable(e.SessionID), e.StatusCode, e.Detail,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "auditlog: insert failed: %v\n", err)
	}
}

func (s *pgSink) Close() { s.pool.Close() }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// fileSink appends one JSON line per entry. Used when no audit DSN is
// configured.
type fileSink struct {
	mu sync.Mutex
	f  *os.File
}

func newFileSink(path string) (*fileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) Record(_ context.Context, e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Write(append(data, '\n'))
}

func (s *fileSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Close()
}
