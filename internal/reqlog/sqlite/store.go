// Package sqlite provides a durable archive sink for request log entries.
// The in-memory buffer and cache mirrors are bounded and expiring; this sink
// is for deployments that need logs beyond the retention windows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/clearledger/gateway/internal/reqlog"
)

// Store is a SQLite implementation of reqlog.Sink.
type Store struct {
	db *sql.DB
}

var _ reqlog.Sink = (*Store)(nil)

// New opens (or creates) the archive database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open request log archive: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init request log schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS request_logs (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		time TIMESTAMP NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		query TEXT,
		headers TEXT,
		body TEXT,
		status INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		tenant_id TEXT,
		user_id TEXT,
		ip TEXT,
		user_agent TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_request_logs_time ON request_logs(time);
	CREATE INDEX IF NOT EXISTS idx_request_logs_tenant ON request_logs(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_request_logs_status ON request_logs(status);`)
	return err
}

// Store archives one entry. Called from the logging service's persistence
// path, which already treats failures as log-and-continue.
func (s *Store) Store(ctx context.Context, e *reqlog.Entry) error {
	headers, err := json.Marshal(e.Headers)
	if err != nil {
		headers = nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO request_logs
		(id, request_id, time, method, path, query, headers, body, status, duration_ms, tenant_id, user_id, ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Time, e.Method, e.Path, e.Query, string(headers), e.Body,
		e.Status, e.Duration, e.TenantID, e.UserID, e.IP, e.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert request log %s: %w", e.ID, err)
	}
	return nil
}

// Count reports how many entries are archived, for health reporting.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM request_logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count request logs: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
