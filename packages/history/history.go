// Package history persists finished tasks to a local SQLite database so the
// CLI can show and replay past requests.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	status      INTEGER NOT NULL,
	attempts    INTEGER NOT NULL,
	auth_retry  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error       TEXT,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`

// Entry is one recorded task.
type Entry struct {
	ID         string
	Method     string
	URL        string
	Status     int
	Attempts   int
	AuthRetry  bool
	DurationMs int64
	Error      string
	CreatedAt  time.Time
}

// Store wraps the SQLite database holding task history.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts one finished task.
func (s *Store) Record(e Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, method, url, status, attempts, auth_retry, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Method, e.URL, e.Status, e.Attempts, boolInt(e.AuthRetry), e.DurationMs, e.Error,
	)
	if err != nil {
		return fmt.Errorf("recording task: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, method, url, status, attempts, auth_retry, duration_ms, COALESCE(error, ''), created_at
		 FROM tasks ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var authRetry int
		if err := rows.Scan(&e.ID, &e.Method, &e.URL, &e.Status, &e.Attempts, &authRetry, &e.DurationMs, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.AuthRetry = authRetry != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return out, nil
}

// Clear deletes all history.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM tasks`); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
