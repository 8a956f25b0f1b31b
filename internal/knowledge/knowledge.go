// Package knowledge implements the optional per-project key/value and
// knowledge store, `.agent_db.sqlite` (spec §6 persisted state layout).
// Grounded on the UPSERT/schema-bootstrap pattern in the hector example's
// SQLTaskStore (v2/task/store.go), adapted from a general a2a task table to
// a small key/value table plus a cross-task knowledge-entry log that the
// Sprint Scheduler uses to hand a task's output to its dependents.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a Sink over a single `.agent_db.sqlite` file. A nil *Store is
// valid and every method is a safe no-op, so callers that don't configure a
// store (the default) pay no cost.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS task_outputs (
	task_id      TEXT PRIMARY KEY,
	feature_name TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_outputs_feature ON task_outputs(feature_name);
`

// Open creates (or reuses) the sqlite file at path and bootstraps its
// schema. Pass an empty path to get an in-memory store, useful for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge store: %w", err)
	}
	// sqlite has no real concurrent-writer story; one connection avoids
	// "database is locked" errors from the Sprint Scheduler's parallel workers.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping knowledge store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection. Safe on a nil Store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Set upserts a key/value pair.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, key, value, time.Now().UTC())
	return err
}

// Get returns the value for key, and false if it isn't set.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, nil
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// RecordTaskOutput stores a completed Sprint task's output so dependent
// tasks can retrieve it as worker-prompt context (spec §4.H task graph).
func (s *Store) RecordTaskOutput(ctx context.Context, taskID, featureName, content string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_outputs (task_id, feature_name, content, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET feature_name = excluded.feature_name, content = excluded.content, created_at = excluded.created_at
`, taskID, featureName, content, time.Now().UTC())
	return err
}

// TaskOutputs returns the recorded output for every taskID present in the
// store, keyed by task ID. Missing task IDs are silently omitted.
func (s *Store) TaskOutputs(ctx context.Context, taskIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(taskIDs))
	if s == nil || len(taskIDs) == 0 {
		return out, nil
	}
	for _, id := range taskIDs {
		var content string
		err := s.db.QueryRowContext(ctx, `SELECT content FROM task_outputs WHERE task_id = ?`, id).Scan(&content)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = content
	}
	return out, nil
}
