package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"repostreach/pkg/logger"
)

const createCheckpointsTable = `CREATE TABLE IF NOT EXISTS checkpoints (
	name TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLiteStore keeps snapshots as rows of a single table. Each save is one
// upsert, which SQLite applies atomically.
type SQLiteStore struct {
	db     *sql.DB
	runID  string
	logger logger.Logger
}

// OpenSQLiteStore opens (or creates) the database file at path
func OpenSQLiteStore(ctx context.Context, path, runID string, log logger.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	// One writer at a time
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(ctx, db, runID, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database and ensures the schema exists
func NewSQLiteStore(ctx context.Context, db *sql.DB, runID string, log logger.Logger) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, createCheckpointsTable); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &SQLiteStore{db: db, runID: runID, logger: log}, nil
}

// Save upserts the snapshot
func (s *SQLiteStore) Save(ctx context.Context, name string, v any) error {
	data, err := encode(s.runID, name, v)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", name, err)
	}

	s.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"name":  name,
		"bytes": len(data),
	})
	return nil
}

// Load reads a snapshot. A missing row is not an error.
func (s *SQLiteStore) Load(ctx context.Context, name string, v any) (bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load checkpoint %s: %w", name, err)
	}

	env, err := decode(name, data, v)
	if err != nil {
		return false, err
	}

	s.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"name":       name,
		"run_id":     env.RunID,
		"updated_at": env.UpdatedAt,
	})
	return true, nil
}

// Delete removes a snapshot
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a snapshot is stored under name
func (s *SQLiteStore) Exists(ctx context.Context, name string) bool {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM checkpoints WHERE name = ?`, name).Scan(&one)
	return err == nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
