// ABOUTME: SQLite implementation of the task.Store contract using modernc.org/sqlite.
// ABOUTME: Automatic schema creation, WAL mode, JSON task blobs keyed by task ID.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/forge-hub/internal/task"
)

// SQLiteStore implements task.Store on a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Parent directories
// are created if needed; pass ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id         TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS profiles (
			identity     TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			tone         TEXT NOT NULL,
			updated_at   DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetTask loads the record under id. Returns task.ErrTaskNotFound when no
// record exists; the caller treats that as a terminal "lost task".
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}

	var t task.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return &t, nil
}

// PutTask writes the record under its ID, replacing any prior version.
func (s *SQLiteStore) PutTask(ctx context.Context, t *task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", t.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		t.ID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving task %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTask removes the record under id. Deleting a missing record is a no-op.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return nil
}

// GetProfile loads the profile for identity, or task.ErrProfileNotFound.
func (s *SQLiteStore) GetProfile(ctx context.Context, identity string) (*task.Profile, error) {
	p := task.Profile{Identity: identity}
	err := s.db.QueryRowContext(ctx,
		`SELECT display_name, tone FROM profiles WHERE identity = ?`, identity).
		Scan(&p.DisplayName, &p.Tone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile %s: %w", identity, err)
	}
	return &p, nil
}

// PutProfile writes the profile, replacing any prior version.
func (s *SQLiteStore) PutProfile(ctx context.Context, p *task.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (identity, display_name, tone, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			display_name = excluded.display_name,
			tone = excluded.tone,
			updated_at = excluded.updated_at`,
		p.Identity, p.DisplayName, p.Tone, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving profile %s: %w", p.Identity, err)
	}
	return nil
}

// DeleteProfile removes the profile for identity.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, identity string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("deleting profile %s: %w", identity, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
