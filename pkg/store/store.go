// Package store persists which planet was last announced to each target.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS announcements (
    target TEXT PRIMARY KEY,
    planet_id TEXT NOT NULL,
    announced_at DATETIME NOT NULL
);
`

type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	return initialize(db)
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}

	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	return initialize(db)
}

func initialize(db *sql.DB) (*Store, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping state database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state database: %w", err)
	}

	return &Store{db: db}, nil
}

// LastAnnounced returns the planet id last recorded for target.
func (s *Store) LastAnnounced(ctx context.Context, target string) (string, bool, error) {
	var planetID string
	err := s.db.QueryRowContext(ctx, `SELECT planet_id FROM announcements WHERE target = ?`, target).Scan(&planetID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query last announcement: %w", err)
	}

	return planetID, true, nil
}

// MarkAnnounced records planetID as the latest announcement for target.
func (s *Store) MarkAnnounced(ctx context.Context, target string, planetID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO announcements (target, planet_id, announced_at) VALUES (?, ?, ?)
		ON CONFLICT(target) DO UPDATE SET planet_id = excluded.planet_id, announced_at = excluded.announced_at`,
		target, planetID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record announcement: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
