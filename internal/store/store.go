// Package store persists title fingerprints across runs so an item is never
// processed twice. The table is append-only: fingerprints are inserted and
// queried, never deleted, and unbounded growth is accepted.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"skim/internal/core"
)

// Store is the SQLite-backed fingerprint store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the fingerprint database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "skim.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	// Fingerprints are 64-bit; stored as TEXT because SQLite INTEGER is
	// signed and the hash uses the full unsigned range.
	table := `
	CREATE TABLE IF NOT EXISTS seen_titles (
		fingerprint TEXT PRIMARY KEY,
		title TEXT,
		date_seen DATETIME
	);`

	if _, err := s.db.Exec(table); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Contains reports whether the fingerprint has been recorded by a prior run.
func (s *Store) Contains(fingerprint uint64) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM seen_titles WHERE fingerprint = ?",
		fmt.Sprintf("%016x", fingerprint),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query fingerprint: %w", err)
	}
	return true, nil
}

// Insert records a fingerprint with its title. Inserting an existing
// fingerprint is a no-op, preserving the first-seen record.
func (s *Store) Insert(fingerprint uint64, title string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO seen_titles (fingerprint, title, date_seen) VALUES (?, ?, ?)",
		fmt.Sprintf("%016x", fingerprint),
		title,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fingerprint: %w", err)
	}
	return nil
}

// FilterNew returns the items whose fingerprints are not yet in the store,
// preserving input order, along with the number dropped as already seen.
// A store read error drops nothing: reprocessing an item is preferable to
// silently losing it.
func (s *Store) FilterNew(items []core.Item) ([]core.Item, int) {
	fresh := make([]core.Item, 0, len(items))
	dropped := 0
	for _, item := range items {
		seen, err := s.Contains(item.Fingerprint)
		if err != nil {
			seen = false
		}
		if seen {
			dropped++
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, dropped
}

// MarkSeen records the fingerprints of all given items. Called for every
// fetched item right after the duplicate filter, not just the relevant ones,
// so excluded titles are not reconsidered on the next run.
func (s *Store) MarkSeen(items []core.Item) error {
	for _, item := range items {
		if err := s.Insert(item.Fingerprint, item.Title); err != nil {
			return err
		}
	}
	return nil
}
