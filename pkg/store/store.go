// Package store persists resolved company entities in SQLite: the entity
// registry, per-source snapshots, cross-check conflicts, and an append-only
// audit log. Registry rows are never deleted; superseded data is marked,
// not removed, so the history of what each source reported stays
// reconstructable.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opencorpdata/corpmap/pkg/errors"
)

// DefaultRefreshInterval is how long a persisted entity stays fresh before
// it becomes due for a refetch.
const DefaultRefreshInterval = 7 * 24 * time.Hour

// Store manages corpmap persistence backed by SQLite.
type Store struct {
	db              *sql.DB
	path            string
	refreshInterval time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithRefreshInterval overrides how long entities stay fresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// Open initializes or connects to the corpmap database at path and applies
// pending migrations.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapStore("open", "", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, errors.WrapStore("pragma", "", pragma, execErr)
		}
	}

	store := &Store{
		db:              db,
		path:            path,
		refreshInterval: DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}
