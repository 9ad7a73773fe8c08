// Package sqlite provides a querycache.Store persisted to a local SQLite
// file, so a restarted process serves warm (stale, revalidating) data
// instead of a blank loading state.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/cobertis/querycache"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);`

// Store implements querycache.Store on a SQLite file.
type Store struct {
	db      *sqlx.DB
	dsn     string
	closeMx sync.Mutex
	closed  bool
}

var _ querycache.Store = (*Store)(nil)

// NewStore opens (or creates) the store at the given DSN, pings the database
// and ensures the schema exists.
func NewStore(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite writes are serialized anyway
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create query_cache table: %w", err)
	}

	return &Store{db: db, dsn: dsn}, nil
}

type row struct {
	Value     string `db:"value"`
	ExpiresAt int64  `db:"expires_at"`
}

// Get returns the stored value for key, or querycache.ErrNotFound when the
// key is missing or expired. Expired rows are deleted on read.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s.isClosed() {
		return "", errors.New("sqlite store is closed")
	}
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT value, expires_at FROM query_cache WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", querycache.ErrNotFound
		}
		return "", fmt.Errorf("sqlite Get error for key '%s': %w", key, err)
	}
	if r.ExpiresAt > 0 && r.ExpiresAt <= time.Now().UnixMilli() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE key = ?`, key)
		return "", querycache.ErrNotFound
	}
	return r.Value, nil
}

// Set upserts the value. A non-positive expiration stores the row without
// expiry.
func (s *Store) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if s.isClosed() {
		return errors.New("sqlite store is closed")
	}
	var expiresAt int64
	if expiration > 0 {
		expiresAt = time.Now().Add(expiration).UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("sqlite Set error for key '%s': %w", key, err)
	}
	return nil
}

// Delete removes the row for key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return errors.New("sqlite store is closed")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite Delete error for key '%s': %w", key, err)
	}
	return nil
}

// Sweep removes all expired rows and returns how many were deleted.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	if s.isClosed() {
		return 0, errors.New("sqlite store is closed")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM query_cache WHERE expires_at > 0 AND expires_at <= ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite Sweep error: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.closeMx.Lock()
	defer s.closeMx.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.closeMx.Lock()
	defer s.closeMx.Unlock()
	return s.closed
}
