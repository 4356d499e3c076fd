// Package identity keeps the small per-device values the portal would
// otherwise hold in browser storage: the guest chat session ID and the
// cached user ID.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	keyGuestSession = "guestSessionId"
	keyUserID       = "userId"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	scope      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (scope, key)
)`

// Store is a string key/value store partitioned by scope, one scope per
// device or browser.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) a SQLite store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and creates the table.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create identity schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the value of key in scope.
func (s *Store) Get(ctx context.Context, scope, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE scope = ? AND key = ?`, scope, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key in scope.
func (s *Store) Set(ctx context.Context, scope, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		scope, key, value, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes key from scope.
func (s *Store) Delete(ctx context.Context, scope, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE scope = ? AND key = ?`, scope, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// GuestSessionID returns the guest chat session of scope, creating one on
// first use.
func (s *Store) GuestSessionID(ctx context.Context, scope string) (string, error) {
	id, ok, err := s.Get(ctx, scope, keyGuestSession)
	if err != nil || ok {
		return id, err
	}

	v7, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate guest session: %w", err)
	}
	// The first writer wins; a concurrent caller reads back its ID.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope, key) DO NOTHING`,
		scope, keyGuestSession, "guest-"+v7.String(), s.now().UnixMilli(),
	); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", keyGuestSession, err)
	}

	id, ok, err = s.Get(ctx, scope, keyGuestSession)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("failed to read %s: not stored", keyGuestSession)
	}
	return id, nil
}

// CachedUserID returns the user last signed in on scope.
func (s *Store) CachedUserID(ctx context.Context, scope string) (string, bool, error) {
	return s.Get(ctx, scope, keyUserID)
}

// RememberUser caches the signed-in user of scope.
func (s *Store) RememberUser(ctx context.Context, scope, userID string) error {
	return s.Set(ctx, scope, keyUserID, userID)
}

// ForgetUser clears the cached user of scope. The guest session is kept so
// a signed-out visitor continues the same guest conversation.
func (s *Store) ForgetUser(ctx context.Context, scope string) error {
	return s.Delete(ctx, scope, keyUserID)
}
