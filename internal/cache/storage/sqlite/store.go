// Package sqlite provides a SQLite-backed cache snapshot store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/danz-app/danz/internal/cache/storage"
	"github.com/danz-app/danz/internal/cache/storage/sqlite/migrations"
	"github.com/danz-app/danz/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store persists cache snapshots in one SQLite file.
type Store struct {
	sqlDB *sql.DB
}

// Open opens and migrates the snapshot database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetSnapshot loads the snapshot stored under scope.
func (s *Store) GetSnapshot(ctx context.Context, scope string) (storage.Snapshot, bool, error) {
	if s == nil || s.sqlDB == nil {
		return storage.Snapshot{}, false, fmt.Errorf("storage is not configured")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return storage.Snapshot{}, false, fmt.Errorf("cache scope is required")
	}

	var (
		snap      storage.Snapshot
		savedAt   int64
		expiresAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT scope, user_id, payload, saved_at, expires_at FROM cache_snapshots WHERE scope = ?`,
		scope,
	).Scan(&snap.Scope, &snap.UserID, &snap.Payload, &savedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Snapshot{}, false, nil
	}
	if err != nil {
		return storage.Snapshot{}, false, fmt.Errorf("get cache snapshot: %w", err)
	}
	snap.SavedAt = fromMillis(savedAt)
	snap.ExpiresAt = fromMillis(expiresAt)
	return snap, true, nil
}

// PutSnapshot upserts a snapshot by scope.
func (s *Store) PutSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	snap.Scope = strings.TrimSpace(snap.Scope)
	if snap.Scope == "" {
		return fmt.Errorf("cache scope is required")
	}
	if len(snap.Payload) == 0 {
		return fmt.Errorf("cache payload is required")
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO cache_snapshots (scope, user_id, payload, saved_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(scope) DO UPDATE SET
		    user_id = excluded.user_id,
		    payload = excluded.payload,
		    saved_at = excluded.saved_at,
		    expires_at = excluded.expires_at`,
		snap.Scope,
		strings.TrimSpace(snap.UserID),
		snap.Payload,
		toMillis(snap.SavedAt),
		toMillis(snap.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put cache snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot removes the snapshot stored under scope.
func (s *Store) DeleteSnapshot(ctx context.Context, scope string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return fmt.Errorf("cache scope is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cache_snapshots WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("delete cache snapshot: %w", err)
	}
	return nil
}

// DeleteUserSnapshots removes every snapshot saved for userID. Called on
// logout so one user's data never seeds another's session.
func (s *Store) DeleteUserSnapshots(ctx context.Context, userID string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cache_snapshots WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user snapshots: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

var _ storage.Store = (*Store)(nil)
