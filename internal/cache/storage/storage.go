// Package storage persists extracted cache snapshots between process runs.
//
// Persisted data is always derived from server reads and can be discarded at
// any time; a missing or unreadable snapshot only costs a cold start.
package storage

import (
	"context"
	"time"
)

// Snapshot is one persisted cache extraction.
type Snapshot struct {
	// Scope names the cache, typically one per signed-in user.
	Scope     string
	UserID    string
	Payload   []byte
	SavedAt   time.Time
	ExpiresAt time.Time
}

// Expired reports whether the snapshot should no longer be restored.
func (s Snapshot) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store is the persistence contract for cache snapshots.
type Store interface {
	Close() error
	GetSnapshot(ctx context.Context, scope string) (Snapshot, bool, error)
	PutSnapshot(ctx context.Context, snapshot Snapshot) error
	DeleteSnapshot(ctx context.Context, scope string) error
	DeleteUserSnapshots(ctx context.Context, userID string) error
}
