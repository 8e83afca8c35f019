package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danz-app/danz/internal/cache"
)

// Save extracts c and stores it under scope for ttl. A zero ttl never
// expires.
func Save(ctx context.Context, store Store, c *cache.Cache, scope, userID string, ttl time.Duration, now time.Time) error {
	if store == nil || c == nil {
		return fmt.Errorf("cache store is not configured")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return fmt.Errorf("cache scope is required")
	}
	payload, err := EncodePayload(c.Extract())
	if err != nil {
		return err
	}
	snapshot := Snapshot{Scope: scope, UserID: strings.TrimSpace(userID), Payload: payload, SavedAt: now.UTC()}
	if ttl > 0 {
		snapshot.ExpiresAt = snapshot.SavedAt.Add(ttl)
	}
	return store.PutSnapshot(ctx, snapshot)
}

// Load restores the snapshot stored under scope into c. It reports false when
// nothing usable was stored; expired snapshots are deleted.
func Load(ctx context.Context, store Store, c *cache.Cache, scope string, now time.Time) (bool, error) {
	if store == nil || c == nil {
		return false, fmt.Errorf("cache store is not configured")
	}
	snapshot, ok, err := store.GetSnapshot(ctx, scope)
	if err != nil || !ok {
		return false, err
	}
	if snapshot.Expired(now) {
		return false, store.DeleteSnapshot(ctx, scope)
	}
	data, err := DecodePayload(snapshot.Payload)
	if err != nil {
		return false, err
	}
	if err := c.Restore(data); err != nil {
		return false, fmt.Errorf("restore cache: %w", err)
	}
	return true, nil
}
