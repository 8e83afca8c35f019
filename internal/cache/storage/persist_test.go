package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danz-app/danz/internal/cache"
	"github.com/google/go-cmp/cmp"
)

type memoryStore struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snapshots: make(map[string]Snapshot)}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) GetSnapshot(_ context.Context, scope string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[scope]
	return snap, ok, nil
}

func (s *memoryStore) PutSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Scope] = snap
	return nil
}

func (s *memoryStore) DeleteSnapshot(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, scope)
	return nil
}

func (s *memoryStore) DeleteUserSnapshots(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for scope, snap := range s.snapshots {
		if snap.UserID == userID {
			delete(s.snapshots, scope)
		}
	}
	return nil
}

func seededCache() *cache.Cache {
	c := cache.New(cache.Policies{})
	c.WriteResult(0, nil, map[string]any{
		"notifications": map[string]any{
			"items": []any{
				map[string]any{"__typename": "Notification", "id": "n1", "read": false, "title": "Battle starts"},
			},
			"cursor":   "c1",
			"has_more": true,
		},
		"unreadCount": float64(1),
	})
	return c
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := seededCache()

	if err := Save(ctx, store, src, "user-1", "did:privy:1", time.Hour, now); err != nil {
		t.Fatalf("save: %v", err)
	}
	dst := cache.New(cache.Policies{})
	ok, err := Load(ctx, store, dst, "user-1", now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("load ok=%v err=%v", ok, err)
	}

	fields := []string{"notifications", "unreadCount"}
	want, _ := src.ReadQuery(fields, nil)
	got, ok := dst.ReadQuery(fields, nil)
	if !ok {
		t.Fatal("restored cache incomplete")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("restored mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDropsExpiredSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := Save(ctx, store, seededCache(), "user-1", "", time.Minute, now); err != nil {
		t.Fatalf("save: %v", err)
	}
	ok, err := Load(ctx, store, cache.New(cache.Policies{}), "user-1", now.Add(time.Hour))
	if err != nil || ok {
		t.Fatalf("load ok=%v err=%v, want expired", ok, err)
	}
	if _, found, _ := store.GetSnapshot(ctx, "user-1"); found {
		t.Fatal("expired snapshot not deleted")
	}
}

func TestSaveRequiresScope(t *testing.T) {
	if err := Save(context.Background(), newMemoryStore(), seededCache(), " ", "", 0, time.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPayloadCodec(t *testing.T) {
	in := map[string]any{"roots": map[string]any{"unreadCount": float64(3)}, "entities": map[string]any{}}
	payload, err := EncodePayload(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("codec mismatch (-want +got):\n%s", diff)
	}
	if _, err := DecodePayload([]byte{0xff, 0xff}); err == nil {
		t.Fatal("expected decode error")
	}
}
