package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danz-app/danz/internal/cache"
	"github.com/danz-app/danz/internal/cache/storage"
	cachesqlite "github.com/danz-app/danz/internal/cache/storage/sqlite"
	"github.com/danz-app/danz/internal/client"
	"github.com/danz-app/danz/internal/services/dashboard"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type graphqlServer struct {
	unauthorized atomic.Bool
	authHeaders  atomic.Int32
}

func (g *graphqlServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OperationName string `json:"operationName"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		g.authHeaders.Add(1)
	}
	w.Header().Set("Content-Type", "application/json")
	if g.unauthorized.Load() {
		_, _ = io.WriteString(w, `{"data":null,"errors":[{"message":"expired","extensions":{"code":"UNAUTHENTICATED"}}]}`)
		return
	}
	var data map[string]any
	switch body.OperationName {
	case dashboard.MeQuery.Name:
		data = map[string]any{"me": map[string]any{"__typename": "User", "privy_id": "did:privy:1", "username": "ana"}}
	case dashboard.NotificationsQuery.Name:
		data = map[string]any{"notifications": map[string]any{
			"items": []any{
				map[string]any{"__typename": "Notification", "id": "n1", "read": false},
				map[string]any{"__typename": "Notification", "id": "n2", "read": true},
			},
			"cursor":   "",
			"has_more": false,
		}}
	case dashboard.UnreadCountQuery.Name:
		data = map[string]any{"unreadNotificationCount": 1}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func startServer(t *testing.T, gql http.Handler, dbPath string, logger *zap.Logger) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	upstream := httptest.NewServer(gql)
	t.Cleanup(upstream.Close)

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := New(ctx, Config{
		Endpoint:    upstream.URL,
		Token:       signedToken(t, "did:privy:1"),
		CacheDBPath: dbPath,
		CacheTTL:    time.Hour,
		MetricsAddr: "127.0.0.1:0",
	}, logger)
	if err != nil {
		cancel()
		t.Fatalf("New() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	return srv, cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeLoadsInboxAndPersistsCache(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dbPath := filepath.Join(t.TempDir(), "cache", "dashboard.db")
	gql := &graphqlServer{}
	srv, cancel, done := startServer(t, gql, dbPath, zap.New(core))

	waitFor(t, func() bool {
		return logs.FilterMessage("unread notifications").Len() > 0
	})
	if got := logs.FilterMessage("unread notifications").All()[0].ContextMap()["count"]; got != int64(1) {
		t.Fatalf("badge count = %v, want 1", got)
	}
	if gql.authHeaders.Load() == 0 {
		t.Fatal("requests were not stamped with the access token")
	}

	resp, err := http.Get("http://" + srv.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"danz_graphql_operations_total", "danz_cache_entities"} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("metrics missing %s", want)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	store, err := cachesqlite.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	restored := cache.New(dashboard.Policies())
	ok, err := storage.Load(context.Background(), store, restored, "dashboard:did:privy:1", time.Now())
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if _, ok := restored.Read(dashboard.NotificationRef("n1")); !ok {
		t.Fatal("persisted cache lost notification n1")
	}
}

func TestUnauthenticatedResponseSignsOut(t *testing.T) {
	gql := &graphqlServer{}
	gql.unauthorized.Store(true)
	srv, cancel, done := startServer(t, gql, "", zap.NewNop())
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, func() bool { return !srv.Session().Authenticated() })
}

func TestRejectedSessionRedirectsAgainAfterSignIn(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	gql := &graphqlServer{}
	gql.unauthorized.Store(true)
	srv, cancel, done := startServer(t, gql, "", zap.New(core))
	defer func() {
		cancel()
		<-done
	}()
	rejected := func() int { return logs.FilterMessage("session rejected, sign in again").Len() }

	waitFor(t, func() bool { return logs.FilterMessage("unread count load failed").Len() == 1 })
	if rejected() != 1 || srv.Session().Authenticated() {
		t.Fatalf("rejections = %d, want one redirect for the first session", rejected())
	}

	if err := srv.Session().SetToken(signedToken(t, "did:privy:1")); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := srv.Service().Me(context.Background(), client.NetworkOnly); err == nil {
		t.Fatal("expected the revoked session to be rejected")
	}
	waitFor(t, func() bool { return !srv.Session().Authenticated() && rejected() == 2 })
}
