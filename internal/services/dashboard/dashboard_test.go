package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danz-app/danz/internal/cache"
	"github.com/danz-app/danz/internal/client"
	"github.com/danz-app/danz/internal/graphql"
	"github.com/danz-app/danz/internal/link"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/danz-app/danz/internal/poll"
	"github.com/google/go-cmp/cmp"
	"github.com/juju/clock/testclock"
	"go.uber.org/goleak"
)

const shortWait = 2 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeServer answers dashboard operations from a tiny in-memory backend.
// Handlers for mutations may block on hold to control arrival order.
type fakeServer struct {
	mu     sync.Mutex
	calls  map[string]int
	posts  map[string]map[string]any
	notifs []map[string]any
	fail   map[string]bool
	hold   map[string]chan struct{}
	// omitCounts strips counters from mutation payloads.
	omitCounts bool
	// feedHasMore marks feed pages as having more items.
	feedHasMore bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		calls: map[string]int{},
		posts: map[string]map[string]any{
			"p1": {"__typename": "Post", "id": "p1", "likes_count": float64(3), "is_liked": false,
				"author": map[string]any{"__typename": "User", "privy_id": "did:privy:1", "username": "ana"}},
		},
		notifs: []map[string]any{
			{"__typename": "Notification", "id": "n1", "read": false},
			{"__typename": "Notification", "id": "n2", "read": false},
			{"__typename": "Notification", "id": "n3", "read": true},
		},
		fail: map[string]bool{},
		hold: map[string]chan struct{}{},
	}
}

func (s *fakeServer) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *fakeServer) RoundTrip(_ context.Context, req graphql.Request) (*graphql.Response, error) {
	name := req.Operation.Name
	s.mu.Lock()
	s.calls[name]++
	hold := s.hold[name]
	fail := s.fail[name]
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if fail {
		return &graphql.Response{Errors: []graphql.Error{{Message: "denied", Extensions: map[string]any{"code": "FORBIDDEN"}}}}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var data map[string]any
	switch name {
	case FeedQuery.Name:
		feed := envelope(copyMap(s.posts["p1"]))
		feed["has_more"] = s.feedHasMore
		data = map[string]any{FieldFeed: feed}
	case NotificationsQuery.Name:
		items := make([]map[string]any, len(s.notifs))
		for i, n := range s.notifs {
			items[i] = copyMap(n)
		}
		data = map[string]any{FieldNotifications: envelope(items...)}
	case UnreadCountQuery.Name:
		data = map[string]any{FieldUnreadCount: float64(s.unread())}
	case MeQuery.Name:
		data = map[string]any{FieldMe: map[string]any{"__typename": "User", "privy_id": "did:privy:1", "username": "ana", "xp": float64(120)}}
	case LikePostMutation.Name, UnlikePostMutation.Name:
		post := s.posts[req.Variables["post_id"].(string)]
		liked := name == LikePostMutation.Name
		if post["is_liked"] != liked {
			post["is_liked"] = liked
			post["likes_count"] = post["likes_count"].(float64) + map[bool]float64{true: 1, false: -1}[liked]
		}
		payload := copyMap(post)
		if s.omitCounts {
			delete(payload, "likes_count")
		}
		data = map[string]any{req.Operation.Fields[0]: payload}
	case MarkNotificationReadMutation.Name:
		id := req.Variables["id"].(string)
		for _, n := range s.notifs {
			if n["id"] == id {
				n["read"] = true
				data = map[string]any{"markNotificationRead": copyMap(n)}
			}
		}
	case MarkAllNotificationsReadMutation.Name:
		for _, n := range s.notifs {
			n["read"] = true
		}
		data = map[string]any{"markAllNotificationsRead": true}
	case DeleteNotificationMutation.Name:
		id := req.Variables["id"].(string)
		kept := s.notifs[:0]
		for _, n := range s.notifs {
			if n["id"] != id {
				kept = append(kept, n)
			}
		}
		s.notifs = kept
		data = map[string]any{"deleteNotification": true}
	}
	return &graphql.Response{Data: data}, nil
}

func (s *fakeServer) unread() int {
	n := 0
	for _, notif := range s.notifs {
		if notif["read"] != true {
			n++
		}
	}
	return n
}

func envelope(items ...map[string]any) map[string]any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return map[string]any{"items": out, "cursor": "", "has_more": false}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func newService(t *testing.T) (*Service, *fakeServer) {
	t.Helper()
	srv := newFakeServer()
	exec := link.Chain(srv, link.Errors(nil, "", nil))
	cl := client.New(cache.New(Policies()), exec, client.Options{})
	return New(cl, Options{}), srv
}

func postFields(t *testing.T, svc *Service) map[string]any {
	t.Helper()
	fields, ok := svc.Client().Cache().Read(PostRef("p1"))
	if !ok {
		t.Fatal("post p1 not cached")
	}
	return fields
}

func TestUserConvergesAcrossQueries(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Feed(ctx, PageParams{}, client.NetworkOnly); err != nil {
		t.Fatalf("feed: %v", err)
	}
	me, err := svc.Me(ctx, client.NetworkOnly)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me["username"] != "ana" {
		t.Fatalf("me = %v", me)
	}
	user, ok := svc.Client().Cache().Read(UserRef("did:privy:1"))
	if !ok {
		t.Fatal("user not normalized by privy_id")
	}
	if user["xp"] != float64(120) {
		t.Fatalf("user xp = %v, want 120", user["xp"])
	}
	page, err := svc.Feed(ctx, PageParams{}, client.CacheOnly)
	if err != nil {
		t.Fatalf("cached feed: %v", err)
	}
	author := page.Items[0]["author"].(map[string]any)
	if author["xp"] != float64(120) {
		t.Fatalf("feed author did not see profile update: %v", author)
	}
}

func TestLikePostPredictsThenConfirms(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	if _, err := svc.Feed(ctx, PageParams{}, client.NetworkOnly); err != nil {
		t.Fatalf("feed: %v", err)
	}
	release := make(chan struct{})
	srv.hold[LikePostMutation.Name] = release

	done := make(chan error, 1)
	go func() { done <- svc.LikePost(ctx, "p1") }()
	waitFor(t, func() bool { return svc.Client().PendingMutations() == 1 })

	got := postFields(t, svc)
	if got["is_liked"] != true || got["likes_count"] != float64(4) {
		t.Fatalf("prediction = %v", got)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("like: %v", err)
	}
	got = postFields(t, svc)
	if got["is_liked"] != true || got["likes_count"] != float64(4) {
		t.Fatalf("confirmed = %v", got)
	}
}

func TestLikeToggleLastIntentWins(t *testing.T) {
	tests := []struct {
		name       string
		omitCounts bool
	}{
		{name: "server reports count"},
		{name: "count derived locally", omitCounts: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, srv := newService(t)
			srv.omitCounts = tt.omitCounts
			ctx := context.Background()
			if _, err := svc.Feed(ctx, PageParams{}, client.NetworkOnly); err != nil {
				t.Fatalf("feed: %v", err)
			}
			likeGate := make(chan struct{})
			unlikeGate := make(chan struct{})
			srv.hold[LikePostMutation.Name] = likeGate
			srv.hold[UnlikePostMutation.Name] = unlikeGate

			likeDone := make(chan error, 1)
			go func() { likeDone <- svc.LikePost(ctx, "p1") }()
			waitFor(t, func() bool { return svc.Client().PendingMutations() == 1 })
			unlikeDone := make(chan error, 1)
			go func() { unlikeDone <- svc.UnlikePost(ctx, "p1") }()
			waitFor(t, func() bool { return svc.Client().PendingMutations() == 2 })

			if got := postFields(t, svc); got["is_liked"] != false || got["likes_count"] != float64(3) {
				t.Fatalf("stacked prediction = %v", got)
			}

			// The unlike reaches the server first, then the stale like lands.
			close(unlikeGate)
			if err := <-unlikeDone; err != nil {
				t.Fatalf("unlike: %v", err)
			}
			close(likeGate)
			if err := <-likeDone; err != nil {
				t.Fatalf("like: %v", err)
			}
			if got := postFields(t, svc); got["is_liked"] != false || got["likes_count"] != float64(3) {
				t.Fatalf("final state = %v, want the unlike to win with 3 likes", got)
			}
		})
	}
}

func TestFeedLaterPageFetchesUnderCacheFirst(t *testing.T) {
	svc, srv := newService(t)
	srv.feedHasMore = true
	ctx := context.Background()
	if _, err := svc.Feed(ctx, PageParams{Limit: 20}, client.CacheFirst); err != nil {
		t.Fatalf("first page: %v", err)
	}
	if _, err := svc.Feed(ctx, PageParams{Limit: 20}, client.CacheFirst); err != nil {
		t.Fatalf("first page again: %v", err)
	}
	if n := srv.count(FeedQuery.Name); n != 1 {
		t.Fatalf("feed calls = %d, want 1 for a cached first page", n)
	}
	if _, err := svc.Feed(ctx, PageParams{Limit: 20, Offset: 20}, client.CacheFirst); err != nil {
		t.Fatalf("second page: %v", err)
	}
	if n := srv.count(FeedQuery.Name); n != 2 {
		t.Fatalf("feed calls = %d, want 2", n)
	}
}

func TestMarkNotificationReadLowersBadge(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Notifications(ctx, PageParams{}, client.NetworkOnly); err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if n, err := svc.UnreadCount(ctx, client.NetworkOnly); err != nil || n != 2 {
		t.Fatalf("unread = %d, %v", n, err)
	}
	if err := svc.MarkNotificationRead(ctx, "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, _ := svc.UnreadCount(ctx, client.CacheOnly); n != 1 {
		t.Fatalf("unread after mark = %d, want 1", n)
	}
	// Already read: no further change.
	if err := svc.MarkNotificationRead(ctx, "n3"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, _ := svc.UnreadCount(ctx, client.CacheOnly); n != 1 {
		t.Fatalf("unread after marking read item = %d, want 1", n)
	}
}

func TestMarkNotificationReadRollsBack(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	if _, err := svc.Notifications(ctx, PageParams{}, client.NetworkOnly); err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if _, err := svc.UnreadCount(ctx, client.NetworkOnly); err != nil {
		t.Fatalf("unread: %v", err)
	}
	before := svc.Client().Cache().Extract()
	srv.fail[MarkNotificationReadMutation.Name] = true

	err := svc.MarkNotificationRead(ctx, "n1")
	if !apperrors.IsKind(err, apperrors.KindRollback) {
		t.Fatalf("err = %v, want rollback", err)
	}
	if diff := cmp.Diff(before, svc.Client().Cache().Extract()); diff != "" {
		t.Fatalf("cache changed after rollback (-before +after):\n%s", diff)
	}
}

func TestDeleteNotificationRemovesFromList(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Notifications(ctx, PageParams{}, client.NetworkOnly); err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if _, err := svc.UnreadCount(ctx, client.NetworkOnly); err != nil {
		t.Fatalf("unread: %v", err)
	}
	if err := svc.DeleteNotification(ctx, "n2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	page, err := svc.Notifications(ctx, PageParams{}, client.CacheOnly)
	if err != nil {
		t.Fatalf("cached notifications: %v", err)
	}
	var ids []any
	for _, item := range page.Items {
		ids = append(ids, item["id"])
	}
	if diff := cmp.Diff([]any{"n1", "n3"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if n, _ := svc.UnreadCount(ctx, client.CacheOnly); n != 1 {
		t.Fatalf("unread = %d, want 1", n)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Notifications(ctx, PageParams{}, client.NetworkOnly); err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if err := svc.MarkAllNotificationsRead(ctx); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if n, err := svc.UnreadCount(ctx, client.CacheOnly); err != nil || n != 0 {
		t.Fatalf("unread = %d, %v", n, err)
	}
	for _, id := range []string{"n1", "n2"} {
		fields, _ := svc.Client().Cache().Read(NotificationRef(id))
		if fields["read"] != true {
			t.Fatalf("%s read = %v", id, fields["read"])
		}
	}
}

func TestMutationsRequireIDs(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	for name, call := range map[string]func() error{
		"like":     func() error { return svc.LikePost(ctx, " ") },
		"register": func() error { return svc.RegisterForEvent(ctx, "") },
		"delete":   func() error { return svc.DeleteNotification(ctx, "") },
	} {
		if err := call(); !apperrors.IsKind(err, apperrors.KindInvalidInput) {
			t.Fatalf("%s: err = %v, want invalid input", name, err)
		}
	}
	if len(srv.calls) != 0 {
		t.Fatalf("invalid input reached the server: %v", srv.calls)
	}
}

func TestNotificationPollsRunAtIndependentRates(t *testing.T) {
	svc, srv := newService(t)
	clk := testclock.NewClock(time.Now())
	poller := poll.New(poll.Options{Clock: clk})
	polls := svc.StartNotificationPolls(context.Background(), poller, PollConfig{})
	defer polls.Release()

	var badge []int
	var mu sync.Mutex
	stop := svc.WatchUnreadCount(context.Background(), func(n int) {
		mu.Lock()
		badge = append(badge, n)
		mu.Unlock()
	})
	defer stop()

	for i := 1; i <= 3; i++ {
		if err := clk.WaitAdvance(10*time.Second, shortWait, 2); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		want := i
		waitFor(t, func() bool { return srv.count(UnreadCountQuery.Name) == want })
	}
	waitFor(t, func() bool { return srv.count(NotificationsQuery.Name) == 1 })

	polls.Release()
	if err := clk.WaitAdvance(30*time.Second, 0, 0); err != nil {
		t.Fatalf("advance after release: %v", err)
	}
	if srv.count(UnreadCountQuery.Name) != 3 || srv.count(NotificationsQuery.Name) != 1 {
		t.Fatal("poll fetched after release")
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]int{2}, badge); diff != "" {
		t.Fatalf("badge deliveries mismatch (-want +got):\n%s", diff)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(shortWait)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}
