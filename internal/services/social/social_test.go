package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/danz-app/danz/internal/platform/rest"
	"github.com/google/go-cmp/cmp"
)

func wire(fid int64, name string, followers int) map[string]any {
	return map[string]any{"user": map[string]any{
		"fid": fid, "username": name, "display_name": "", "pfp_url": "https://img/" + name, "follower_count": followers,
	}}
}

func newClient(t *testing.T) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" {
			t.Errorf("missing api key")
		}
		if r.URL.Query().Get("fid") != "7" && r.URL.Path != "/v2/farcaster/user/bulk" {
			t.Errorf("fid = %q", r.URL.Query().Get("fid"))
		}
		var body any
		switch r.URL.Path {
		case "/v2/farcaster/followers":
			if r.URL.Query().Get("cursor") == "" {
				body = map[string]any{"users": []any{wire(1, "Ana", 10), wire(2, "bo", 50)}, "next": map[string]any{"cursor": "c2"}}
			} else {
				body = map[string]any{"users": []any{wire(3, "cy", 5), wire(4, "bad name", 1)}, "next": map[string]any{"cursor": nil}}
			}
		case "/v2/farcaster/following":
			body = map[string]any{"users": []any{wire(2, "bo", 50), wire(3, "cy", 5), wire(9, "zed", 1)}}
		case "/v2/farcaster/user/bulk":
			if r.URL.Query().Get("fids") != "1,2" {
				t.Errorf("fids = %q", r.URL.Query().Get("fids"))
			}
			body = map[string]any{"users": []any{wire(1, "ana", 10)["user"], wire(2, "bo", 50)["user"]}}
		default:
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	rc, err := rest.New(server.URL, rest.Options{Header: map[string]string{"x-api-key": "key"}})
	if err != nil {
		t.Fatalf("rest.New() error = %v", err)
	}
	return New(rc, Options{})
}

func TestFollowersWalksCursorAndMaps(t *testing.T) {
	t.Parallel()

	got, err := newClient(t).Followers(context.Background(), 7)
	if err != nil {
		t.Fatalf("Followers() error = %v", err)
	}
	want := []Friend{
		{FID: 1, Username: "ana", DisplayName: "ana", AvatarURL: "https://img/Ana", Followers: 10},
		{FID: 2, Username: "bo", DisplayName: "bo", AvatarURL: "https://img/bo", Followers: 50},
		{FID: 3, Username: "cy", DisplayName: "cy", AvatarURL: "https://img/cy", Followers: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Followers() mismatch (-want +got):\n%s", diff)
	}
}

func TestFriendsAreMutualFollows(t *testing.T) {
	t.Parallel()

	got, err := newClient(t).Friends(context.Background(), 7)
	if err != nil {
		t.Fatalf("Friends() error = %v", err)
	}
	var names []string
	for _, f := range got {
		names = append(names, f.Username)
	}
	if diff := cmp.Diff([]string{"bo", "cy"}, names); diff != "" {
		t.Fatalf("Friends() mismatch (-want +got):\n%s", diff)
	}
}

func TestUsers(t *testing.T) {
	t.Parallel()

	got, err := newClient(t).Users(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	if len(got) != 2 || got[0].Username != "ana" {
		t.Fatalf("Users() = %+v", got)
	}
}

func TestRelationsRejectBadFID(t *testing.T) {
	t.Parallel()

	if _, err := newClient(t).Followers(context.Background(), 0); !apperrors.IsKind(err, apperrors.KindInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}
