package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/danz-app/danz/internal/platform/rest"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	rc, err := rest.New(server.URL, rest.Options{Token: rest.StaticToken("access")})
	if err != nil {
		t.Fatalf("rest.New() error = %v", err)
	}
	return New(rc, Options{})
}

func TestCreateCheckoutSession(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != checkoutPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer access" {
			t.Errorf("missing bearer token")
		}
		var req CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PriceID != "price_pro" {
			t.Errorf("request = %+v, %v", req, err)
		}
		_ = json.NewEncoder(w).Encode(Session{URL: "https://checkout.example/cs_1", SessionID: "cs_1"})
	})
	got, err := c.CreateCheckoutSession(context.Background(), CheckoutRequest{PriceID: " price_pro ", SuccessURL: "https://danz.app/ok"})
	if err != nil {
		t.Fatalf("CreateCheckoutSession() error = %v", err)
	}
	if got.SessionID != "cs_1" || got.URL != "https://checkout.example/cs_1" {
		t.Fatalf("session = %+v", got)
	}
}

func TestCreatePortalSession(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != portalPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://billing.example/p", "sessionId": "bps_1"})
	})
	got, err := c.CreatePortalSession(context.Background(), PortalRequest{ReturnURL: "https://danz.app/dashboard"})
	if err != nil {
		t.Fatalf("CreatePortalSession() error = %v", err)
	}
	if got.SessionID != "bps_1" {
		t.Fatalf("session = %+v", got)
	}
}

func TestCheckoutValidation(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("invalid request reached the server")
	})
	ctx := context.Background()
	if _, err := c.CreateCheckoutSession(ctx, CheckoutRequest{}); !apperrors.IsKind(err, apperrors.KindInvalidInput) {
		t.Fatalf("empty price: err = %v", err)
	}
	if _, err := c.CreateCheckoutSession(ctx, CheckoutRequest{PriceID: "p", CancelURL: "/relative"}); !apperrors.IsKind(err, apperrors.KindInvalidInput) {
		t.Fatalf("relative redirect: err = %v", err)
	}
}

func TestSessionErrors(t *testing.T) {
	t.Parallel()

	unauthorized := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if _, err := unauthorized.CreatePortalSession(context.Background(), PortalRequest{}); !apperrors.IsKind(err, apperrors.KindUnauthenticated) {
		t.Fatalf("err = %v, want unauthenticated", err)
	}

	noURL := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sessionId":"x"}`))
	})
	if _, err := noURL.CreatePortalSession(context.Background(), PortalRequest{}); apperrors.CodeOf(err) != apperrors.CodeBadResponse {
		t.Fatalf("err = %v, want bad response", err)
	}
}
