package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock/testclock"
)

func signedToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(expires)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestSessionTokenLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession(Options{Now: func() time.Time { return now }})
	if s.Ready() || s.Authenticated() {
		t.Fatal("new session should be neither ready nor authenticated")
	}

	token := signedToken(t, "did:privy:abc", now.Add(time.Hour))
	if err := s.SetToken(token); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if !s.Ready() || !s.Authenticated() {
		t.Fatal("expected ready and authenticated")
	}
	if s.UserID() != "did:privy:abc" {
		t.Fatalf("user id = %q", s.UserID())
	}
	got, err := s.GetAccessToken(context.Background())
	if err != nil || got != token {
		t.Fatalf("token = %q err = %v", got, err)
	}

	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if s.Authenticated() {
		t.Fatal("still authenticated after logout")
	}
	if _, err := s.GetAccessToken(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}

func TestSessionExpiredTokenIsUnusable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession(Options{Now: func() time.Time { return now }, Leeway: time.Minute})
	if err := s.SetToken(signedToken(t, "u", now.Add(30*time.Second))); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if s.Authenticated() {
		t.Fatal("token inside leeway should count as expired")
	}
}

func TestSessionRejectsMalformedToken(t *testing.T) {
	s := NewSession(Options{})
	if err := s.SetToken("not-a-jwt"); err == nil {
		t.Fatal("expected parse error")
	}
	if s.Ready() {
		t.Fatal("failed set should not mark ready")
	}
}

func TestSessionLoginAndSubscribe(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := signedToken(t, "u1", now.Add(time.Hour))
	s := NewSession(Options{
		Now:   func() time.Time { return now },
		Login: func(context.Context) (string, error) { return token, nil },
	})
	var states []State
	cancel := s.Subscribe(func(st State) { states = append(states, st) })

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	cancel()
	s.MarkReady()

	if len(states) != 2 {
		t.Fatalf("states = %+v, want 2 transitions", states)
	}
	if !states[0].Authenticated || states[0].UserID != "u1" {
		t.Fatalf("login state = %+v", states[0])
	}
	if states[1].Authenticated {
		t.Fatalf("logout state = %+v", states[1])
	}
}

func TestSessionLoginWithoutSource(t *testing.T) {
	if err := NewSession(Options{}).Login(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSessionAnnouncesExpiry(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := NewSession(Options{Now: clk.Now, Clock: clk, Leeway: time.Minute})
	states := make(chan State, 4)
	defer s.Subscribe(func(st State) { states <- st })()

	if err := s.SetToken(signedToken(t, "u1", clk.Now().Add(10*time.Minute))); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if st := <-states; !st.Authenticated {
		t.Fatalf("state after set = %+v", st)
	}
	if err := clk.WaitAdvance(9*time.Minute, time.Second, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	select {
	case st := <-states:
		if st.Authenticated || st.UserID != "u1" {
			t.Fatalf("expiry state = %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("expiry was not announced")
	}
	if s.Authenticated() {
		t.Fatal("expired session still authenticated")
	}
}

func TestSessionReplacedTokenCancelsExpiry(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := NewSession(Options{Now: clk.Now, Clock: clk})
	if err := s.SetToken(signedToken(t, "u1", clk.Now().Add(time.Minute))); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := s.SetToken(signedToken(t, "u1", clk.Now().Add(time.Hour))); err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	states := make(chan State, 4)
	defer s.Subscribe(func(st State) { states <- st })()

	clk.Advance(2 * time.Minute)
	select {
	case st := <-states:
		t.Fatalf("unexpected announcement %+v", st)
	case <-time.After(50 * time.Millisecond):
	}
	if !s.Authenticated() {
		t.Fatal("refreshed session should stay authenticated")
	}
}
