package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"
	"go.uber.org/zap"
)

// Options configure a Session.
type Options struct {
	// Login obtains a token when Login is called. Optional.
	Login TokenSource
	// Leeway treats tokens as expired this long before their exp claim.
	Leeway time.Duration
	Now    func() time.Time
	// Clock schedules the expiry announcement. Defaults to the wall clock.
	Clock  clock.Clock
	Logger *zap.Logger
}

// Session is a Provider backed by one bearer token. Token claims are read
// without verification; the server remains the authority.
type Session struct {
	login  TokenSource
	leeway time.Duration
	now    func() time.Time
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.RWMutex
	ready   bool
	token   string
	subject string
	expires time.Time
	gen     uint64
	expiry  clock.Timer

	subMu sync.Mutex
	subs  map[uint64]func(State)
	next  uint64
}

// NewSession builds an empty, not yet ready session.
func NewSession(opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		login:  opts.Login,
		leeway: opts.Leeway,
		now:    now,
		clock:  clk,
		logger: logger,
		subs:   make(map[uint64]func(State)),
	}
}

// SetToken installs token, marks the session ready and notifies subscribers.
// An empty token signs the session out. Subscribers are notified again when
// the token expires.
func (s *Session) SetToken(token string) error {
	token = strings.TrimSpace(token)
	var (
		subject string
		expires time.Time
	)
	if token != "" {
		claims, err := parseClaims(token)
		if err != nil {
			return err
		}
		subject = claims.Subject
		if claims.ExpiresAt != nil {
			expires = claims.ExpiresAt.Time
		}
	}
	s.mu.Lock()
	s.ready = true
	s.token = token
	s.subject = subject
	s.expires = expires
	s.gen++
	s.scheduleExpiryLocked(s.gen)
	s.mu.Unlock()
	s.publish()
	return nil
}

func (s *Session) scheduleExpiryLocked(gen uint64) {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if s.token == "" || s.expires.IsZero() {
		return
	}
	wait := s.expires.Sub(s.now().Add(s.leeway))
	if wait <= 0 {
		return
	}
	s.expiry = s.clock.AfterFunc(wait, func() { s.expire(gen) })
}

func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	current := s.gen == gen
	if current {
		s.expiry = nil
	}
	s.mu.Unlock()
	if !current {
		return
	}
	s.logger.Info("access token expired", zap.String("user_id", s.UserID()))
	s.publish()
}

// MarkReady records that the provider finished initializing without a token.
func (s *Session) MarkReady() {
	s.mu.Lock()
	changed := !s.ready
	s.ready = true
	s.mu.Unlock()
	if changed {
		s.publish()
	}
}

// Ready reports whether the provider has initialized.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Authenticated reports whether a non-expired token is held.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usableLocked()
}

func (s *Session) usableLocked() bool {
	if s.token == "" {
		return false
	}
	if s.expires.IsZero() {
		return true
	}
	return s.now().Add(s.leeway).Before(s.expires)
}

// UserID returns the token subject, or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// State returns the current observation.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Ready: s.ready, Authenticated: s.usableLocked(), UserID: s.subject}
}

// GetAccessToken returns the held token or ErrNoToken.
func (s *Session) GetAccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.usableLocked() {
		return "", ErrNoToken
	}
	return s.token, nil
}

// Login obtains a token from the configured source.
func (s *Session) Login(ctx context.Context) error {
	if s.login == nil {
		return fmt.Errorf("login is not configured")
	}
	token, err := s.login(ctx)
	if err != nil {
		s.logger.Warn("login failed", zap.Error(err))
		return fmt.Errorf("login: %w", err)
	}
	return s.SetToken(token)
}

// Logout drops the token.
func (s *Session) Logout(context.Context) error {
	return s.SetToken("")
}

// Subscribe registers fn for state transitions.
func (s *Session) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.next++
	id := s.next
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) publish() {
	state := s.State()
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func parseClaims(token string) (jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return jwt.RegisteredClaims{}, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}

var _ Provider = (*Session)(nil)
