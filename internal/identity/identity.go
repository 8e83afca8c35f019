// Package identity models the external session provider: readiness, the
// authenticated flag and an access token accessor used to stamp requests.
package identity

import (
	"context"
	"errors"
)

// ErrNoToken is returned by GetAccessToken when no usable token is held.
var ErrNoToken = errors.New("no access token")

// State is one observation of the session.
type State struct {
	Ready         bool
	Authenticated bool
	// UserID is the provider's stable account identifier (a Privy DID).
	UserID string
}

// Provider is the capability the link chain and poll leases consume.
type Provider interface {
	Ready() bool
	Authenticated() bool
	GetAccessToken(ctx context.Context) (string, error)
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	// Subscribe calls fn on every state transition until the returned func
	// is called.
	Subscribe(fn func(State)) func()
}

// TokenSource fetches a fresh access token, for example by completing an
// interactive login.
type TokenSource func(ctx context.Context) (string, error)
