// Package billing creates hosted checkout and customer-portal sessions with
// the payment provider's backend.
package billing

import (
	"context"
	"net/url"
	"strings"

	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/danz-app/danz/internal/platform/rest"
	"go.uber.org/zap"
)

const (
	checkoutPath = "/api/stripe/create-checkout-session"
	portalPath   = "/api/stripe/create-portal-session"
)

// Session is a hosted page the user is sent to.
type Session struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// CheckoutRequest selects what is being bought.
type CheckoutRequest struct {
	PriceID    string `json:"priceId"`
	Plan       string `json:"plan,omitempty"`
	SuccessURL string `json:"successUrl,omitempty"`
	CancelURL  string `json:"cancelUrl,omitempty"`
}

// PortalRequest opens the customer's billing portal.
type PortalRequest struct {
	ReturnURL string `json:"returnUrl,omitempty"`
}

// Options configure a Client.
type Options struct {
	Logger *zap.Logger
}

// Client talks to the billing endpoints.
type Client struct {
	rest   *rest.Client
	logger *zap.Logger
}

// New builds a Client over an authenticated REST client.
func New(rc *rest.Client, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{rest: rc, logger: logger}
}

// CreateCheckoutSession starts a checkout for req.PriceID.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error) {
	req.PriceID = strings.TrimSpace(req.PriceID)
	if req.PriceID == "" {
		return Session{}, apperrors.New(apperrors.CodeBadUserInput, "price id is required")
	}
	for _, u := range []string{req.SuccessURL, req.CancelURL} {
		if err := validRedirect(u); err != nil {
			return Session{}, err
		}
	}
	return c.create(ctx, checkoutPath, req)
}

// CreatePortalSession opens the billing portal.
func (c *Client) CreatePortalSession(ctx context.Context, req PortalRequest) (Session, error) {
	if err := validRedirect(req.ReturnURL); err != nil {
		return Session{}, err
	}
	return c.create(ctx, portalPath, req)
}

func (c *Client) create(ctx context.Context, path string, body any) (Session, error) {
	var session Session
	if err := c.rest.Post(ctx, path, body, &session); err != nil {
		c.logger.Warn("billing session failed", zap.String("path", path), zap.Error(err))
		return Session{}, err
	}
	if session.URL == "" {
		return Session{}, apperrors.New(apperrors.CodeBadResponse, "billing session has no url")
	}
	if _, err := url.ParseRequestURI(session.URL); err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeBadResponse, "billing session url is invalid", err)
	}
	c.logger.Debug("billing session created", zap.String("path", path), zap.String("session_id", session.SessionID))
	return session, nil
}

func validRedirect(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return apperrors.New(apperrors.CodeBadUserInput, "redirect url must be absolute http(s)")
	}
	return nil
}
