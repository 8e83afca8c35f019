// Package rest is a small JSON-over-HTTP client for the REST collaborators
// (billing, referral store, social graph).
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/danz-app/danz/internal/platform/timeouts"
	"github.com/valyala/fasthttp"
)

// TokenFunc returns the bearer token for a request. An empty token sends the
// request without an Authorization header.
type TokenFunc func(ctx context.Context) (string, error)

// StaticToken returns a TokenFunc that always yields token.
func StaticToken(token string) TokenFunc {
	token = strings.TrimSpace(token)
	return func(context.Context) (string, error) { return token, nil }
}

// Options configure a Client.
type Options struct {
	HTTP    *fasthttp.Client
	Token   TokenFunc
	Timeout time.Duration
	// Header is sent on every request.
	Header map[string]string
}

// Client calls one REST base URL.
type Client struct {
	base    string
	http    *fasthttp.Client
	token   TokenFunc
	timeout time.Duration
	header  map[string]string
}

// New builds a Client for baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, apperrors.New(apperrors.CodeNotConfigured, "base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNotConfigured, "invalid base url", err)
	}
	client := opts.HTTP
	if client == nil {
		client = &fasthttp.Client{Name: "danz-dashboard"}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = timeouts.RESTRequest
	}
	return &Client{base: baseURL, http: client, token: opts.Token, timeout: timeout, header: opts.Header}, nil
}

// Get fetches path with query and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, fasthttp.MethodGet, path, query, nil, out)
}

// Post sends body as JSON to path and decodes the JSON reply into out.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, fasthttp.MethodPost, path, nil, body, out)
}

// Do performs one request. Non-2xx replies map to typed errors by status.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	target := c.base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req.SetRequestURI(target)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeUnauthenticated, "access token unavailable", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return apperrors.Wrap(apperrors.CodeNetwork, fmt.Sprintf("%s %s", method, path), err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return statusError(status, path, resp.Body())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return apperrors.Wrap(apperrors.CodeBadResponse, fmt.Sprintf("decode %s response", path), err)
	}
	return nil
}

func statusError(status int, path string, body []byte) error {
	code := apperrors.CodeUpstreamFailure
	switch {
	case status == fasthttp.StatusUnauthorized:
		code = apperrors.CodeUnauthenticated
	case status == fasthttp.StatusForbidden:
		code = apperrors.CodeForbidden
	case status == fasthttp.StatusNotFound:
		code = apperrors.CodeNotFound
	case status == fasthttp.StatusTooManyRequests:
		code = apperrors.CodeRateLimited
	case status >= 400 && status < 500:
		code = apperrors.CodeBadUserInput
	}
	msg := fmt.Sprintf("%s returned %d", path, status)
	if detail := upstreamMessage(body); detail != "" {
		msg += ": " + detail
	}
	return apperrors.New(code, msg).WithMetadata("status", fmt.Sprint(status))
}

// upstreamMessage pulls a short message out of common error bodies.
func upstreamMessage(body []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	switch e := payload.Error.(type) {
	case string:
		return e
	case map[string]any:
		msg, _ := e["message"].(string)
		return msg
	}
	return ""
}
