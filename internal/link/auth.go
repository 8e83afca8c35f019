package link

import (
	"context"
	"strings"
	"time"

	"github.com/danz-app/danz/internal/graphql"
	"github.com/danz-app/danz/internal/platform/timeouts"
	"go.uber.org/zap"
)

// TokenProvider is the part of the identity provider the auth link needs.
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// AuthStamper attaches the bearer credential to outgoing requests.
type AuthStamper struct {
	provider TokenProvider
	timeout  time.Duration
	logger   *zap.Logger
}

// Auth builds the auth-stamping link. Token retrieval fails open: when no
// token can be obtained the request goes out unauthenticated and the server
// decides.
func Auth(provider TokenProvider, logger *zap.Logger) *AuthStamper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthStamper{provider: provider, timeout: timeouts.TokenFetch, logger: logger}
}

// Execute stamps req and calls next.
func (a *AuthStamper) Execute(ctx context.Context, req graphql.Request, next Next) (*graphql.Response, error) {
	if a.provider != nil {
		tokenCtx, cancel := context.WithTimeout(ctx, a.timeout)
		token, err := a.provider.GetAccessToken(tokenCtx)
		cancel()
		switch {
		case err != nil:
			a.logger.Debug("access token unavailable, sending unauthenticated",
				zap.String("operation", req.Operation.Name), zap.Error(err))
		case strings.TrimSpace(token) != "":
			req.Header = cloneHeader(req.Header)
			req.SetHeader("Authorization", "Bearer "+strings.TrimSpace(token))
		}
	}
	return next(ctx, req)
}

func cloneHeader(h map[string]string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}

var _ Link = (*AuthStamper)(nil)
