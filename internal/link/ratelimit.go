package link

import (
	"context"

	"github.com/danz-app/danz/internal/graphql"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"golang.org/x/time/rate"
)

// Limiter paces outbound operations.
type Limiter struct {
	limiter *rate.Limiter
}

// RateLimit builds a link allowing rps operations per second with burst.
// A non-positive rps disables limiting.
func RateLimit(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Execute waits for a token, then calls next.
func (l *Limiter) Execute(ctx context.Context, req graphql.Request, next Next) (*graphql.Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRateLimited, "graphql rate limit", err).
			WithMetadata("operation", req.Operation.Name)
	}
	return next(ctx, req)
}

var _ Link = (*Limiter)(nil)
