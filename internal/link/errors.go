package link

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/danz-app/danz/internal/graphql"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"go.uber.org/zap"
)

// DefaultLoginPath is where an unauthenticated response sends the user.
const DefaultLoginPath = "/login"

// Navigator performs a full navigation away from the current view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(path string) { f(path) }

// ErrorInterceptor classifies failures centrally so call sites only handle
// whether their own operation failed. It is the only component that
// navigates.
type ErrorInterceptor struct {
	navigator Navigator
	loginPath string
	logger    *zap.Logger
	// redirecting suppresses repeat navigations while a redirect is
	// already underway. A successful response or Rearm clears it.
	redirecting atomic.Bool
}

// Errors builds the error-interceptor link.
func Errors(navigator Navigator, loginPath string, logger *zap.Logger) *ErrorInterceptor {
	loginPath = strings.TrimSpace(loginPath)
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorInterceptor{navigator: navigator, loginPath: loginPath, logger: logger}
}

// Rearm ends the current redirect so the next UNAUTHENTICATED response
// navigates again. Call it when a new session begins.
func (e *ErrorInterceptor) Rearm() {
	e.redirecting.Store(false)
}

// Execute runs next and converts failures into typed errors.
func (e *ErrorInterceptor) Execute(ctx context.Context, req graphql.Request, next Next) (*graphql.Response, error) {
	resp, err := next(ctx, req)
	op := req.Operation.Name
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindUnknown {
			err = apperrors.Wrap(apperrors.CodeNetwork, "graphql transport failed", err).WithMetadata("operation", op)
		}
		e.logger.Warn("graphql transport error", zap.String("operation", op), zap.Error(err))
		return nil, err
	}
	if !resp.HasErrors() {
		e.redirecting.Store(false)
		return resp, nil
	}

	classified := classify(resp.Errors).WithMetadata("operation", op)
	switch classified.Code {
	case apperrors.CodeUnauthenticated:
		e.logger.Info("graphql unauthenticated, redirecting to login", zap.String("operation", op))
		if e.navigator != nil && e.redirecting.CompareAndSwap(false, true) {
			e.navigator.Navigate(e.loginPath)
		}
	case apperrors.CodeForbidden:
		e.logger.Info("graphql forbidden", zap.String("operation", op))
	default:
		e.logger.Warn("graphql error", zap.String("operation", op), zap.String("code", string(classified.Code)), zap.String("message", classified.Message))
	}
	return resp, classified
}

// classify picks the most significant code across every reported error:
// UNAUTHENTICATED first, then FORBIDDEN, then the first code present.
func classify(errs []graphql.Error) *apperrors.Error {
	var first graphql.Error
	code := apperrors.Code("")
	for i, gqlErr := range errs {
		if i == 0 {
			first = gqlErr
		}
		switch c := apperrors.Code(gqlErr.Code()); c {
		case apperrors.CodeUnauthenticated:
			return apperrors.New(c, gqlErr.Message)
		case apperrors.CodeForbidden:
			code = c
			first = gqlErr
		default:
			if code == "" && c != "" {
				code = c
				first = gqlErr
			}
		}
	}
	if code == "" {
		code = apperrors.CodeInternal
	}
	return apperrors.New(code, first.Message)
}

var _ Link = (*ErrorInterceptor)(nil)
