// Package link is the ordered pipeline every GraphQL operation passes
// through on its way to the server: error interception, auth stamping and
// finally the HTTP transport.
package link

import (
	"context"

	"github.com/danz-app/danz/internal/graphql"
)

// Next invokes the remainder of the chain.
type Next func(ctx context.Context, req graphql.Request) (*graphql.Response, error)

// Link is one stage of the chain. A link may inspect or rewrite the request,
// call next zero or one times, and inspect or replace the result.
type Link interface {
	Execute(ctx context.Context, req graphql.Request, next Next) (*graphql.Response, error)
}

// Func adapts a function to Link.
type Func func(ctx context.Context, req graphql.Request, next Next) (*graphql.Response, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, req graphql.Request, next Next) (*graphql.Response, error) {
	return f(ctx, req, next)
}

// Terminal delivers a request to the server.
type Terminal interface {
	RoundTrip(ctx context.Context, req graphql.Request) (*graphql.Response, error)
}

// TerminalFunc adapts a function to Terminal.
type TerminalFunc func(ctx context.Context, req graphql.Request) (*graphql.Response, error)

// RoundTrip calls f.
func (f TerminalFunc) RoundTrip(ctx context.Context, req graphql.Request) (*graphql.Response, error) {
	return f(ctx, req)
}

// Chain composes links in order ahead of terminal. The first link sees the
// request first and the response last. Nil links are skipped.
func Chain(terminal Terminal, links ...Link) Next {
	next := Next(terminal.RoundTrip)
	for i := len(links) - 1; i >= 0; i-- {
		l := links[i]
		if l == nil {
			continue
		}
		inner := next
		next = func(ctx context.Context, req graphql.Request) (*graphql.Response, error) {
			return l.Execute(ctx, req, inner)
		}
	}
	return next
}
