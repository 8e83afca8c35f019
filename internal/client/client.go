// Package client is the entrypoint views use to read, write and watch
// server data. Every operation runs through the link chain and lands in the
// shared normalized cache; views re-read from the cache.
package client

import (
	"context"
	"reflect"
	"sync"

	"github.com/danz-app/danz/internal/cache"
	"github.com/danz-app/danz/internal/graphql"
	"github.com/danz-app/danz/internal/link"
	"github.com/danz-app/danz/internal/optimistic"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"go.uber.org/zap"
)

// FetchPolicy selects where a query is answered from.
type FetchPolicy int

const (
	// CacheFirst answers from the cache when every field is present and goes
	// to the network otherwise.
	CacheFirst FetchPolicy = iota
	// NetworkOnly always fetches and writes the result to the cache.
	NetworkOnly
	// CacheOnly never fetches.
	CacheOnly
)

func (p FetchPolicy) String() string {
	switch p {
	case NetworkOnly:
		return "network-only"
	case CacheOnly:
		return "cache-only"
	default:
		return "cache-first"
	}
}

// Options configure a Client.
type Options struct {
	Logger *zap.Logger
}

// Client binds a cache to a link chain.
type Client struct {
	cache     *cache.Cache
	exec      link.Next
	mutations *optimistic.Manager
	logger    *zap.Logger
}

// New builds a Client.
func New(c *cache.Cache, exec link.Next, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cache:     c,
		exec:      exec,
		mutations: optimistic.NewManager(c, logger),
		logger:    logger,
	}
}

// Cache returns the shared cache.
func (cl *Client) Cache() *cache.Cache { return cl.cache }

// PendingMutations reports optimistic mutations awaiting the server.
func (cl *Client) PendingMutations() int { return cl.mutations.Pending() }

// Query answers op per policy. Network results are merged into the cache
// and the merged view is returned, so a later page comes back as the whole
// accumulated list. A later page the cached lists do not reach yet goes to
// the network under CacheFirst. Failures leave the cache untouched.
func (cl *Client) Query(ctx context.Context, op graphql.Operation, vars map[string]any, policy FetchPolicy) (map[string]any, error) {
	if policy == CacheOnly || (policy == CacheFirst && cl.cache.Covers(op.Fields, vars)) {
		if data, ok := cl.cache.ReadQuery(op.Fields, vars); ok {
			return data, nil
		}
		if policy == CacheOnly {
			return nil, apperrors.New(apperrors.CodeNotFound, "query not in cache").WithMetadata("operation", op.Name)
		}
	}
	data, err := cl.fetch(ctx, op, vars)
	if err != nil {
		return nil, err
	}
	if merged, ok := cl.cache.ReadQuery(op.Fields, vars); ok {
		return merged, nil
	}
	return data, nil
}

// Refetch fetches op from the network into the cache, discarding the
// payload. Polls use it.
func (cl *Client) Refetch(ctx context.Context, op graphql.Operation, vars map[string]any) error {
	_, err := cl.fetch(ctx, op, vars)
	return err
}

func (cl *Client) fetch(ctx context.Context, op graphql.Operation, vars map[string]any) (map[string]any, error) {
	stamp := cl.cache.Begin()
	resp, err := cl.exec(ctx, graphql.NewRequest(op, vars))
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Data == nil {
		return nil, apperrors.New(apperrors.CodeBadResponse, "response carried no data").WithMetadata("operation", op.Name)
	}
	cl.cache.WriteResult(stamp, vars, resp.Data)
	return resp.Data, nil
}

// MutateOptions shape a mutation's cache effects.
type MutateOptions struct {
	// Optimistic returns the predicted data payload, shaped exactly like the
	// server's, applied before dispatch.
	Optimistic func() map[string]any
	// Update derives further cache changes from a data payload. It runs once
	// on the prediction against the visible cache and once on the confirmed
	// payload against confirmed data only.
	Update func(v cache.View, data map[string]any) cache.Patch
	// Evict removes entities once the mutation is applied.
	Evict []cache.Ref
}

func (o MutateOptions) patch(vars map[string]any, data map[string]any) func(cache.View) cache.Patch {
	return func(v cache.View) cache.Patch {
		patch := v.Policies().Normalize(vars, data)
		if o.Update != nil {
			patch.Append(o.Update(v, data))
		}
		for _, ref := range o.Evict {
			patch.EvictRef(ref)
		}
		return patch
	}
}

// Mutate runs a write. With an optimistic prediction the cache reflects it
// at once; a failure rolls it back and returns a rollback error wrapping the
// cause.
func (cl *Client) Mutate(ctx context.Context, op graphql.Operation, vars map[string]any, opts MutateOptions) (map[string]any, error) {
	stamp := cl.cache.Begin()
	var mut *optimistic.Mutation
	if opts.Optimistic != nil {
		mut = cl.mutations.Begin(op.Name, stamp, opts.patch(vars, opts.Optimistic()))
	}

	resp, err := cl.exec(ctx, graphql.NewRequest(op, vars))
	if err == nil && (resp == nil || resp.Data == nil) {
		err = apperrors.New(apperrors.CodeBadResponse, "response carried no data").WithMetadata("operation", op.Name)
	}
	if err != nil {
		if mut != nil {
			return nil, mut.Rollback(err)
		}
		return nil, err
	}

	confirmed := opts.patch(vars, resp.Data)
	if mut != nil {
		if err := mut.Confirm(confirmed); err != nil {
			return nil, err
		}
	} else {
		// No layer to drop; the write still counts as a confirmed intent.
		cl.cache.CommitWith("", stamp, confirmed)
	}
	return resp.Data, nil
}

// WatchQuery calls fn with the cached result of op now, if present, and
// again whenever a cache change alters it, until ctx ends or the returned
// func is called. fn runs on the writer's goroutine, one call at a time.
func (cl *Client) WatchQuery(ctx context.Context, op graphql.Operation, vars map[string]any, fn func(map[string]any)) func() {
	w := &watch{fn: fn, read: func() (map[string]any, bool) { return cl.cache.ReadQuery(op.Fields, vars) }}
	unwatch := cl.cache.Watch(func(cache.Change) { w.refresh() })
	w.refresh()
	stop := context.AfterFunc(ctx, unwatch)
	return func() {
		stop()
		unwatch()
	}
}

type watch struct {
	mu   sync.Mutex
	last map[string]any
	read func() (map[string]any, bool)
	fn   func(map[string]any)
}

// refresh re-reads under the watch lock so deliveries stay ordered and
// always carry the latest state.
func (w *watch) refresh() {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.read()
	if !ok {
		return
	}
	if w.last != nil && reflect.DeepEqual(w.last, data) {
		return
	}
	w.last = data
	w.fn(data)
}
