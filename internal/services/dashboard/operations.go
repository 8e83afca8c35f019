package dashboard

import (
	"context"

	"github.com/danz-app/danz/internal/cache"
	"github.com/danz-app/danz/internal/client"
	"github.com/danz-app/danz/internal/graphql"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/danz-app/danz/internal/platform/paging"
	"go.uber.org/zap"
)

var pageSizes = paging.SizeConfig{Default: 20, Max: 100}

// Queries.
var (
	FeedQuery = graphql.Operation{
		Name: "GetFeed",
		Document: `query GetFeed($limit: Int, $offset: Int) {
  feed(limit: $limit, offset: $offset) {
    items { __typename id content media_url likes_count is_liked created_at author { __typename privy_id username display_name avatar_url } }
    cursor
    has_more
  }
}`,
		Fields: []string{FieldFeed},
	}
	EventsQuery = graphql.Operation{
		Name: "GetEvents",
		Document: `query GetEvents($limit: Int, $offset: Int, $city: String) {
  events(limit: $limit, offset: $offset, city: $city) {
    items { __typename id title starts_at location { city venue } registration_count is_registered }
    cursor
    has_more
  }
}`,
		Fields: []string{FieldEvents},
	}
	NotificationsQuery = graphql.Operation{
		Name: "GetNotifications",
		Document: `query GetNotifications($limit: Int, $offset: Int, $unread_only: Boolean) {
  notifications(limit: $limit, offset: $offset, unread_only: $unread_only) {
    items { __typename id type title message read created_at }
    cursor
    has_more
  }
}`,
		Fields: []string{FieldNotifications},
	}
	UnreadCountQuery = graphql.Operation{
		Name:     "GetUnreadNotificationCount",
		Document: `query GetUnreadNotificationCount { unreadNotificationCount }`,
		Fields:   []string{FieldUnreadCount},
	}
	MeQuery = graphql.Operation{
		Name:     "GetMe",
		Document: `query GetMe { me { __typename privy_id username display_name avatar_url xp level dance_bonds_count } }`,
		Fields:   []string{FieldMe},
	}
)

// Options configure a Service.
type Options struct {
	Logger *zap.Logger
}

// Service runs dashboard operations through a client.
type Service struct {
	client *client.Client
	logger *zap.Logger
}

// New builds a Service. The client's cache must use Policies.
func New(cl *client.Client, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: cl, logger: logger}
}

// Client returns the underlying client.
func (s *Service) Client() *client.Client { return s.client }

// PageParams select one page of a list.
type PageParams struct {
	Limit  int
	Offset int
}

func (p PageParams) vars() map[string]any {
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return map[string]any{"limit": paging.ClampSize(p.Limit, pageSizes), "offset": offset}
}

// Page is the accumulated list after a fetch: every item merged so far,
// not just the requested page.
type Page struct {
	Items   []map[string]any
	Cursor  string
	HasMore bool
}

func pageFrom(data map[string]any, field string) (Page, error) {
	raw, ok := data[field].(map[string]any)
	if !ok {
		return Page{}, apperrors.New(apperrors.CodeBadResponse, "list envelope missing").WithMetadata("field", field)
	}
	var page Page
	items, _ := raw["items"].([]any)
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			page.Items = append(page.Items, obj)
		}
	}
	page.Cursor, _ = raw["cursor"].(string)
	page.HasMore, _ = raw["has_more"].(bool)
	return page, nil
}

// Feed loads one page of the post feed.
func (s *Service) Feed(ctx context.Context, params PageParams, policy client.FetchPolicy) (Page, error) {
	data, err := s.client.Query(ctx, FeedQuery, params.vars(), policy)
	if err != nil {
		return Page{}, err
	}
	return pageFrom(data, FieldFeed)
}

// EventParams select one page of events, optionally filtered by city.
type EventParams struct {
	PageParams
	City string
}

func (p EventParams) vars() map[string]any {
	vars := p.PageParams.vars()
	if p.City != "" {
		vars["city"] = p.City
	}
	return vars
}

// Events loads one page of events.
func (s *Service) Events(ctx context.Context, params EventParams, policy client.FetchPolicy) (Page, error) {
	data, err := s.client.Query(ctx, EventsQuery, params.vars(), policy)
	if err != nil {
		return Page{}, err
	}
	return pageFrom(data, FieldEvents)
}

// Notifications loads one page of the inbox.
func (s *Service) Notifications(ctx context.Context, params PageParams, policy client.FetchPolicy) (Page, error) {
	data, err := s.client.Query(ctx, NotificationsQuery, params.vars(), policy)
	if err != nil {
		return Page{}, err
	}
	return pageFrom(data, FieldNotifications)
}

// UnreadCount returns the unread notification badge count.
func (s *Service) UnreadCount(ctx context.Context, policy client.FetchPolicy) (int, error) {
	data, err := s.client.Query(ctx, UnreadCountQuery, nil, policy)
	if err != nil {
		return 0, err
	}
	return countOf(data[FieldUnreadCount]), nil
}

// WatchUnreadCount calls fn with the badge count whenever it changes in the
// cache, until ctx ends or the returned func is called.
func (s *Service) WatchUnreadCount(ctx context.Context, fn func(int)) func() {
	return s.client.WatchQuery(ctx, UnreadCountQuery, nil, func(data map[string]any) {
		fn(countOf(data[FieldUnreadCount]))
	})
}

// Me returns the signed-in user's profile.
func (s *Service) Me(ctx context.Context, policy client.FetchPolicy) (map[string]any, error) {
	data, err := s.client.Query(ctx, MeQuery, nil, policy)
	if err != nil {
		return nil, err
	}
	me, ok := data[FieldMe].(map[string]any)
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "profile not available")
	}
	return me, nil
}

// countOf reads a JSON number as an int.
func countOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func readCount(v cache.View, ref cache.Ref, field string) (int, bool) {
	fields, ok := v.Read(ref)
	if !ok {
		return 0, false
	}
	return countOf(fields[field]), true
}
