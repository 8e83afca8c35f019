// Package dashboard binds the member dashboard's GraphQL operations to the
// shared cache: identity policies, reads, optimistic writes and the
// notification refresh polls.
package dashboard

import "github.com/danz-app/danz/internal/cache"

// Entity typenames.
const (
	TypeUser              = "User"
	TypeEvent             = "Event"
	TypeEventRegistration = "EventRegistration"
	TypeNotification      = "Notification"
	TypePost              = "Post"
)

// Root fields.
const (
	FieldFeed          = "feed"
	FieldEvents        = "events"
	FieldNotifications = "notifications"
	FieldUnreadCount   = "unreadNotificationCount"
	FieldMe            = "me"
)

// Policies returns the cache configuration for dashboard data. Users are
// keyed by their auth account id so every query path converges on one
// record.
func Policies() cache.Policies {
	return cache.Policies{
		Types: map[string]cache.TypePolicy{
			TypeUser:              {KeyFields: []string{"privy_id"}},
			TypeEvent: {Fields: map[string]cache.FieldPolicy{
				"location": {Strategy: cache.FieldwiseLatestWins},
			}},
			TypeEventRegistration: {},
			TypeNotification:      {},
			TypePost:              {},
		},
		Root: map[string]cache.FieldPolicy{
			FieldFeed:          {Strategy: cache.AppendDeduped},
			FieldEvents:        {Strategy: cache.AppendDeduped},
			FieldNotifications: {Strategy: cache.AppendDeduped, KeyArgs: []string{"unread_only"}},
		},
	}
}

// PostRef returns the cache ref of a post.
func PostRef(id string) cache.Ref { return cache.Ref{Typename: TypePost, ID: id} }

// EventRef returns the cache ref of an event.
func EventRef(id string) cache.Ref { return cache.Ref{Typename: TypeEvent, ID: id} }

// NotificationRef returns the cache ref of a notification.
func NotificationRef(id string) cache.Ref { return cache.Ref{Typename: TypeNotification, ID: id} }

// UserRef returns the cache ref of a user by account id.
func UserRef(privyID string) cache.Ref { return cache.Ref{Typename: TypeUser, ID: privyID} }
