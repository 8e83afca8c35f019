package dashboard

import (
	"context"
	"strings"

	"github.com/danz-app/danz/internal/cache"
	"github.com/danz-app/danz/internal/client"
	"github.com/danz-app/danz/internal/graphql"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"go.uber.org/zap"
)

// Mutations.
var (
	LikePostMutation = graphql.Operation{
		Name:     "LikePost",
		Kind:     graphql.KindMutation,
		Document: `mutation LikePost($post_id: ID!) { likePost(post_id: $post_id) { __typename id likes_count is_liked } }`,
		Fields:   []string{"likePost"},
	}
	UnlikePostMutation = graphql.Operation{
		Name:     "UnlikePost",
		Kind:     graphql.KindMutation,
		Document: `mutation UnlikePost($post_id: ID!) { unlikePost(post_id: $post_id) { __typename id likes_count is_liked } }`,
		Fields:   []string{"unlikePost"},
	}
	RegisterForEventMutation = graphql.Operation{
		Name: "RegisterForEvent",
		Kind: graphql.KindMutation,
		Document: `mutation RegisterForEvent($event_id: ID!) {
  registerForEvent(event_id: $event_id) { __typename id status event { __typename id registration_count is_registered } }
}`,
		Fields: []string{"registerForEvent"},
	}
	MarkNotificationReadMutation = graphql.Operation{
		Name:     "MarkNotificationRead",
		Kind:     graphql.KindMutation,
		Document: `mutation MarkNotificationRead($id: ID!) { markNotificationRead(id: $id) { __typename id read } }`,
		Fields:   []string{"markNotificationRead"},
	}
	MarkAllNotificationsReadMutation = graphql.Operation{
		Name:     "MarkAllNotificationsRead",
		Kind:     graphql.KindMutation,
		Document: `mutation MarkAllNotificationsRead { markAllNotificationsRead }`,
		Fields:   []string{"markAllNotificationsRead"},
	}
	DeleteNotificationMutation = graphql.Operation{
		Name:     "DeleteNotification",
		Kind:     graphql.KindMutation,
		Document: `mutation DeleteNotification($id: ID!) { deleteNotification(id: $id) }`,
		Fields:   []string{"deleteNotification"},
	}
)

func requireID(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperrors.New(apperrors.CodeBadUserInput, kind+" id is required")
	}
	return id, nil
}

// LikePost likes a post. The like and the adjusted count show at once.
func (s *Service) LikePost(ctx context.Context, postID string) error {
	return s.setLiked(ctx, LikePostMutation, postID, true)
}

// UnlikePost removes a like. The cleared like and count show at once.
func (s *Service) UnlikePost(ctx context.Context, postID string) error {
	return s.setLiked(ctx, UnlikePostMutation, postID, false)
}

func (s *Service) setLiked(ctx context.Context, op graphql.Operation, postID string, liked bool) error {
	postID, err := requireID("post", postID)
	if err != nil {
		return err
	}
	field := op.Fields[0]
	ref := PostRef(postID)
	_, err = s.client.Mutate(ctx, op, map[string]any{"post_id": postID}, client.MutateOptions{
		Optimistic: func() map[string]any {
			return map[string]any{field: map[string]any{
				cache.TypenameField: TypePost,
				"id":                postID,
				"is_liked":          liked,
			}}
		},
		// The server reports the authoritative count; otherwise it is derived
		// from the cached post unless a later toggle already settled it.
		Update: func(v cache.View, data map[string]any) cache.Patch {
			var patch cache.Patch
			post, _ := data[field].(map[string]any)
			if _, confirmed := post["likes_count"]; confirmed {
				return patch
			}
			if v.Superseded(ref, "is_liked") {
				return patch
			}
			fields, ok := v.Read(ref)
			if !ok {
				return patch
			}
			if prev, _ := fields["is_liked"].(bool); prev == liked {
				return patch
			}
			patch.WriteEntity(ref, map[string]any{"likes_count": step(countOf(fields["likes_count"]), liked)})
			return patch
		},
	})
	if err != nil {
		s.logger.Warn("post like toggle failed", zap.String("post_id", postID), zap.Bool("liked", liked), zap.Error(err))
	}
	return err
}

// RegisterForEvent registers the user for an event.
func (s *Service) RegisterForEvent(ctx context.Context, eventID string) error {
	eventID, err := requireID("event", eventID)
	if err != nil {
		return err
	}
	ref := EventRef(eventID)
	_, err = s.client.Mutate(ctx, RegisterForEventMutation, map[string]any{"event_id": eventID}, client.MutateOptions{
		Optimistic: func() map[string]any {
			return map[string]any{"registerForEvent": map[string]any{
				cache.TypenameField: TypeEventRegistration,
				"id":                "pending:" + eventID,
				"status":            "registered",
				"event": map[string]any{
					cache.TypenameField: TypeEvent,
					"id":                eventID,
					"is_registered":     true,
				},
			}}
		},
		Update: func(v cache.View, data map[string]any) cache.Patch {
			var patch cache.Patch
			reg, _ := data["registerForEvent"].(map[string]any)
			event, _ := reg["event"].(map[string]any)
			if _, confirmed := event["registration_count"]; confirmed {
				return patch
			}
			if v.Superseded(ref, "is_registered") {
				return patch
			}
			fields, ok := v.Read(ref)
			if !ok {
				return patch
			}
			if registered, _ := fields["is_registered"].(bool); registered {
				return patch
			}
			patch.WriteEntity(ref, map[string]any{"registration_count": step(countOf(fields["registration_count"]), true)})
			return patch
		},
	})
	if err != nil {
		s.logger.Warn("event registration failed", zap.String("event_id", eventID), zap.Error(err))
	}
	return err
}

// MarkNotificationRead marks one notification read and lowers the badge.
func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	id, err := requireID("notification", id)
	if err != nil {
		return err
	}
	ref := NotificationRef(id)
	_, err = s.client.Mutate(ctx, MarkNotificationReadMutation, map[string]any{"id": id}, client.MutateOptions{
		Optimistic: func() map[string]any {
			return map[string]any{"markNotificationRead": map[string]any{
				cache.TypenameField: TypeNotification,
				"id":                id,
				"read":              true,
			}}
		},
		Update: func(v cache.View, _ map[string]any) cache.Patch {
			return decrementUnread(v, ref)
		},
	})
	return err
}

// MarkAllNotificationsRead marks every cached notification read and zeroes
// the badge.
func (s *Service) MarkAllNotificationsRead(ctx context.Context) error {
	update := func(v cache.View, _ map[string]any) cache.Patch {
		var patch cache.Patch
		for _, ref := range notificationRefs(v) {
			patch.WriteEntity(ref, map[string]any{"read": true})
		}
		patch.SetRoot(v.Policies().StoreKey(FieldUnreadCount, nil), float64(0))
		return patch
	}
	_, err := s.client.Mutate(ctx, MarkAllNotificationsReadMutation, nil, client.MutateOptions{
		Optimistic: func() map[string]any { return map[string]any{"markAllNotificationsRead": true} },
		Update:     update,
	})
	return err
}

// DeleteNotification removes a notification from every list at once.
func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	id, err := requireID("notification", id)
	if err != nil {
		return err
	}
	ref := NotificationRef(id)
	_, err = s.client.Mutate(ctx, DeleteNotificationMutation, map[string]any{"id": id}, client.MutateOptions{
		Optimistic: func() map[string]any { return map[string]any{"deleteNotification": true} },
		Update: func(v cache.View, _ map[string]any) cache.Patch {
			return decrementUnread(v, ref)
		},
		Evict: []cache.Ref{ref},
	})
	return err
}

// decrementUnread lowers the cached badge when ref is a cached unread
// notification.
func decrementUnread(v cache.View, ref cache.Ref) cache.Patch {
	var patch cache.Patch
	fields, ok := v.Read(ref)
	if !ok {
		return patch
	}
	if read, _ := fields["read"].(bool); read {
		return patch
	}
	count, ok := v.ReadRoot(FieldUnreadCount, nil)
	if !ok {
		return patch
	}
	patch.SetRoot(v.Policies().StoreKey(FieldUnreadCount, nil), step(countOf(count), false))
	return patch
}

func notificationRefs(v cache.View) []cache.Ref {
	seen := make(map[cache.Ref]bool)
	var refs []cache.Ref
	for _, vars := range []map[string]any{nil, {"unread_only": true}} {
		for _, ref := range v.ReadRefs(FieldNotifications, vars) {
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

func step(n int, up bool) float64 {
	if up {
		return float64(n + 1)
	}
	if n <= 0 {
		return 0
	}
	return float64(n - 1)
}
