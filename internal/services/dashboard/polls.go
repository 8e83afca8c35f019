package dashboard

import (
	"context"
	"time"

	"github.com/danz-app/danz/internal/platform/timeouts"
	"github.com/danz-app/danz/internal/poll"
)

// PollConfig sets the two notification refresh rates. Zero selects the
// default.
type PollConfig struct {
	ListInterval  time.Duration
	CountInterval time.Duration
}

func (c PollConfig) withDefaults() PollConfig {
	if c.ListInterval <= 0 {
		c.ListInterval = timeouts.NotificationListPoll
	}
	if c.CountInterval <= 0 {
		c.CountInterval = timeouts.UnreadCountPoll
	}
	return c
}

// NotificationPolls keeps the inbox and the unread badge fresh at
// independent rates.
type NotificationPolls struct {
	List  *poll.Lease
	Count *poll.Lease
}

// StartNotificationPolls starts both polls. They run until ctx ends or
// Release is called.
func (s *Service) StartNotificationPolls(ctx context.Context, poller *poll.Poller, cfg PollConfig) *NotificationPolls {
	cfg = cfg.withDefaults()
	listVars := PageParams{}.vars()
	return &NotificationPolls{
		List: poller.Start(ctx, "notifications.list", cfg.ListInterval, func(ctx context.Context) error {
			return s.client.Refetch(ctx, NotificationsQuery, listVars)
		}),
		Count: poller.Start(ctx, "notifications.unread_count", cfg.CountInterval, func(ctx context.Context) error {
			return s.client.Refetch(ctx, UnreadCountQuery, nil)
		}),
	}
}

// Release stops both polls and waits for them to exit.
func (p *NotificationPolls) Release() {
	p.List.Release()
	p.Count.Release()
}
