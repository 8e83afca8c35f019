// Package timeouts defines shared timeout and interval constants so client,
// poll and process boundaries agree on the same durations.
package timeouts

import "time"

// GraphQLRequest caps a single GraphQL round trip when the caller's context
// carries no deadline.
const GraphQLRequest = 10 * time.Second

// TokenFetch caps how long the auth link waits for an access token before
// sending the request unauthenticated.
const TokenFetch = 2 * time.Second

// RESTRequest caps one call to a REST collaborator (billing, referral,
// social graph).
const RESTRequest = 8 * time.Second

// NotificationListPoll is the refresh period for notification list content.
const NotificationListPoll = 30 * time.Second

// UnreadCountPoll is the refresh period for the unread badge count.
const UnreadCountPoll = 10 * time.Second

// Shutdown limits how long a process waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
