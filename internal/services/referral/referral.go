// Package referral reads referral attribution and points standings from the
// hosted read-only store.
package referral

import (
	"context"
	"strconv"
	"time"

	"github.com/danz-app/danz/internal/platform/paging"
	"github.com/danz-app/danz/internal/platform/rest"
	"go.einride.tech/aip/filtering"
	"go.uber.org/zap"
)

const restPrefix = "/rest/v1/"

// Referral is one attributed sign-up.
type Referral struct {
	ID            string    `json:"id"`
	ReferrerID    string    `json:"referrer_id"`
	ReferredID    string    `json:"referred_id"`
	Code          string    `json:"referral_code"`
	Status        string    `json:"status"`
	PointsAwarded int       `json:"points_awarded"`
	CreatedAt     time.Time `json:"created_at"`
}

// Standing is one row of the points leaderboard.
type Standing struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	TotalPoints   int    `json:"total_points"`
	ReferralCount int    `json:"referral_count"`
}

// Referrals is the referrals table.
var Referrals = Table{
	Name:   "referrals",
	Select: "id,referrer_id,referred_id,referral_code,status,points_awarded,created_at",
	Columns: []Column{
		{Name: "id", Type: filtering.TypeString},
		{Name: "referrer_id", Type: filtering.TypeString},
		{Name: "referred_id", Type: filtering.TypeString},
		{Name: "referral_code", Type: filtering.TypeString},
		{Name: "status", Type: filtering.TypeString},
		{Name: "points_awarded", Type: filtering.TypeInt},
		{Name: "created_at", Type: filtering.TypeTimestamp},
	},
	DefaultOrder: "created_at desc",
}

// Standings is the leaderboard view.
var Standings = Table{
	Name:   "referral_leaderboard",
	Select: "user_id,username,total_points,referral_count",
	Columns: []Column{
		{Name: "user_id", Type: filtering.TypeString},
		{Name: "username", Type: filtering.TypeString},
		{Name: "total_points", Type: filtering.TypeInt},
		{Name: "referral_count", Type: filtering.TypeInt},
	},
	DefaultOrder: "total_points desc",
}

var pageSizes = paging.SizeConfig{Default: 50, Max: 1000}

// Options configure a Client.
type Options struct {
	Logger *zap.Logger
	// MaxPages bounds the walks done by the All helpers. Zero means 20.
	MaxPages int
}

// Client queries the store.
type Client struct {
	rest     *rest.Client
	logger   *zap.Logger
	maxPages int
}

// New builds a Client. rc should carry the store's api key header.
func New(rc *rest.Client, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}
	return &Client{rest: rc, logger: logger, maxPages: maxPages}
}

func list[T any](ctx context.Context, c *Client, table Table, q Query) ([]T, error) {
	q.Limit = paging.ClampSize(q.Limit, pageSizes)
	values, err := table.Values(q)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := c.rest.Get(ctx, restPrefix+table.Name, values, &out); err != nil {
		c.logger.Warn("referral store query failed", zap.String("table", table.Name), zap.Error(err))
		return nil, err
	}
	return out, nil
}

// all walks offset pages until a short page.
func all[T any](ctx context.Context, c *Client, table Table, q Query) ([]T, error) {
	size := paging.ClampSize(q.Limit, pageSizes)
	fetch := paging.FetchFunc[T](func(ctx context.Context, cursor string) ([]T, string, error) {
		page := q
		page.Limit = size
		page.Offset, _ = strconv.Atoi(cursor)
		rows, err := list[T](ctx, c, table, page)
		if err != nil {
			return nil, "", err
		}
		if len(rows) < size {
			return rows, "", nil
		}
		return rows, strconv.Itoa(page.Offset + len(rows)), nil
	})
	return paging.CollectMax(ctx, c.maxPages, fetch, func(row T) (T, bool) { return row, true })
}

// ListReferrals returns one page of referrals matching q.
func (c *Client) ListReferrals(ctx context.Context, q Query) ([]Referral, error) {
	return list[Referral](ctx, c, Referrals, q)
}

// AllReferrals returns every referral matching q, up to the page bound.
func (c *Client) AllReferrals(ctx context.Context, q Query) ([]Referral, error) {
	return all[Referral](ctx, c, Referrals, q)
}

// ReferralsBy returns the referrals credited to referrerID, newest first.
func (c *Client) ReferralsBy(ctx context.Context, referrerID string) ([]Referral, error) {
	return c.AllReferrals(ctx, Query{Filter: `referrer_id = "` + escape(referrerID) + `"`})
}

// Leaderboard returns the top standings.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	return list[Standing](ctx, c, Standings, Query{Limit: limit})
}

// Summary totals a referrer's completed referrals.
type Summary struct {
	Total     int
	Completed int
	Points    int
}

// Summarize totals refs.
func Summarize(refs []Referral) Summary {
	var s Summary
	for _, r := range refs {
		s.Total++
		if r.Status == "completed" {
			s.Completed++
			s.Points += r.PointsAwarded
		}
	}
	return s
}

func escape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
