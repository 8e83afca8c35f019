// Package social reads the Farcaster social graph and maps its users into
// the app's friend model. Friends are view-local data and never enter the
// normalized cache.
package social

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/danz-app/danz/internal/platform/paging"
	"github.com/danz-app/danz/internal/platform/rest"
	"github.com/danz-app/danz/internal/services/social/username"
	"go.uber.org/zap"
)

// Friend is a social-graph user as the app shows it.
type Friend struct {
	FID         int64
	Username    string
	DisplayName string
	AvatarURL   string
	Followers   int
}

// user is the provider's wire shape.
type user struct {
	FID           int64  `json:"fid"`
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
	PfpURL        string `json:"pfp_url"`
	FollowerCount int    `json:"follower_count"`
}

type relation struct {
	User user `json:"user"`
}

type relationPage struct {
	Users []relation `json:"users"`
	Next  struct {
		Cursor string `json:"cursor"`
	} `json:"next"`
}

type bulkPage struct {
	Users []user `json:"users"`
}

var pageSizes = paging.SizeConfig{Default: 100, Max: 100}

// Options configure a Client.
type Options struct {
	Logger *zap.Logger
	// MaxPages bounds follower walks. Zero means 10.
	MaxPages int
}

// Client queries the social graph API.
type Client struct {
	rest     *rest.Client
	logger   *zap.Logger
	maxPages int
}

// New builds a Client. rc should carry the provider's api key header.
func New(rc *rest.Client, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}
	return &Client{rest: rc, logger: logger, maxPages: maxPages}
}

// toFriend maps a wire user, dropping users without a valid handle.
func toFriend(u user) (Friend, bool) {
	if u.FID <= 0 {
		return Friend{}, false
	}
	handle, err := username.Canonicalize(u.Username)
	if err != nil {
		return Friend{}, false
	}
	display := strings.TrimSpace(u.DisplayName)
	if display == "" {
		display = handle
	}
	return Friend{
		FID:         u.FID,
		Username:    handle,
		DisplayName: display,
		AvatarURL:   strings.TrimSpace(u.PfpURL),
		Followers:   u.FollowerCount,
	}, true
}

func (c *Client) relations(ctx context.Context, path string, fid int64) ([]Friend, error) {
	if fid <= 0 {
		return nil, apperrors.New(apperrors.CodeBadUserInput, "fid must be positive")
	}
	limit := strconv.Itoa(paging.ClampSize(0, pageSizes))
	fetch := paging.FetchFunc[relation](func(ctx context.Context, cursor string) ([]relation, string, error) {
		query := url.Values{"fid": {strconv.FormatInt(fid, 10)}, "limit": {limit}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		var page relationPage
		if err := c.rest.Get(ctx, path, query, &page); err != nil {
			return nil, "", err
		}
		return page.Users, page.Next.Cursor, nil
	})
	friends, err := paging.CollectMax(ctx, c.maxPages, fetch, func(r relation) (Friend, bool) { return toFriend(r.User) })
	if err != nil {
		c.logger.Warn("social graph query failed", zap.String("path", path), zap.Int64("fid", fid), zap.Error(err))
		return nil, err
	}
	return friends, nil
}

// Followers lists who follows fid.
func (c *Client) Followers(ctx context.Context, fid int64) ([]Friend, error) {
	return c.relations(ctx, "/v2/farcaster/followers", fid)
}

// Following lists who fid follows.
func (c *Client) Following(ctx context.Context, fid int64) ([]Friend, error) {
	return c.relations(ctx, "/v2/farcaster/following", fid)
}

// Friends lists mutual follows of fid, most followed first.
func (c *Client) Friends(ctx context.Context, fid int64) ([]Friend, error) {
	followers, err := c.Followers(ctx, fid)
	if err != nil {
		return nil, err
	}
	following, err := c.Following(ctx, fid)
	if err != nil {
		return nil, err
	}
	back := make(map[int64]bool, len(followers))
	for _, f := range followers {
		back[f.FID] = true
	}
	var mutual []Friend
	for _, f := range following {
		if back[f.FID] {
			mutual = append(mutual, f)
		}
	}
	sort.SliceStable(mutual, func(i, j int) bool { return mutual[i].Followers > mutual[j].Followers })
	return mutual, nil
}

// Users looks up users by fid.
func (c *Client) Users(ctx context.Context, fids []int64) ([]Friend, error) {
	if len(fids) == 0 {
		return nil, nil
	}
	ids := make([]string, len(fids))
	for i, fid := range fids {
		ids[i] = strconv.FormatInt(fid, 10)
	}
	var page bulkPage
	if err := c.rest.Get(ctx, "/v2/farcaster/user/bulk", url.Values{"fids": {strings.Join(ids, ",")}}, &page); err != nil {
		return nil, err
	}
	friends := make([]Friend, 0, len(page.Users))
	for _, u := range page.Users {
		if f, ok := toFriend(u); ok {
			friends = append(friends, f)
		}
	}
	return friends, nil
}
