// Package dashboard parses dashboard flags and launches the runtime or one
// of its one-shot commands.
package dashboard

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	entrypoint "github.com/danz-app/danz/internal/platform/cmd"
	"github.com/danz-app/danz/internal/platform/logging"
	"github.com/danz-app/danz/internal/platform/rest"
	"github.com/danz-app/danz/internal/services/billing"
	server "github.com/danz-app/danz/internal/services/dashboard/app"
	"github.com/danz-app/danz/internal/services/referral"
	"github.com/danz-app/danz/internal/services/social"
	"go.uber.org/zap"
)

// Config holds dashboard command configuration.
type Config struct {
	Endpoint      string        `env:"DANZ_DASHBOARD_ENDPOINT" envDefault:"http://localhost:4000/graphql"`
	Token         string        `env:"DANZ_DASHBOARD_TOKEN"`
	LoginPath     string        `env:"DANZ_DASHBOARD_LOGIN_PATH" envDefault:"/login"`
	ListInterval  time.Duration `env:"DANZ_DASHBOARD_LIST_POLL" envDefault:"30s"`
	CountInterval time.Duration `env:"DANZ_DASHBOARD_COUNT_POLL" envDefault:"10s"`
	CacheDBPath   string        `env:"DANZ_DASHBOARD_CACHE_DB_PATH"`
	CacheTTL      time.Duration `env:"DANZ_DASHBOARD_CACHE_TTL" envDefault:"24h"`
	MetricsAddr   string        `env:"DANZ_DASHBOARD_METRICS_ADDR"`
	RateLimit     float64       `env:"DANZ_DASHBOARD_RATE_LIMIT" envDefault:"10"`
	RateBurst     int           `env:"DANZ_DASHBOARD_RATE_BURST" envDefault:"5"`
	LogLevel      string        `env:"DANZ_DASHBOARD_LOG_LEVEL" envDefault:"info"`

	BillingURL  string `env:"DANZ_DASHBOARD_BILLING_URL"`
	ReferralURL string `env:"DANZ_DASHBOARD_REFERRAL_URL"`
	ReferralKey string `env:"DANZ_DASHBOARD_REFERRAL_KEY"`
	SocialURL   string `env:"DANZ_DASHBOARD_SOCIAL_URL" envDefault:"https://api.neynar.com"`
	SocialKey   string `env:"DANZ_DASHBOARD_SOCIAL_KEY"`

	// One-shot commands; at most one may be set.
	Checkout  string
	Portal    bool
	Referrals bool
	Friends   int64
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	err := entrypoint.Load(&cfg, fs, args, func(fs *flag.FlagSet, cfg *Config) {
		fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "GraphQL endpoint URL")
		fs.StringVar(&cfg.CacheDBPath, "cache-db", cfg.CacheDBPath, "SQLite path for the persisted cache (empty disables)")
		fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Address serving /metrics (empty disables)")
		fs.DurationVar(&cfg.ListInterval, "list-poll", cfg.ListInterval, "Notification list refresh period")
		fs.DurationVar(&cfg.CountInterval, "count-poll", cfg.CountInterval, "Unread count refresh period")
		fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
		fs.StringVar(&cfg.Checkout, "checkout", "", "Create a checkout session for this price id and exit")
		fs.BoolVar(&cfg.Portal, "portal", false, "Create a billing portal session and exit")
		fs.BoolVar(&cfg.Referrals, "referrals", false, "Print the leaderboard and exit")
		fs.Int64Var(&cfg.Friends, "friends", 0, "Print mutual follows of this Farcaster fid and exit")
	})
	if err != nil {
		return Config{}, err
	}
	modes := 0
	for _, set := range []bool{cfg.Checkout != "", cfg.Portal, cfg.Referrals, cfg.Friends != 0} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return Config{}, errors.New("choose at most one of -checkout, -portal, -referrals, -friends")
	}
	return cfg, nil
}

// Run starts the dashboard runtime, or runs the selected one-shot command.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServiceDashboard, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return entrypoint.Run(ctx, entrypoint.ServiceDashboard, logger, func(ctx context.Context) error {
		switch {
		case cfg.Checkout != "" || cfg.Portal:
			return runBilling(ctx, cfg, logger, os.Stdout)
		case cfg.Referrals:
			return runReferrals(ctx, cfg, logger, os.Stdout)
		case cfg.Friends != 0:
			return runFriends(ctx, cfg, logger, os.Stdout)
		}
		srv, err := server.New(ctx, server.Config{
			Endpoint:      cfg.Endpoint,
			Token:         cfg.Token,
			LoginPath:     cfg.LoginPath,
			ListInterval:  cfg.ListInterval,
			CountInterval: cfg.CountInterval,
			CacheDBPath:   cfg.CacheDBPath,
			CacheTTL:      cfg.CacheTTL,
			MetricsAddr:   cfg.MetricsAddr,
			RateLimit:     cfg.RateLimit,
			RateBurst:     cfg.RateBurst,
			UserAgent:     "danz-dashboard",
		}, logger)
		if err != nil {
			return err
		}
		return srv.Serve(ctx)
	})
}

func runBilling(ctx context.Context, cfg Config, logger *zap.Logger, out io.Writer) error {
	rc, err := rest.New(cfg.BillingURL, rest.Options{Token: rest.StaticToken(cfg.Token)})
	if err != nil {
		return fmt.Errorf("billing: %w", err)
	}
	client := billing.New(rc, billing.Options{Logger: logger})
	var session billing.Session
	if cfg.Portal {
		session, err = client.CreatePortalSession(ctx, billing.PortalRequest{})
	} else {
		session, err = client.CreateCheckoutSession(ctx, billing.CheckoutRequest{PriceID: cfg.Checkout})
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, session.URL)
	return err
}

func runReferrals(ctx context.Context, cfg Config, logger *zap.Logger, out io.Writer) error {
	rc, err := rest.New(cfg.ReferralURL, rest.Options{
		Token:  rest.StaticToken(cfg.ReferralKey),
		Header: map[string]string{"apikey": cfg.ReferralKey},
	})
	if err != nil {
		return fmt.Errorf("referral store: %w", err)
	}
	rows, err := referral.New(rc, referral.Options{Logger: logger}).Leaderboard(ctx, 10)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if _, err := fmt.Fprintf(out, "%2d. %-24s %6d pts %4d referrals\n", i+1, row.Username, row.TotalPoints, row.ReferralCount); err != nil {
			return err
		}
	}
	return nil
}

func runFriends(ctx context.Context, cfg Config, logger *zap.Logger, out io.Writer) error {
	rc, err := rest.New(cfg.SocialURL, rest.Options{Header: map[string]string{"x-api-key": strings.TrimSpace(cfg.SocialKey)}})
	if err != nil {
		return fmt.Errorf("social graph: %w", err)
	}
	friends, err := social.New(rc, social.Options{Logger: logger}).Friends(ctx, cfg.Friends)
	if err != nil {
		return err
	}
	for _, f := range friends {
		if _, err := fmt.Fprintf(out, "@%s (%s) %d followers\n", f.Username, f.DisplayName, f.Followers); err != nil {
			return err
		}
	}
	return nil
}
