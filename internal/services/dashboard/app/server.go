// Package server wires the dashboard runtime: identity, link chain, cache
// persistence, notification polls and the metrics endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/danz-app/danz/internal/cache"
	"github.com/danz-app/danz/internal/cache/storage"
	cachesqlite "github.com/danz-app/danz/internal/cache/storage/sqlite"
	"github.com/danz-app/danz/internal/client"
	"github.com/danz-app/danz/internal/identity"
	"github.com/danz-app/danz/internal/link"
	"github.com/danz-app/danz/internal/platform/timeouts"
	"github.com/danz-app/danz/internal/poll"
	"github.com/danz-app/danz/internal/services/dashboard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Config is the runtime configuration.
type Config struct {
	Endpoint      string
	Token         string
	LoginPath     string
	ListInterval  time.Duration
	CountInterval time.Duration
	// CacheDBPath enables cache persistence when set.
	CacheDBPath string
	CacheTTL    time.Duration
	// MetricsAddr serves /metrics when set.
	MetricsAddr string
	RateLimit   float64
	RateBurst   int
	UserAgent   string
}

// Server is one dashboard runtime.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	session  *identity.Session
	redirect *link.ErrorInterceptor
	registry *prometheus.Registry
	cache    *cache.Cache
	service  *dashboard.Service
	store    *cachesqlite.Store
	metrics  net.Listener

	closeOnce sync.Once
}

// New builds the runtime. Nothing is fetched until Serve.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	session := identity.NewSession(identity.Options{Leeway: 30 * time.Second, Logger: logger})
	if strings.TrimSpace(cfg.Token) != "" {
		if err := session.SetToken(cfg.Token); err != nil {
			return nil, fmt.Errorf("install access token: %w", err)
		}
	}
	session.MarkReady()

	transport, err := link.HTTP(cfg.Endpoint, link.HTTPOptions{UserAgent: cfg.UserAgent})
	if err != nil {
		return nil, err
	}
	metrics := link.NewMetrics()
	navigator := link.NavigatorFunc(func(path string) {
		logger.Warn("session rejected, sign in again", zap.String("login_path", path))
		if err := session.Logout(context.Background()); err != nil {
			logger.Warn("sign out failed", zap.Error(err))
		}
	})
	redirect := link.Errors(navigator, cfg.LoginPath, logger)
	exec := link.Chain(transport,
		link.Tracing(otel.GetTracerProvider()),
		metrics,
		redirect,
		link.RateLimit(cfg.RateLimit, cfg.RateBurst),
		link.Auth(session, logger),
	)

	c := cache.New(dashboard.Policies())
	cl := client.New(c, exec, client.Options{Logger: logger})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics,
		collectors.NewGoCollector(),
		cacheCollector(c, cl),
	)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		redirect: redirect,
		registry: registry,
		cache:    c,
		service:  dashboard.New(cl, dashboard.Options{Logger: logger}),
	}
	if path := strings.TrimSpace(cfg.CacheDBPath); path != "" {
		if s.store, err = openCacheStore(ctx, path); err != nil {
			return nil, err
		}
	}
	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		if s.metrics, err = net.Listen("tcp", addr); err != nil {
			s.Close()
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
	}
	return s, nil
}

// Service returns the dashboard service.
func (s *Server) Service() *dashboard.Service { return s.service }

// Session returns the identity session.
func (s *Server) Session() *identity.Session { return s.session }

// MetricsAddr returns the metrics listener address, or "".
func (s *Server) MetricsAddr() string {
	if s.metrics == nil {
		return ""
	}
	return s.metrics.Addr().String()
}

// Serve restores the cache, loads the inbox, keeps it fresh until ctx ends
// and saves the cache on the way out.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()

	scope := s.scope()
	if s.store != nil {
		restored, err := storage.Load(ctx, s.store, s.cache, scope, time.Now())
		if err != nil {
			s.logger.Warn("cache restore failed", zap.String("scope", scope), zap.Error(err))
		} else if restored {
			s.logger.Info("cache restored", zap.String("scope", scope), zap.Int("entities", s.cache.Size()))
		}
	}
	unsubscribe := s.session.Subscribe(s.onSessionChange(s.session.UserID()))
	defer unsubscribe()

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)
	if s.metrics != nil {
		srv := &http.Server{Handler: s.metricsHandler(), ReadHeaderTimeout: 5 * time.Second}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("metrics listening", zap.String("addr", s.metrics.Addr().String()))
			if err := srv.Serve(s.metrics); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("serve metrics: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			wg.Wait()
		}()
	}

	stopBadge := s.service.WatchUnreadCount(ctx, func(n int) {
		s.logger.Info("unread notifications", zap.Int("count", n))
	})
	defer stopBadge()

	if s.session.Authenticated() {
		s.refresh(ctx)
	}
	poller := poll.New(poll.Options{Gate: s.session, Logger: s.logger, FetchTimeout: timeouts.GraphQLRequest})
	polls := s.service.StartNotificationPolls(ctx, poller, dashboard.PollConfig{
		ListInterval:  s.cfg.ListInterval,
		CountInterval: s.cfg.CountInterval,
	})
	defer polls.Release()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	polls.Release()
	s.save(scope)
	return err
}

func (s *Server) refresh(ctx context.Context) {
	if _, err := s.service.Me(ctx, client.NetworkOnly); err != nil {
		s.logger.Warn("profile load failed", zap.Error(err))
	}
	if _, err := s.service.Notifications(ctx, dashboard.PageParams{}, client.NetworkOnly); err != nil {
		s.logger.Warn("inbox load failed", zap.Error(err))
	}
	if _, err := s.service.UnreadCount(ctx, client.NetworkOnly); err != nil {
		s.logger.Warn("unread count load failed", zap.Error(err))
	}
}

// onSessionChange re-arms the login redirect when a session begins and
// drops the signed-out user's persisted cache.
func (s *Server) onSessionChange(userID string) func(identity.State) {
	var mu sync.Mutex
	return func(state identity.State) {
		mu.Lock()
		defer mu.Unlock()
		if state.Authenticated {
			userID = state.UserID
			s.redirect.Rearm()
			return
		}
		if userID == "" || s.store == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.store.DeleteUserSnapshots(ctx, userID); err != nil {
			s.logger.Warn("drop cached data failed", zap.Error(err))
		}
		userID = ""
	}
}

func (s *Server) save(scope string) {
	if s.store == nil || !s.session.Authenticated() {
		return
	}
	collected := s.cache.GC()
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := storage.Save(ctx, s.store, s.cache, scope, s.session.UserID(), s.cfg.CacheTTL, time.Now()); err != nil {
		s.logger.Warn("cache save failed", zap.String("scope", scope), zap.Error(err))
		return
	}
	s.logger.Info("cache saved", zap.String("scope", scope), zap.Int("entities", s.cache.Size()), zap.Int("collected", collected))
}

func (s *Server) scope() string {
	user := s.session.UserID()
	if user == "" {
		user = "anonymous"
	}
	return "dashboard:" + user
}

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Close releases runtime resources.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.metrics != nil {
			_ = s.metrics.Close()
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				s.logger.Warn("close cache store", zap.Error(err))
			}
		}
	})
}

func openCacheStore(ctx context.Context, path string) (*cachesqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := cachesqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open cache sqlite store: %w", err)
	}
	return store, nil
}

// cacheCollector reports cache occupancy.
func cacheCollector(c *cache.Cache, cl *client.Client) prometheus.Collector {
	return &gauges{fns: []prometheus.GaugeFunc{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "danz_cache",
			Name:      "entities",
			Help:      "Normalized entities held in the base store.",
		}, func() float64 { return float64(c.Size()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "danz_cache",
			Name:      "optimistic_layers",
			Help:      "Optimistic layers awaiting the server.",
		}, func() float64 { return float64(c.LayerCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "danz_cache",
			Name:      "pending_mutations",
			Help:      "Mutations awaiting a server response.",
		}, func() float64 { return float64(cl.PendingMutations()) }),
	}}
}

type gauges struct {
	fns []prometheus.GaugeFunc
}

func (g *gauges) Describe(ch chan<- *prometheus.Desc) {
	for _, fn := range g.fns {
		fn.Describe(ch)
	}
}

func (g *gauges) Collect(ch chan<- prometheus.Metric) {
	for _, fn := range g.fns {
		fn.Collect(ch)
	}
}
