// Package app assembles the routing store, rate limiter, policy pipeline,
// notifier and HTTP router from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/adapters/ratelimit"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/adapters/webhook"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/config"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/policy"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/services"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

type App struct {
	Handler  http.Handler
	Repo     *sqlite.SQLiteRepository
	Limiter  ports.RateLimiter
	Notifier *webhook.Notifier

	closers []func() error
}

// Option adjusts how New wires the application. Used by tests.
type Option func(*options)

type options struct {
	clock      func() time.Time
	httpClient *http.Client
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func WithWebhookClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &App{Repo: repo}
	a.closers = append(a.closers, repo.Close)

	limiter, err := newLimiter(cfg, logger)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.Limiter = limiter
	if c, ok := limiter.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	mode, err := policy.ParseFailureMode(cfg.RateLimitFailureMode)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		_ = a.close()
		return nil, err
	}
	pipeline := policy.Default(limiter, policy.Options{
		FailureMode: mode,
		Location:    loc,
		Logger:      logger,
	})

	notifierOpts := []webhook.Option{
		webhook.WithTimeout(cfg.WebhookTimeout),
		webhook.WithLogger(logger),
	}
	if o.httpClient != nil {
		notifierOpts = append(notifierOpts, webhook.WithHTTPClient(o.httpClient))
	}
	a.Notifier = webhook.NewNotifier(notifierOpts...)

	redirectOpts := []services.RedirectOption{
		services.WithLogger(logger),
		services.WithNotifier(a.Notifier),
	}
	if o.clock != nil {
		redirectOpts = append(redirectOpts, services.WithClock(o.clock))
	}
	redirects := services.NewRedirectService(repo, pipeline, redirectOpts...)
	links := services.NewLinkService(repo)

	a.Handler = handler.NewRouter(cfg, redirects, links, logger)
	return a, nil
}

func newLimiter(cfg *config.Config, logger *slog.Logger) (ports.RateLimiter, error) {
	switch cfg.RateLimitBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		limiter, err := ratelimit.NewRedisLimiter(client,
			ratelimit.WithPrefix(cfg.RateLimitPrefix),
			ratelimit.WithTimeout(cfg.RateLimitTimeout),
		)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return limiter, nil
	default:
		logger.Warn("using in-memory rate limiter; windows are per process and not shared across instances",
			"component", "rate_limiter")
		return ratelimit.NewMemoryLimiter(), nil
	}
}

// Close drains pending webhook deliveries, then releases the limiter and store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Notifier != nil {
		if err := a.Notifier.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
