package ports

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
)

// RecordRepository defines storage operations for routing records
type RecordRepository interface {
	Lookup(ctx context.Context, key string) (*domain.RoutingRecord, error)
	InsertIfAbsent(ctx context.Context, record *domain.RoutingRecord) error
	UpdateTarget(ctx context.Context, key, targetURL string) error
	Dump(ctx context.Context) ([]domain.RoutingRecord, error) // For migration

	// Hits
	IncrementHits(ctx context.Context, key string) (int64, error)
	IncrementHitsBelow(ctx context.Context, key string, ceiling int64) (int64, error)
}

// RateLimiter admits or rejects one request for a (routing key, caller) window
type RateLimiter interface {
	Admit(ctx context.Context, routingKey, caller string, limit domain.RateLimit, now time.Time) (domain.Admission, error)
	// Shared reports whether the window state is visible to every process.
	Shared() bool
}

// Notifier delivers resolution events without blocking the caller
type Notifier interface {
	Dispatch(ctx context.Context, url string, event domain.ResolutionEvent)
}

// RedirectService resolves a key into the URL to redirect to
type RedirectService interface {
	Resolve(ctx context.Context, key string, req domain.RequestContext) (*domain.Resolution, error)
}

// LinkService defines the administrative operations on routing records
type LinkService interface {
	Create(ctx context.Context, in domain.CreateRequest) (*domain.RoutingRecord, error)
	Get(ctx context.Context, key string) (*domain.RoutingRecord, error)
	UpdateTarget(ctx context.Context, key, targetURL string) (*domain.RoutingRecord, error)
}
