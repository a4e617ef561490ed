package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/policy"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

// RedirectService runs lookup, policy evaluation, hit commit and notification
// for one request. There is no retry: every call is a single pass.
type RedirectService struct {
	repo     ports.RecordRepository
	pipeline *policy.Pipeline
	notifier ports.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// RedirectOption configures a RedirectService.
type RedirectOption func(*RedirectService)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RedirectOption {
	return func(s *RedirectService) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) RedirectOption {
	return func(s *RedirectService) { s.logger = l }
}

// WithNotifier sets where resolution events go. Without one, webhooks are skipped.
func WithNotifier(n ports.Notifier) RedirectOption {
	return func(s *RedirectService) { s.notifier = n }
}

func NewRedirectService(repo ports.RecordRepository, pipeline *policy.Pipeline, opts ...RedirectOption) *RedirectService {
	s := &RedirectService{
		repo:     repo,
		pipeline: pipeline,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the redirect target for key, or the rejection that stopped it.
// Hits are incremented if and only if every policy passed.
func (s *RedirectService) Resolve(ctx context.Context, key string, req domain.RequestContext) (*domain.Resolution, error) {
	if !ValidKey(key) {
		return nil, domain.ErrNotFound
	}

	record, err := s.repo.Lookup(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("lookup failed", "component", "routing_store", "key", key, "error", err)
		}
		return nil, err
	}

	now := s.now()
	target, err := s.pipeline.Evaluate(ctx, record, req, now)
	if err != nil {
		if domain.IsInfrastructure(err) {
			s.logger.Error("policy evaluation failed", "component", "policy_pipeline", "key", key, "error", err)
		}
		return nil, err
	}

	// The commit and notification must finish even if the caller hangs up.
	detached := context.WithoutCancel(ctx)

	hits, err := s.commit(detached, record)
	if err != nil {
		if !domain.IsRejection(err) {
			s.logger.Error("hit commit failed", "component", "routing_store", "key", key, "error", err)
		}
		return nil, err
	}

	if s.notifier != nil && record.WebhookURL != "" {
		s.notifier.Dispatch(detached, record.WebhookURL, domain.ResolutionEvent{
			Key:           key,
			Timestamp:     now.UTC(),
			CallerAddress: req.CallerAddress,
			UserAgent:     req.UserAgent,
		})
	}

	return &domain.Resolution{Key: key, Target: target, Hits: hits}, nil
}

// commit uses compare-and-increment when the record is capped, so concurrent
// requests racing past the stale ClickCap read cannot overshoot the cap.
func (s *RedirectService) commit(ctx context.Context, record *domain.RoutingRecord) (int64, error) {
	if record.ClickCap != nil {
		return s.repo.IncrementHitsBelow(ctx, record.Key, *record.ClickCap)
	}
	return s.repo.IncrementHits(ctx, record.Key)
}

var _ ports.RedirectService = (*RedirectService)(nil)
