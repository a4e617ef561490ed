package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

// FailureMode decides what happens when the limiter backend cannot answer.
type FailureMode string

const (
	// FailOpen admits the request and logs a warning.
	FailOpen FailureMode = "open"
	// FailClosed rejects the request with ErrLimiterUnavailable.
	FailClosed FailureMode = "closed"
)

// ParseFailureMode accepts "open" or "closed"; empty means open.
func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(s) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("unknown rate limit failure mode %q", s)
}

// RateLimitedError carries the limiter's retry hint alongside ErrRateLimited.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return domain.ErrRateLimited.Error() }

func (e *RateLimitedError) Unwrap() error { return domain.ErrRateLimited }

// RetryAfter extracts the retry hint from a rate limit rejection.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// RateLimit applies the record's sliding window per (key, caller address).
type RateLimit struct {
	limiter ports.RateLimiter
	mode    FailureMode
	logger  *slog.Logger
}

func NewRateLimit(limiter ports.RateLimiter, mode FailureMode, logger *slog.Logger) *RateLimit {
	if mode == "" {
		mode = FailOpen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimit{limiter: limiter, mode: mode, logger: logger}
}

func (*RateLimit) Name() string { return "rate_limit" }

func (p *RateLimit) Evaluate(ctx context.Context, ev Evaluation) (string, error) {
	limit := ev.Record.RateLimit
	if limit == nil {
		return ev.Target, nil
	}
	if p.limiter == nil {
		return p.unavailable(ev, errors.New("no rate limiter configured"))
	}

	adm, err := p.limiter.Admit(ctx, ev.Record.Key, ev.Request.CallerAddress, *limit, ev.Now)
	if err != nil {
		return p.unavailable(ev, err)
	}
	if !adm.Admitted {
		return "", &RateLimitedError{RetryAfter: adm.RetryAfter}
	}
	return ev.Target, nil
}

func (p *RateLimit) unavailable(ev Evaluation, err error) (string, error) {
	if p.mode == FailClosed {
		p.logger.Error("rate limit check failed (fail-closed)",
			"component", "rate_limiter", "key", ev.Record.Key, "error", err)
		if errors.Is(err, domain.ErrLimiterUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrLimiterUnavailable, err)
	}
	p.logger.Warn("rate limit check failed (fail-open)",
		"component", "rate_limiter", "key", ev.Record.Key, "error", err)
	return ev.Target, nil
}
