// Package policy evaluates the traffic-shaping rules attached to a routing record.
//
// Each rule is a Policy. A Pipeline runs them in a fixed order, threading the
// in-flight redirect target from one policy to the next and stopping at the
// first rejection. Policies read the record; they never write to it. Routing
// policies (geo, device, time) return a derived target for this request only.
package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

// Evaluation is the input handed to every policy.
type Evaluation struct {
	Record  *domain.RoutingRecord
	Request domain.RequestContext
	Now     time.Time
	// Target is the redirect target resolved so far.
	Target string
}

// Policy is a single rule. A nil error continues with the returned target,
// a non-nil error ends the evaluation.
type Policy interface {
	Name() string
	Evaluate(ctx context.Context, ev Evaluation) (string, error)
}

// Pipeline is an ordered list of policies.
type Pipeline struct {
	policies []Policy
}

// NewPipeline runs policies in the order given.
func NewPipeline(policies ...Policy) *Pipeline {
	return &Pipeline{policies: policies}
}

// Options tune the default pipeline.
type Options struct {
	FailureMode FailureMode
	Location    *time.Location
	Logger      *slog.Logger
}

// Default builds the standard order: expiry, click cap, rate limit, geo-fence,
// password, device routing, time routing.
func Default(limiter ports.RateLimiter, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return NewPipeline(
		Expiry{},
		ClickCap{},
		NewRateLimit(limiter, opts.FailureMode, logger),
		GeoFence{},
		Password{},
		DeviceRouting{},
		NewTimeRouting(opts.Location),
	)
}

// Names lists the policies in evaluation order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.policies))
	for i, pol := range p.policies {
		names[i] = pol.Name()
	}
	return names
}

// Evaluate returns the final target or the first rejection.
func (p *Pipeline) Evaluate(ctx context.Context, record *domain.RoutingRecord, req domain.RequestContext, now time.Time) (string, error) {
	target := record.TargetURL
	for _, pol := range p.policies {
		next, err := pol.Evaluate(ctx, Evaluation{
			Record:  record,
			Request: req,
			Now:     now,
			Target:  target,
		})
		if err != nil {
			return "", err
		}
		target = next
	}
	return target, nil
}
