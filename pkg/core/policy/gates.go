package policy

import (
	"context"
	"crypto/subtle"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
)

// Expiry rejects records whose expiry is in the past.
type Expiry struct{}

func (Expiry) Name() string { return "expiry" }

func (Expiry) Evaluate(_ context.Context, ev Evaluation) (string, error) {
	if exp := ev.Record.Expiry; exp != nil && exp.Before(ev.Now) {
		return "", domain.ErrExpired
	}
	return ev.Target, nil
}

// ClickCap rejects once hits has reached the cap. The read may be stale under
// concurrency; the resolver enforces the cap exactly when it commits the hit.
type ClickCap struct{}

func (ClickCap) Name() string { return "click_cap" }

func (ClickCap) Evaluate(_ context.Context, ev Evaluation) (string, error) {
	if limit := ev.Record.ClickCap; limit != nil && ev.Record.Hits >= *limit {
		return "", domain.ErrCapReached
	}
	return ev.Target, nil
}

// Password requires the caller to present the stored password.
type Password struct{}

func (Password) Name() string { return "password" }

func (Password) Evaluate(_ context.Context, ev Evaluation) (string, error) {
	if !ev.Record.PasswordProtected {
		return ev.Target, nil
	}
	provided := ev.Request.Password
	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(ev.Record.Password)) != 1 {
		return "", domain.ErrUnauthorized
	}
	return ev.Target, nil
}
