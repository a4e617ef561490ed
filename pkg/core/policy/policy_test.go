package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
)

var noon = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // Wednesday

type stubLimiter struct {
	adm   domain.Admission
	err   error
	calls int
}

func (s *stubLimiter) Admit(context.Context, string, string, domain.RateLimit, time.Time) (domain.Admission, error) {
	s.calls++
	return s.adm, s.err
}

func (s *stubLimiter) Shared() bool { return true }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func ptr[T any](v T) *T { return &v }

func defaultPipeline(l *stubLimiter, mode FailureMode) *Pipeline {
	return Default(l, Options{FailureMode: mode, Location: time.UTC, Logger: quiet()})
}

func TestDefaultOrder(t *testing.T) {
	p := defaultPipeline(&stubLimiter{}, FailOpen)
	assert.Equal(t,
		[]string{"expiry", "click_cap", "rate_limit", "geo_fence", "password", "device_routing", "time_routing"},
		p.Names())
}

func TestNoPolicies(t *testing.T) {
	rec := &domain.RoutingRecord{Key: "statickey", TargetURL: "https://example.com"}
	target, err := defaultPipeline(&stubLimiter{}, FailOpen).Evaluate(context.Background(), rec, domain.RequestContext{}, noon)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
}

func TestExpiry(t *testing.T) {
	p := NewPipeline(Expiry{})
	rec := &domain.RoutingRecord{TargetURL: "https://example.com", Expiry: ptr(noon.Add(-time.Second))}
	_, err := p.Evaluate(context.Background(), rec, domain.RequestContext{}, noon)
	assert.ErrorIs(t, err, domain.ErrExpired)

	rec.Expiry = ptr(noon.Add(time.Second))
	_, err = p.Evaluate(context.Background(), rec, domain.RequestContext{}, noon)
	assert.NoError(t, err)

	// Expiry equal to now is not yet expired.
	rec.Expiry = ptr(noon)
	_, err = p.Evaluate(context.Background(), rec, domain.RequestContext{}, noon)
	assert.NoError(t, err)
}

func TestClickCap(t *testing.T) {
	p := NewPipeline(ClickCap{})
	rec := &domain.RoutingRecord{TargetURL: "https://example.com", ClickCap: ptr(int64(2)), Hits: 1}
	_, err := p.Evaluate(context.Background(), rec, domain.RequestContext{}, noon)
	assert.NoError(t, err)

	rec.Hits = 2
	_, err = p.Evaluate(context.Background(), rec, domain.RequestContext{}, noon)
	assert.ErrorIs(t, err, domain.ErrCapReached)

	rec.ClickCap = ptr(int64(0))
	rec.Hits = 0
	_, err = p.Evaluate(context.Background(), rec, domain.RequestContext{}, noon)
	assert.ErrorIs(t, err, domain.ErrCapReached)
}

func TestPassword(t *testing.T) {
	p := NewPipeline(Password{})
	rec := &domain.RoutingRecord{TargetURL: "https://example.com", PasswordProtected: true, Password: "secret"}

	for _, pw := range []string{"", "wrong", "secret "} {
		_, err := p.Evaluate(context.Background(), rec, domain.RequestContext{Password: pw}, noon)
		assert.ErrorIs(t, err, domain.ErrUnauthorized, "password %q", pw)
	}

	_, err := p.Evaluate(context.Background(), rec, domain.RequestContext{Password: "secret"}, noon)
	assert.NoError(t, err)

	// A protected record without a stored password never admits.
	rec.Password = ""
	_, err = p.Evaluate(context.Background(), rec, domain.RequestContext{Password: ""}, noon)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestGeoFence(t *testing.T) {
	p := NewPipeline(GeoFence{})
	list := &domain.RoutingRecord{
		TargetURL: "https://example.com",
		GeoFence: &domain.GeoFence{
			AllowedRegions: domain.RegionSet{List: []string{"US"}},
			FallbackURL:    "https://fallback.com",
		},
	}
	routes := &domain.RoutingRecord{
		TargetURL: "https://example.com",
		GeoFence: &domain.GeoFence{
			AllowedRegions: domain.RegionSet{Routes: map[string]string{"DE": "https://de.example.com"}},
		},
	}

	tests := []struct {
		name   string
		record *domain.RoutingRecord
		region string
		want   string
		err    error
	}{
		{"list allowed", list, "US", "https://example.com", nil},
		{"list allowed lowercase", list, "us", "https://example.com", nil},
		{"list fallback", list, "FR", "https://fallback.com", nil},
		{"list missing region", list, "", "https://fallback.com", nil},
		{"map route", routes, "DE", "https://de.example.com", nil},
		{"map no route no fallback", routes, "FR", "", domain.ErrRegionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Evaluate(context.Background(), tt.record, domain.RequestContext{Region: tt.region}, noon)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	list.GeoFence.FallbackURL = ""
	_, err := p.Evaluate(context.Background(), list, domain.RequestContext{Region: "FR"}, noon)
	assert.ErrorIs(t, err, domain.ErrRegionDenied)
}

func TestDeviceRouting(t *testing.T) {
	p := NewPipeline(DeviceRouting{})
	rec := &domain.RoutingRecord{
		TargetURL:     "https://example.com",
		DeviceRouting: &domain.DeviceRouting{MobileURL: "https://m.example.com"},
	}

	got, err := p.Evaluate(context.Background(), rec, domain.RequestContext{UserAgent: "Mozilla/5.0 (Linux; Android 14)"}, noon)
	require.NoError(t, err)
	assert.Equal(t, "https://m.example.com", got)

	got, err = p.Evaluate(context.Background(), rec, domain.RequestContext{UserAgent: "Mozilla/5.0 (X11; Linux x86_64)"}, noon)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got, "unset desktop url keeps the target")

	assert.True(t, IsMobile("Mozilla/5.0 (iPhone) Mobile/15E148"))
	assert.False(t, IsMobile(""))
}

func TestTimeRouting(t *testing.T) {
	rec := &domain.RoutingRecord{
		TargetURL: "https://example.com",
		TimeRouting: &domain.TimeRouting{
			WeekendsURL:      "https://weekend.example.com",
			BusinessHoursURL: "https://office.example.com",
			AfterHoursURL:    "https://night.example.com",
		},
	}
	p := NewPipeline(NewTimeRouting(time.UTC))

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"weekday business", time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), "https://office.example.com"},
		{"weekday last business hour", time.Date(2026, 3, 4, 16, 59, 0, 0, time.UTC), "https://office.example.com"},
		{"weekday evening", time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC), "https://night.example.com"},
		{"weekday early", time.Date(2026, 3, 4, 8, 59, 0, 0, time.UTC), "https://night.example.com"},
		{"saturday noon", time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC), "https://weekend.example.com"},
		{"sunday night", time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC), "https://weekend.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Evaluate(context.Background(), rec, domain.RequestContext{}, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	// Weekend without a weekend url falls through to the hour checks.
	rec.TimeRouting.WeekendsURL = ""
	got, err := p.Evaluate(context.Background(), rec, domain.RequestContext{}, time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "https://office.example.com", got)
}

func TestTimeRoutingLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	rec := &domain.RoutingRecord{
		TargetURL:   "https://example.com",
		TimeRouting: &domain.TimeRouting{BusinessHoursURL: "https://office.example.com"},
	}
	// 01:00 UTC is 10:00 in Tokyo.
	now := time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC)

	got, err := NewPipeline(NewTimeRouting(tokyo)).Evaluate(context.Background(), rec, domain.RequestContext{}, now)
	require.NoError(t, err)
	assert.Equal(t, "https://office.example.com", got)

	got, err = NewPipeline(NewTimeRouting(time.UTC)).Evaluate(context.Background(), rec, domain.RequestContext{}, now)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got)
}

func TestRateLimit(t *testing.T) {
	rec := &domain.RoutingRecord{
		Key:       "limited",
		TargetURL: "https://example.com",
		RateLimit: &domain.RateLimit{Count: 2, Window: time.Second},
	}
	req := domain.RequestContext{CallerAddress: "203.0.113.7"}

	t.Run("admitted", func(t *testing.T) {
		l := &stubLimiter{adm: domain.Admission{Admitted: true}}
		_, err := defaultPipeline(l, FailOpen).Evaluate(context.Background(), rec, req, noon)
		assert.NoError(t, err)
		assert.Equal(t, 1, l.calls)
	})

	t.Run("rejected", func(t *testing.T) {
		l := &stubLimiter{adm: domain.Admission{Admitted: false, RetryAfter: 400 * time.Millisecond}}
		_, err := defaultPipeline(l, FailOpen).Evaluate(context.Background(), rec, req, noon)
		assert.ErrorIs(t, err, domain.ErrRateLimited)
		d, ok := RetryAfter(err)
		assert.True(t, ok)
		assert.Equal(t, 400*time.Millisecond, d)
	})

	t.Run("fail open", func(t *testing.T) {
		l := &stubLimiter{err: errors.New("connection refused")}
		target, err := defaultPipeline(l, FailOpen).Evaluate(context.Background(), rec, req, noon)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", target)
	})

	t.Run("fail closed", func(t *testing.T) {
		l := &stubLimiter{err: errors.New("connection refused")}
		_, err := defaultPipeline(l, FailClosed).Evaluate(context.Background(), rec, req, noon)
		assert.ErrorIs(t, err, domain.ErrLimiterUnavailable)
		assert.False(t, domain.IsRejection(err))
	})

	t.Run("no limit skips limiter", func(t *testing.T) {
		l := &stubLimiter{}
		_, err := defaultPipeline(l, FailClosed).Evaluate(context.Background(),
			&domain.RoutingRecord{Key: "k", TargetURL: "https://example.com"}, req, noon)
		assert.NoError(t, err)
		assert.Zero(t, l.calls)
	})
}

func TestShortCircuit(t *testing.T) {
	l := &stubLimiter{adm: domain.Admission{Admitted: true}}
	rec := &domain.RoutingRecord{
		Key:       "both",
		TargetURL: "https://example.com",
		Expiry:    ptr(noon.Add(-time.Hour)),
		RateLimit: &domain.RateLimit{Count: 1, Window: time.Second},
	}
	_, err := defaultPipeline(l, FailOpen).Evaluate(context.Background(), rec, domain.RequestContext{}, noon)
	assert.ErrorIs(t, err, domain.ErrExpired)
	assert.Zero(t, l.calls, "later policies must not run after a rejection")
}

func TestRoutingComposes(t *testing.T) {
	rec := &domain.RoutingRecord{
		TargetURL: "https://example.com",
		GeoFence: &domain.GeoFence{
			AllowedRegions: domain.RegionSet{Routes: map[string]string{"US": "https://us.example.com"}},
		},
		DeviceRouting: &domain.DeviceRouting{MobileURL: "https://m.example.com"},
	}
	before := *rec

	got, err := defaultPipeline(&stubLimiter{}, FailOpen).Evaluate(context.Background(), rec,
		domain.RequestContext{Region: "US", UserAgent: "Android"}, noon)
	require.NoError(t, err)
	assert.Equal(t, "https://m.example.com", got, "device routing overrides the geo target")
	assert.Equal(t, before, *rec, "evaluation must not mutate the record")
}

func TestParseFailureMode(t *testing.T) {
	m, err := ParseFailureMode("")
	require.NoError(t, err)
	assert.Equal(t, FailOpen, m)

	m, err = ParseFailureMode("closed")
	require.NoError(t, err)
	assert.Equal(t, FailClosed, m)

	_, err = ParseFailureMode("sometimes")
	assert.Error(t, err)
}
