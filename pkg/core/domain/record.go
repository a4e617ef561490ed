package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// RoutingRecord represents a short key and the policies applied before redirecting
type RoutingRecord struct {
	Key               string         `json:"id"`
	TargetURL         string         `json:"url"`
	Hits              int64          `json:"hits"`
	Created           time.Time      `json:"created"`
	Expiry            *time.Time     `json:"expiry,omitempty"`
	ClickCap          *int64         `json:"clickCap,omitempty"`
	RateLimit         *RateLimit     `json:"rateLimit,omitempty"`
	PasswordProtected bool           `json:"passwordProtected"`
	Password          string         `json:"password,omitempty"`
	GeoFence          *GeoFence      `json:"geoFence,omitempty"`
	DeviceRouting     *DeviceRouting `json:"deviceRouting,omitempty"`
	TimeRouting       *TimeRouting   `json:"timeRouting,omitempty"`
	WebhookURL        string         `json:"webhookUrl,omitempty"`
}

// Public returns a copy safe to hand to API callers (the password is dropped).
func (r RoutingRecord) Public() RoutingRecord {
	r.Password = ""
	return r
}

// RateLimit is the per (key, caller) sliding window: Count requests per Window.
type RateLimit struct {
	Count  int64
	Window time.Duration
}

type rateLimitJSON struct {
	Count           int64  `json:"count"`
	PerMilliseconds *int64 `json:"perMilliseconds,omitempty"`
	WindowMillis    *int64 `json:"windowMillis,omitempty"`
}

// WindowMillis returns the window length in milliseconds.
func (l RateLimit) WindowMillis() int64 {
	return l.Window.Milliseconds()
}

func (l RateLimit) MarshalJSON() ([]byte, error) {
	ms := l.WindowMillis()
	return json.Marshal(rateLimitJSON{Count: l.Count, PerMilliseconds: &ms})
}

// UnmarshalJSON accepts both "perMilliseconds" and "windowMillis".
func (l *RateLimit) UnmarshalJSON(data []byte) error {
	var raw rateLimitJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var ms int64
	switch {
	case raw.PerMilliseconds != nil:
		ms = *raw.PerMilliseconds
	case raw.WindowMillis != nil:
		ms = *raw.WindowMillis
	}
	if raw.Count < 0 || ms <= 0 {
		return errors.New("rateLimit requires count >= 0 and a positive window")
	}
	l.Count = raw.Count
	l.Window = time.Duration(ms) * time.Millisecond
	return nil
}

// GeoFence restricts or reroutes by the caller's declared region.
type GeoFence struct {
	AllowedRegions RegionSet `json:"allowedRegions"`
	FallbackURL    string    `json:"fallbackUrl,omitempty"`
}

// RegionSet is either a plain list of regions or a region -> URL map.
// Exactly one of List or Routes is populated.
type RegionSet struct {
	List   []string
	Routes map[string]string
}

// IsMap reports whether the set was given in region -> URL form.
func (s RegionSet) IsMap() bool {
	return s.Routes != nil
}

// Contains matches case-insensitively against the list form rather than by
// exact string equality, so "us" and "US" name the same region.
func (s RegionSet) Contains(region string) bool {
	if region == "" {
		return false
	}
	for _, r := range s.List {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

// Route returns the mapped URL for region. An exact key wins; otherwise keys
// match case-insensitively, as in Contains.
func (s RegionSet) Route(region string) (string, bool) {
	if region == "" {
		return "", false
	}
	if u, ok := s.Routes[region]; ok && u != "" {
		return u, true
	}
	for r, u := range s.Routes {
		if strings.EqualFold(r, region) && u != "" {
			return u, true
		}
	}
	return "", false
}

func (s RegionSet) MarshalJSON() ([]byte, error) {
	if s.IsMap() {
		return json.Marshal(s.Routes)
	}
	if s.List == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.List)
}

func (s *RegionSet) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "["):
		s.Routes = nil
		return json.Unmarshal(data, &s.List)
	case strings.HasPrefix(trimmed, "{"):
		s.List = nil
		s.Routes = map[string]string{}
		return json.Unmarshal(data, &s.Routes)
	case trimmed == "null":
		*s = RegionSet{}
		return nil
	default:
		return errors.New("allowedRegions must be a list or an object")
	}
}

// DeviceRouting sends mobile and desktop callers to different URLs
type DeviceRouting struct {
	MobileURL  string `json:"mobileUrl,omitempty"`
	DesktopURL string `json:"desktopUrl,omitempty"`
}

// TimeRouting picks a URL by day of week and hour of day
type TimeRouting struct {
	WeekendsURL      string `json:"weekendsUrl,omitempty"`
	BusinessHoursURL string `json:"businessHoursUrl,omitempty"`
	AfterHoursURL    string `json:"afterHoursUrl,omitempty"`
}

// Admission is a rate limiter decision for one request
type Admission struct {
	Admitted   bool
	Remaining  int64
	RetryAfter time.Duration
}
