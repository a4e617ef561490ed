package policy

import (
	"context"
	"regexp"
	"time"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
)

// GeoFence keeps, substitutes or denies the target based on the caller's region.
type GeoFence struct{}

func (GeoFence) Name() string { return "geo_fence" }

func (GeoFence) Evaluate(_ context.Context, ev Evaluation) (string, error) {
	gf := ev.Record.GeoFence
	if gf == nil {
		return ev.Target, nil
	}

	var target string
	region := ev.Request.Region
	if gf.AllowedRegions.IsMap() {
		if u, ok := gf.AllowedRegions.Route(region); ok {
			target = u
		} else {
			target = gf.FallbackURL
		}
	} else if gf.AllowedRegions.Contains(region) {
		target = ev.Target
	} else {
		target = gf.FallbackURL
	}

	if target == "" {
		return "", domain.ErrRegionDenied
	}
	return target, nil
}

var mobileUserAgent = regexp.MustCompile(`(?i)Mobi|Android`)

// IsMobile reports whether the user agent looks like a mobile device.
func IsMobile(userAgent string) bool {
	return mobileUserAgent.MatchString(userAgent)
}

// DeviceRouting picks the mobile or desktop URL when one is configured.
type DeviceRouting struct{}

func (DeviceRouting) Name() string { return "device_routing" }

func (DeviceRouting) Evaluate(_ context.Context, ev Evaluation) (string, error) {
	dr := ev.Record.DeviceRouting
	if dr == nil {
		return ev.Target, nil
	}
	next := dr.DesktopURL
	if IsMobile(ev.Request.UserAgent) {
		next = dr.MobileURL
	}
	if next == "" {
		return ev.Target, nil
	}
	return next, nil
}

// TimeRouting classifies the current time as weekend, business hours
// (09:00-17:00) or after hours, in that precedence.
type TimeRouting struct {
	loc *time.Location
}

// NewTimeRouting evaluates wall-clock time in loc. A nil loc means time.Local.
func NewTimeRouting(loc *time.Location) TimeRouting {
	if loc == nil {
		loc = time.Local
	}
	return TimeRouting{loc: loc}
}

func (TimeRouting) Name() string { return "time_routing" }

func (t TimeRouting) Evaluate(_ context.Context, ev Evaluation) (string, error) {
	tr := ev.Record.TimeRouting
	if tr == nil {
		return ev.Target, nil
	}
	loc := t.loc
	if loc == nil {
		loc = time.Local
	}
	now := ev.Now.In(loc)
	day, hour := now.Weekday(), now.Hour()

	switch {
	case (day == time.Saturday || day == time.Sunday) && tr.WeekendsURL != "":
		return tr.WeekendsURL, nil
	case hour >= 9 && hour < 17 && tr.BusinessHoursURL != "":
		return tr.BusinessHoursURL, nil
	case tr.AfterHoursURL != "":
		return tr.AfterHoursURL, nil
	}
	return ev.Target, nil
}
