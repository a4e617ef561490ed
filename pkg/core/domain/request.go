package domain

import "time"

// RequestContext carries what the resolver knows about the caller.
// Authentication happens elsewhere; the address is taken as given.
type RequestContext struct {
	CallerAddress string
	Region        string
	UserAgent     string
	Password      string
}

// Caller is an authenticated identity with its role set
type Caller struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the caller holds role.
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CreateRequest is the input for creating a short link
type CreateRequest struct {
	URL               string         `json:"url"`
	CustomKey         string         `json:"customKey,omitempty"`
	Expiry            *time.Time     `json:"expiry,omitempty"`
	ClickCap          *int64         `json:"clickCap,omitempty"`
	RateLimit         *RateLimit     `json:"rateLimit,omitempty"`
	PasswordProtected bool           `json:"passwordProtected,omitempty"`
	Password          string         `json:"password,omitempty"`
	GeoFence          *GeoFence      `json:"geoFence,omitempty"`
	DeviceRouting     *DeviceRouting `json:"deviceRouting,omitempty"`
	TimeRouting       *TimeRouting   `json:"timeRouting,omitempty"`
	WebhookURL        string         `json:"webhookUrl,omitempty"`
}
