package domain

import "errors"

// Policy rejections. These are terminal for the request and surface to the caller.
var (
	ErrNotFound     = errors.New("QR code not found")
	ErrExpired      = errors.New("QR code has expired")
	ErrCapReached   = errors.New("Click cap reached")
	ErrRateLimited  = errors.New("Rate limit exceeded")
	ErrRegionDenied = errors.New("Region not allowed")
	ErrUnauthorized = errors.New("Password required or incorrect")
)

// Infrastructure faults. Never conflated with policy rejections.
var (
	ErrStoreUnavailable   = errors.New("routing store unavailable")
	ErrLimiterUnavailable = errors.New("rate limiter unavailable")
)

// Creation errors
var (
	ErrAlreadyExists = errors.New("Custom key already in use")
	ErrInvalidKey    = errors.New("Custom key must be 3-64 characters: letters, numbers, dash or underscore.")
	ErrInvalidURL    = errors.New("url must be an absolute http or https URL")
	ErrInvalidPolicy = errors.New("passwordProtected requires a password")
)

var rejections = []error{
	ErrNotFound, ErrExpired, ErrCapReached, ErrRateLimited, ErrRegionDenied, ErrUnauthorized,
}

// IsRejection reports whether err is a policy outcome rather than a fault.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// IsInfrastructure reports whether err comes from an unavailable backend.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrLimiterUnavailable)
}
