package services

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

const (
	minKeyLength    = 3
	maxKeyLength    = 64
	generatedKeyLen = 8
	generateRetries = 6
	maxURLLength    = 2048
)

var keyRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidKey reports whether key can name a routing record.
func ValidKey(key string) bool {
	if len(key) < minKeyLength || len(key) > maxKeyLength {
		return false
	}
	return keyRe.MatchString(key)
}

type LinkService struct {
	repo   ports.RecordRepository
	now    func() time.Time
	newKey func() string
}

func NewLinkService(repo ports.RecordRepository) *LinkService {
	return &LinkService{
		repo:   repo,
		now:    time.Now,
		newKey: generateKey,
	}
}

// Create stores a new record under the custom key, or a generated one.
func (s *LinkService) Create(ctx context.Context, in domain.CreateRequest) (*domain.RoutingRecord, error) {
	if err := validateURLs(in); err != nil {
		return nil, err
	}
	if in.PasswordProtected && in.Password == "" {
		return nil, domain.ErrInvalidPolicy
	}

	record := &domain.RoutingRecord{
		TargetURL:         strings.TrimSpace(in.URL),
		Hits:              0,
		Created:           s.now().UTC(),
		Expiry:            in.Expiry,
		ClickCap:          in.ClickCap,
		RateLimit:         in.RateLimit,
		PasswordProtected: in.PasswordProtected,
		Password:          in.Password,
		GeoFence:          in.GeoFence,
		DeviceRouting:     in.DeviceRouting,
		TimeRouting:       in.TimeRouting,
		WebhookURL:        in.WebhookURL,
	}

	if custom := strings.TrimSpace(in.CustomKey); custom != "" {
		if !ValidKey(custom) {
			return nil, domain.ErrInvalidKey
		}
		record.Key = custom
		if err := s.repo.InsertIfAbsent(ctx, record); err != nil {
			return nil, err
		}
		return record, nil
	}

	// Generated keys: retry on the rare collision.
	for i := 0; i < generateRetries; i++ {
		record.Key = s.newKey()
		err := s.repo.InsertIfAbsent(ctx, record)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
	}
	return nil, domain.ErrAlreadyExists
}

func (s *LinkService) Get(ctx context.Context, key string) (*domain.RoutingRecord, error) {
	if !ValidKey(key) {
		return nil, domain.ErrNotFound
	}
	return s.repo.Lookup(ctx, key)
}

// UpdateTarget is the one administrative mutation of a record's target.
func (s *LinkService) UpdateTarget(ctx context.Context, key, targetURL string) (*domain.RoutingRecord, error) {
	if !ValidKey(key) {
		return nil, domain.ErrNotFound
	}
	targetURL = strings.TrimSpace(targetURL)
	if !validURL(targetURL) {
		return nil, domain.ErrInvalidURL
	}
	if err := s.repo.UpdateTarget(ctx, key, targetURL); err != nil {
		return nil, err
	}
	return s.repo.Lookup(ctx, key)
}

func validateURLs(in domain.CreateRequest) error {
	if !validURL(strings.TrimSpace(in.URL)) {
		return domain.ErrInvalidURL
	}
	optional := []string{in.WebhookURL}
	if gf := in.GeoFence; gf != nil {
		optional = append(optional, gf.FallbackURL)
		for _, u := range gf.AllowedRegions.Routes {
			optional = append(optional, u)
		}
	}
	if dr := in.DeviceRouting; dr != nil {
		optional = append(optional, dr.MobileURL, dr.DesktopURL)
	}
	if tr := in.TimeRouting; tr != nil {
		optional = append(optional, tr.WeekendsURL, tr.BusinessHoursURL, tr.AfterHoursURL)
	}
	for _, u := range optional {
		if u != "" && !validURL(u) {
			return domain.ErrInvalidURL
		}
	}
	return nil
}

func validURL(raw string) bool {
	if raw == "" || len(raw) > maxURLLength {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func generateKey() string {
	return uuid.NewString()[:generatedKeyLen]
}

var _ ports.LinkService = (*LinkService)(nil)
