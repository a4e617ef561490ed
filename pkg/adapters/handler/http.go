package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/policy"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

const (
	passwordHeader = "x-qr-password"
	regionHeader   = "x-region"
	maxBodyBytes   = 1 << 20
)

type HTTPHandler struct {
	redirects ports.RedirectService
	links     ports.LinkService
	logger    *slog.Logger
}

func NewHTTPHandler(redirects ports.RedirectService, links ports.LinkService, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{redirects: redirects, links: links, logger: logger}
}

// UpdateLinkRequest payload
type UpdateLinkRequest struct {
	URL string `json:"url"`
}

// CreateLinkResponse is returned on 201.
type CreateLinkResponse struct {
	Key string `json:"key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Redirect resolves /r/{key} into a 302 or a policy rejection.
func (h *HTTPHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	password := r.URL.Query().Get("pw")
	if password == "" {
		password = r.Header.Get(passwordHeader)
	}

	res, err := h.redirects.Resolve(r.Context(), key, domain.RequestContext{
		CallerAddress: callerAddress(r),
		Region:        r.Header.Get(regionHeader),
		UserAgent:     r.UserAgent(),
		Password:      password,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	http.Redirect(w, r, res.Target, http.StatusFound)
}

// CreateShortLink stores a new routing record.
func (h *HTTPHandler) CreateShortLink(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	record, err := h.links.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if caller, ok := CallerFromContext(r.Context()); ok {
		h.logger.Info("routing record created", "key", record.Key, "subject", caller.Subject)
	}
	writeJSON(w, http.StatusCreated, CreateLinkResponse{Key: record.Key})
}

// GetLink returns record metadata. The password is never serialized.
func (h *HTTPHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	record, err := h.links.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record.Public())
}

// UpdateLink changes the target URL of an existing record.
func (h *HTTPHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	var req UpdateLinkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid body"})
		return
	}

	record, err := h.links.UpdateTarget(r.Context(), chi.URLParam(r, "key"), req.URL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record.Public())
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()

	switch {
	case status == http.StatusTooManyRequests:
		if d, ok := policy.RetryAfter(err); ok && d > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		}
		msg = domain.ErrRateLimited.Error()
	case status >= http.StatusInternalServerError:
		// Infrastructure details stay in the log.
		h.logger.Error("request failed", "error", err)
		msg = http.StatusText(status)
	}

	writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrCapReached), errors.Is(err, domain.ErrRegionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidKey),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrInvalidPolicy):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case domain.IsInfrastructure(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// callerAddress is the host part of RemoteAddr. RealIP, when mounted, has
// already replaced RemoteAddr with the forwarded address.
func callerAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
