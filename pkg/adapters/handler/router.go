package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/config"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, redirects ports.RedirectService, links ports.LinkService, logger *slog.Logger) http.Handler {
	h := NewHTTPHandler(redirects, links, logger)
	mw := NewMiddleware(cfg)

	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	r.Get("/r/{key}", h.Redirect)

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware)

		r.With(RequireRole("user")).Post("/short-link", h.CreateShortLink)
		r.With(RequireRole("user")).Get("/api/v1/links/{key}", h.GetLink)
		r.With(RequireRole("admin")).Put("/api/v1/links/{key}", h.UpdateLink)
	})

	return r
}
