package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/app"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/config"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/logging"
)

var mux http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Note: On Vercel, db.sqlite is ephemeral unless using a remote SQL/Turso URL in DATABASE_URL.
	// Rate-limit windows are only shared across invocations with RATE_LIMIT_BACKEND=redis.
	application, err := app.New(cfg, logging.New(cfg))
	if err != nil {
		panic(err)
	}
	mux = application.Handler
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
