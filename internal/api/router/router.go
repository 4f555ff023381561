package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/medspa-pipeline/internal/http/middleware"
	"github.com/wolfman30/medspa-pipeline/internal/leads"
	"github.com/wolfman30/medspa-pipeline/internal/livestats"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// APIPrefix is where the board API is mounted.
const APIPrefix = "/api/v1"

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	LeadsHandler   *leads.Handler
	StatsHub       *livestats.Hub
	AuthSecret     string
	RateLimiter    httpmiddleware.Limiter
	MetricsHandler http.Handler

	// ReadyCheck reports whether backing stores answer (optional)
	ReadyCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", ready(cfg.ReadyCheck))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		// The socket authenticates with its subscribe handshake.
		if cfg.StatsHub != nil {
			public.Get("/ws/stats", cfg.StatsHub.HandleWebSocket)
		}
	})

	// Staff board API
	if cfg.LeadsHandler != nil {
		r.Group(func(staff chi.Router) {
			staff.Use(httpmiddleware.StaffJWT(cfg.AuthSecret))
			if cfg.RateLimiter != nil {
				staff.Use(httpmiddleware.RateLimit(cfg.RateLimiter, cfg.Logger))
			}
			staff.Use(middleware.Compress(5))
			staff.Mount(APIPrefix, cfg.LeadsHandler.Routes())
		})
	}

	return r
}
