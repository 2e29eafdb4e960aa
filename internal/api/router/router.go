package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/heitor/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/heitor/internal/http/middleware"
	"github.com/wolfman30/heitor/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	InboundMessages    *handlers.InboundMessagesHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminReports       *handlers.AdminReportsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	// InboundRateLimiter throttles POST /conversations/message per client; nil disables it.
	InboundRateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.InboundMessages != nil {
		r.Group(func(inbound chi.Router) {
			if cfg.InboundRateLimiter != nil {
				inbound.Use(httpmiddleware.RateLimit(cfg.InboundRateLimiter))
			}
			inbound.Post("/conversations/message", cfg.InboundMessages.PostMessage)
		})
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		if cfg.AdminConversations != nil {
			admin.Get("/conversations", cfg.AdminConversations.ListConversations)
			admin.Get("/conversations/{phone}", cfg.AdminConversations.GetConversation)
			admin.Get("/conversations/{phone}/summary", cfg.AdminConversations.GetSummary)
		}
		if cfg.AdminReports != nil {
			admin.Get("/reports/daily", cfg.AdminReports.GetDaily)
			admin.Get("/reports/weekly", cfg.AdminReports.GetWeekly)
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
