package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/chatbot-insights/internal/api/handler"
	customMiddleware "github.com/Rrens/chatbot-insights/internal/api/middleware"
	"github.com/Rrens/chatbot-insights/internal/config"
	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/llm"
	"github.com/Rrens/chatbot-insights/internal/security"
)

// Deps are the collaborators the HTTP surface is built from. Limiter, JWT
// and ProfileCache are optional.
type Deps struct {
	Store    handler.Pinger
	Sessions domain.SessionRepository
	Messages domain.MessageRepository
	Insights domain.InsightRepository

	Chat    handler.TurnHandler
	Sweeper handler.SweepRunner
	LLM     *llm.Router

	JWT          *security.JWTManager
	Limiter      customMiddleware.Limiter
	ProfileCache handler.CacheFlusher
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customMiddleware.VisitorHeader},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	chatHandler := handler.NewChatHandler(deps.Chat)
	sessionHandler := handler.NewSessionHandler(deps.Sessions, deps.Messages, deps.Insights)
	sweepHandler := handler.NewSweepHandler(deps.Sweeper)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Store))

		// Public widget endpoint
		var widget []func(http.Handler) http.Handler
		if deps.Limiter != nil {
			widget = append(widget, customMiddleware.NewRateLimitMiddleware(deps.Limiter).Limit)
		}
		r.With(widget...).Post("/chatbots/{chatbotID}/query", chatHandler.Query)

		if deps.JWT == nil {
			log.Warn().Msg("JWT secret not configured, owner endpoints disabled")
			return
		}
		authMiddleware := customMiddleware.NewAuthMiddleware(deps.JWT)

		// Owner routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/chatbots/{chatbotID}/sessions", sessionHandler.List)
			r.Get("/sessions/{sessionID}/messages", sessionHandler.Messages)
			r.Get("/sessions/{sessionID}/insight", sessionHandler.Insight)
			r.Get("/insights", sessionHandler.ListInsights)
			r.Post("/sweeps", sweepHandler.Trigger)

			if deps.LLM != nil {
				r.Get("/llm-providers", handler.ListLLMProviders(deps.LLM))
			}
			if deps.ProfileCache != nil {
				r.Post("/cache/flush", handler.FlushCache(deps.ProfileCache))
			}
		})
	})

	return r
}
