package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/chatbot-insights/internal/answer"
	"github.com/Rrens/chatbot-insights/internal/api"
	"github.com/Rrens/chatbot-insights/internal/chatbot"
	"github.com/Rrens/chatbot-insights/internal/config"
	"github.com/Rrens/chatbot-insights/internal/insight"
	"github.com/Rrens/chatbot-insights/internal/llm"
	"github.com/Rrens/chatbot-insights/internal/llm/anthropic"
	"github.com/Rrens/chatbot-insights/internal/llm/gemini"
	"github.com/Rrens/chatbot-insights/internal/llm/ollama"
	"github.com/Rrens/chatbot-insights/internal/llm/openai"
	"github.com/Rrens/chatbot-insights/internal/logger"
	"github.com/Rrens/chatbot-insights/internal/notify"
	"github.com/Rrens/chatbot-insights/internal/repository/redis"
	"github.com/Rrens/chatbot-insights/internal/security"
	"github.com/Rrens/chatbot-insights/internal/service"
	"github.com/Rrens/chatbot-insights/internal/sweeper"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := logger.Setup(cfg.Env, cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting chatbot insights server")

	ctx := context.Background()

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	// Chatbot profiles: redis when enabled, in-process otherwise
	var (
		profileCache interface {
			chatbot.ProfileCache
			FlushAll(ctx context.Context) (int64, error)
		}
		rateLimiter *redis.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		profileCache = redis.NewProfileCache(redisClient, cfg.Chatbots.CacheTTL)
		rateLimiter = redis.NewRateLimiter(
			redisClient,
			cfg.Security.RateLimit.RequestsPerMinute,
			cfg.Security.RateLimit.Burst,
		)
	} else {
		profileCache = chatbot.NewMemoryCache(cfg.Chatbots.CacheTTL)
	}
	directory := chatbot.NewCachedDirectory(chatbot.NewFileDirectory(cfg.Chatbots.DataDir), profileCache)

	// Push notifications
	var notifier notify.Notifier = notify.Nop{}
	if cfg.NATS.URL != "" {
		natsNotifier, err := notify.NewNATSNotifier(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, push notifications disabled")
		} else {
			notifier = natsNotifier
		}
	}
	defer notifier.Close()

	llmRouter := newLLMRouter(cfg.LLM)

	generator := answer.NewRAGGenerator(llmRouter, answer.NopRetriever{}, answer.OptionsFromConfig(cfg.Answer))
	chatService := service.NewChatService(st.sessions, st.messages, directory, generator, notifier)

	var sweep *sweeper.Sweeper
	if cfg.Sweeper.Enabled {
		provider, err := llmRouter.GetProvider(cfg.Insight.Provider)
		if err != nil {
			log.Warn().Err(err).Str("provider", cfg.Insight.Provider).
				Msg("Insight provider not available, closed sessions get the default insight")
			provider = nil
		}
		extractor := insight.NewExtractor(provider, insight.OptionsFromConfig(cfg.Insight))

		sweep = sweeper.New(st.sessions, st.messages, st.insights, extractor, sweeper.Options{
			Interval:    cfg.Sweeper.Interval,
			IdleTimeout: cfg.Sweeper.IdleTimeout,
			Notifier:    notifier,
		})
		sweep.Start(ctx)
	} else {
		log.Warn().Msg("Sweeper disabled, idle sessions will not be analyzed")
	}

	deps := api.Deps{
		Store:        st.pinger,
		Sessions:     st.sessions,
		Messages:     st.messages,
		Insights:     st.insights,
		Chat:         chatService,
		LLM:          llmRouter,
		ProfileCache: profileCache,
	}
	if sweep != nil {
		deps.Sweeper = sweep
	} else {
		deps.Sweeper = disabledSweeper{}
	}
	if cfg.Auth.JWTSecret != "" {
		deps.JWT = security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	}
	if rateLimiter != nil {
		deps.Limiter = rateLimiter
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// In-flight turns are drained; let the current sweep finish before the store goes away.
	if sweep != nil {
		sweep.Stop()
	}

	log.Info().Msg("Server stopped")
}

func newLLMRouter(cfg config.LLMConfig) *llm.Router {
	router := llm.NewRouter(cfg.DefaultProvider)

	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.DefaultProvider)

	if cfg.OpenAI.APIKey != "" {
		log.Info().Str("base_url", cfg.OpenAI.BaseURL).Msg("Registering OpenAI-compatible provider")
		router.RegisterProvider(openai.NewProvider(cfg.OpenAI))
	}
	if cfg.Ollama.Host != "" {
		log.Info().Str("host", cfg.Ollama.Host).Msg("Registering Ollama provider")
		router.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))
	}
	if cfg.Anthropic.APIKey != "" {
		router.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model))
	}
	if cfg.Gemini.APIKey != "" {
		router.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	}

	if len(router.ListProviders()) == 0 {
		log.Warn().Msg("No LLM provider configured, visitors will receive apologies")
	}
	return router
}

type disabledSweeper struct{}

func (disabledSweeper) RunOnce(context.Context) (sweeper.Report, error) {
	return sweeper.Report{}, errors.New("sweeper is disabled")
}
