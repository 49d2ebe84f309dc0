// Package insight turns a finished conversation into a structured Insight by
// asking a language model for an analysis and falling back to a canned
// default whenever the model cannot be reached or understood.
package insight

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/chatbot-insights/internal/config"
	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/llm"
)

const (
	DefaultModel       = "llama3-70b-8192"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 500
	DefaultTimeout     = 30 * time.Second
)

// Options tunes the analysis call.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OptionsFromConfig maps the insight config section, filling in defaults.
func OptionsFromConfig(cfg config.InsightConfig) Options {
	return Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Extractor analyzes transcripts with an llm.Provider.
type Extractor struct {
	provider llm.Provider
	opts     Options
}

// NewExtractor creates an extractor. A zero Temperature is kept as is. A nil
// provider yields the default analysis for every transcript.
func NewExtractor(provider llm.Provider, opts Options) *Extractor {
	return &Extractor{provider: provider, opts: opts.withDefaults()}
}

// Extract returns nil only when messages is empty. Every upstream failure
// degrades to the default analysis, so the result is always usable.
func (e *Extractor) Extract(ctx context.Context, session domain.Session, messages []domain.Message) *domain.Insight {
	if len(messages) == 0 {
		return nil
	}

	name, email := extractIdentity(messages)
	insight := &domain.Insight{
		SessionID: session.ID,
		ChatbotID: session.ChatbotID,
		Name:      name,
		Email:     email,
	}

	a := e.analyze(ctx, session, messages)
	insight.ProblemSummary = a.ProblemSummary
	insight.BotSolved = a.BotSolved
	insight.HumanNeeded = a.HumanNeeded
	insight.Emotion = a.Emotion
	insight.Reconcile()

	log.Debug().
		Str("session_id", session.ID.String()).
		Str("bot_solved", insight.BotSolved.String()).
		Str("human_needed", insight.HumanNeeded.String()).
		Str("emotion", string(insight.Emotion)).
		Msg("Conversation analyzed")

	return insight
}

func (e *Extractor) analyze(ctx context.Context, session domain.Session, messages []domain.Message) analysis {
	if e.provider == nil {
		log.Warn().
			Str("session_id", session.ID.String()).
			Msg("No analysis provider configured, using default insight")
		return defaultAnalysis()
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Model:       e.opts.Model,
		System:      systemPrompt,
		Messages:    buildConversation(messages),
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	})
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", session.ID.String()).
			Str("provider", e.provider.Name()).
			Msg("Conversation analysis failed, using default insight")
		return defaultAnalysis()
	}

	a, ok := parseAnalysis(resp.Content)
	if !ok {
		log.Warn().
			Str("session_id", session.ID.String()).
			Msg("No JSON found in analysis response, using default insight")
		return defaultAnalysis()
	}
	return a
}
