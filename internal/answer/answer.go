// Package answer produces the assistant reply for a visitor query.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/chatbot-insights/internal/chatbot"
	"github.com/Rrens/chatbot-insights/internal/config"
	"github.com/Rrens/chatbot-insights/internal/llm"
)

// Generator answers a query for one chatbot.
type Generator interface {
	Answer(ctx context.Context, query string, profile *chatbot.Profile) (string, error)
}

// Passage is one retrieved knowledge chunk.
type Passage struct {
	Text   string
	Source string
	Score  float64
}

// Retriever finds knowledge relevant to a query in a chatbot's corpus.
type Retriever interface {
	Retrieve(ctx context.Context, chatbotID, query string, limit int) ([]Passage, error)
}

// NopRetriever returns no passages; answers rely on the role prompt alone.
type NopRetriever struct{}

func (NopRetriever) Retrieve(context.Context, string, string, int) ([]Passage, error) {
	return nil, nil
}

// Options tunes answer generation.
type Options struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Passages    int
}

// OptionsFromConfig maps the answer config section.
func OptionsFromConfig(cfg config.AnswerConfig) Options {
	return Options{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}
}

// RAGGenerator grounds the reply in retrieved passages and the chatbot's role prompt.
type RAGGenerator struct {
	router    *llm.Router
	retriever Retriever
	opts      Options
}

// NewRAGGenerator creates a generator. A nil retriever disables retrieval.
func NewRAGGenerator(router *llm.Router, retriever Retriever, opts Options) *RAGGenerator {
	if retriever == nil {
		retriever = NopRetriever{}
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Passages <= 0 {
		opts.Passages = 5
	}
	return &RAGGenerator{router: router, retriever: retriever, opts: opts}
}

func (g *RAGGenerator) Answer(ctx context.Context, query string, profile *chatbot.Profile) (string, error) {
	provider, err := g.router.GetProvider(g.opts.Provider)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	passages, err := g.retriever.Retrieve(ctx, profile.ID, query, g.opts.Passages)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}

	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		Model:       g.opts.Model,
		System:      buildSystemPrompt(profile, passages),
		Messages:    []llm.Message{{Role: "user", Content: query}},
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func buildSystemPrompt(profile *chatbot.Profile, passages []Passage) string {
	prompt := profile.RolePrompt()
	if len(passages) == 0 {
		return prompt
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return prompt + "\n\nHere is the relevant context to use in your response:\n\n" + strings.Join(texts, "\n\n")
}
