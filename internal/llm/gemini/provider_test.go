package gemini

import (
	"context"
	"testing"

	"github.com/Rrens/chatbot-insights/internal/config"
	"github.com/Rrens/chatbot-insights/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToContents(t *testing.T) {
	history, last := toContents([]llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "help me"},
	})

	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, genai.Text("hello"), history[1].Parts[0])
	assert.Equal(t, "help me", last)

	history, last = toContents(nil)
	assert.Empty(t, history)
	assert.Empty(t, last)
}

func TestProvider_RequiresKey(t *testing.T) {
	p := NewProvider(config.GeminiConfig{})
	assert.False(t, p.IsConfigured())
	assert.Equal(t, "gemini-2.5-flash", p.DefaultModel())

	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	assert.ErrorContains(t, err, "not configured")
}
