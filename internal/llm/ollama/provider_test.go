package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/chatbot-insights/internal/llm"
	"github.com/Rrens/chatbot-insights/internal/llm/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
			Options map[string]any `json:"options"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			assert.Equal(t, "llama3", body.Model)
			assert.False(t, body.Stream)
			assert.Len(t, body.Messages, 2)
			assert.EqualValues(t, 1000, body.Options["num_predict"])
		}

		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"<think>plan</think>Sure thing"},"done":true,"prompt_eval_count":5,"eval_count":2}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(srv.URL, "")
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		System:    "sys",
		Messages:  []llm.Message{{Role: "user", Content: "hi"}},
		MaxTokens: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Sure thing", resp.Content)
	assert.Equal(t, 7, resp.TokensUsed)
}
