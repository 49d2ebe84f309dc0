package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/chatbot-insights/internal/llm"
)

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	HealthCheck(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, map[string]any{"status": "ok"}, resp["data"])
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", defaultPageLimit, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=0&offset=-1", defaultPageLimit, 0},
		{"?limit=abc", defaultPageLimit, 0},
		{"?limit=5000", maxPageLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			limit, offset := pagination(req)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

type countingFlusher struct{ n int64 }

func (f countingFlusher) FlushAll(context.Context) (int64, error) { return f.n, nil }

func TestFlushCache(t *testing.T) {
	rec := httptest.NewRecorder()
	FlushCache(countingFlusher{n: 3})(rec, httptest.NewRequest(http.MethodPost, "/cache/flush", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"keys_deleted":3`)
}

func TestListLLMProviders(t *testing.T) {
	rec := httptest.NewRecorder()
	ListLLMProviders(llm.NewRouter("ollama"))(rec, httptest.NewRequest(http.MethodGet, "/llm-providers", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"default_provider":"ollama"`)
}
