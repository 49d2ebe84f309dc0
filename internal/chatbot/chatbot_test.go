package chatbot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rrens/chatbot-insights/internal/chatbot"
	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMetadata(t *testing.T, root, id, body string) {
	t.Helper()
	dir := filepath.Join(root, "chatbots", id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(body), 0o644))
}

func TestFileDirectory_Lookup(t *testing.T) {
	root := t.TempDir()
	writeMetadata(t, root, "bot-1", `{"business_name":"Acme","business_type":"retail","chatbot_name":"Ace","chatbot_type":"sales","user_id":7}`)
	writeMetadata(t, root, "broken", `{not json`)

	dir := chatbot.NewFileDirectory(root)
	ctx := context.Background()

	p, err := dir.Lookup(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, "bot-1", p.ID)
	assert.Equal(t, "Acme", p.BusinessName)
	assert.Equal(t, domain.CategorySales, p.Category())
	assert.Contains(t, p.RolePrompt(), "Acme")

	_, err = dir.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrChatbotNotFound)

	_, err = dir.Lookup(ctx, "../etc")
	assert.ErrorIs(t, err, domain.ErrChatbotNotFound)

	_, err = dir.Lookup(ctx, "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrChatbotNotFound)
}

type countingDirectory struct {
	calls int
}

func (c *countingDirectory) Lookup(_ context.Context, id string) (*chatbot.Profile, error) {
	c.calls++
	if id == "missing" {
		return nil, domain.ErrChatbotNotFound
	}
	return &chatbot.Profile{ID: id, BusinessName: "Acme"}, nil
}

func TestCachedDirectory(t *testing.T) {
	next := &countingDirectory{}
	cache := chatbot.NewMemoryCache(time.Minute)
	dir := chatbot.NewCachedDirectory(next, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := dir.Lookup(ctx, "bot-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme", p.BusinessName)
	}
	assert.Equal(t, 1, next.calls)

	require.NoError(t, cache.Invalidate(ctx, "bot-1"))
	_, err := dir.Lookup(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	_, err = dir.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrChatbotNotFound)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	cache := chatbot.NewMemoryCache(0)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &chatbot.Profile{ID: "bot", BusinessName: "Acme"}))
	p, err := cache.Get(ctx, "bot")
	require.NoError(t, err)
	p.BusinessName = "mutated"

	again, err := cache.Get(ctx, "bot")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.BusinessName)

	flushed, err := cache.FlushAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flushed)
	miss, err := cache.Get(ctx, "bot")
	require.NoError(t, err)
	assert.Nil(t, miss)
}
