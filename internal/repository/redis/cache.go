package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/chatbot-insights/internal/chatbot"
	"github.com/redis/go-redis/v9"
)

const (
	profileCachePrefix = "chatbot:profile:"
	profileCacheTTL    = 5 * time.Minute
)

// ProfileCache implements chatbot.ProfileCache in Redis
type ProfileCache struct {
	client *Client
	ttl    time.Duration
}

// NewProfileCache creates a new profile cache. A non-positive ttl uses five minutes.
func NewProfileCache(client *Client, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = profileCacheTTL
	}
	return &ProfileCache{client: client, ttl: ttl}
}

// Get retrieves a cached profile
func (c *ProfileCache) Get(ctx context.Context, chatbotID string) (*chatbot.Profile, error) {
	data, err := c.client.rdb.Get(ctx, profileCachePrefix+chatbotID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profile cache: %w", err)
	}

	var p chatbot.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

// Set caches a profile
func (c *ProfileCache) Set(ctx context.Context, profile *chatbot.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return c.client.rdb.Set(ctx, profileCachePrefix+profile.ID, data, c.ttl).Err()
}

// Invalidate removes a cached profile
func (c *ProfileCache) Invalidate(ctx context.Context, chatbotID string) error {
	return c.client.rdb.Del(ctx, profileCachePrefix+chatbotID).Err()
}

// FlushAll removes all cached profiles
func (c *ProfileCache) FlushAll(ctx context.Context) (int64, error) {
	pattern := profileCachePrefix + "*"
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := c.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			count, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += count
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}
