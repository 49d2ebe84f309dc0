package redis

import (
	"context"
	"fmt"
	"time"
)

const rateLimitPrefix = "ratelimit:query:"

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts widget queries per chatbot and visitor in fixed one-minute windows
type RateLimiter struct {
	client            *Client
	requestsPerMinute int
	burst             int
	now               func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client:            client,
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		now:               time.Now,
	}
}

// Allow records one request for the visitor and reports whether it fits the window.
func (r *RateLimiter) Allow(ctx context.Context, chatbotID, visitorID string) (Decision, error) {
	windowStart := r.now().Truncate(time.Minute)
	windowEnd := windowStart.Add(time.Minute)
	key := fmt.Sprintf("%s%s:%s:%d", rateLimitPrefix, chatbotID, visitorID, windowStart.Unix())

	pipe := r.client.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, windowEnd.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("failed to execute rate limit check: %w", err)
	}

	limit := r.requestsPerMinute + r.burst
	count := int(incr.Val())
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   windowEnd,
	}, nil
}

// Reset clears the current window for a visitor
func (r *RateLimiter) Reset(ctx context.Context, chatbotID, visitorID string) error {
	windowStart := r.now().Truncate(time.Minute)
	key := fmt.Sprintf("%s%s:%s:%d", rateLimitPrefix, chatbotID, visitorID, windowStart.Unix())
	return r.client.rdb.Del(ctx, key).Err()
}
