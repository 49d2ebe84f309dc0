package chatbot

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// DefaultCacheTTL bounds how stale a cached profile may be.
const DefaultCacheTTL = 5 * time.Minute

// ProfileCache stores profiles by chatbot id. A miss is (nil, nil).
type ProfileCache interface {
	Get(ctx context.Context, chatbotID string) (*Profile, error)
	Set(ctx context.Context, profile *Profile) error
	Invalidate(ctx context.Context, chatbotID string) error
}

// CachedDirectory serves lookups from cache, falling back to next.
type CachedDirectory struct {
	next  Directory
	cache ProfileCache
}

// NewCachedDirectory wraps next with cache.
func NewCachedDirectory(next Directory, cache ProfileCache) *CachedDirectory {
	return &CachedDirectory{next: next, cache: cache}
}

// Lookup treats cache errors as misses so a cache outage only costs a disk read.
func (d *CachedDirectory) Lookup(ctx context.Context, chatbotID string) (*Profile, error) {
	p, err := d.cache.Get(ctx, chatbotID)
	if err != nil {
		log.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("Profile cache read failed")
	} else if p != nil {
		return p, nil
	}

	p, err = d.next.Lookup(ctx, chatbotID)
	if err != nil {
		return nil, err
	}

	if err := d.cache.Set(ctx, p); err != nil {
		log.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("Profile cache write failed")
	}
	return p, nil
}

// MemoryCache is an in-process ProfileCache.
type MemoryCache struct {
	c *cache.Cache
}

// NewMemoryCache creates a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{c: cache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Get(_ context.Context, chatbotID string) (*Profile, error) {
	v, ok := m.c.Get(chatbotID)
	if !ok {
		return nil, nil
	}
	p := *v.(*Profile)
	return &p, nil
}

func (m *MemoryCache) Set(_ context.Context, profile *Profile) error {
	p := *profile
	m.c.SetDefault(profile.ID, &p)
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, chatbotID string) error {
	m.c.Delete(chatbotID)
	return nil
}

// FlushAll empties the cache and reports how many profiles it held.
func (m *MemoryCache) FlushAll(_ context.Context) (int64, error) {
	n := int64(m.c.ItemCount())
	m.c.Flush()
	return n, nil
}
