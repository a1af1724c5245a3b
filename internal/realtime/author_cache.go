package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/metrics"
	"github.com/zfogg/sparkfeed/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultAuthorTTL is how long a fetched profile is trusted
const DefaultAuthorTTL = 10 * time.Minute

// ProfileSource fetches a profile from the query surface
type ProfileSource interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// Tier is a shared cache sitting between the local map and the source.
// cache.RedisClient satisfies it.
type Tier interface {
	GetJSON(ctx context.Context, key string, v interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

type authorEntry struct {
	profile models.Profile
	expires time.Time
}

// AuthorCache resolves author metadata for remote posts. Concurrent lookups
// of the same id share one fetch.
type AuthorCache struct {
	source ProfileSource
	tier   Tier
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	local map[string]authorEntry
	group singleflight.Group

	appMetrics *metrics.ApplicationMetrics
}

// NewAuthorCache builds a cache over source. tier may be nil.
func NewAuthorCache(source ProfileSource, tier Tier, ttl time.Duration) *AuthorCache {
	if ttl <= 0 {
		ttl = DefaultAuthorTTL
	}
	return &AuthorCache{
		source:     source,
		tier:       tier,
		ttl:        ttl,
		now:        time.Now,
		local:      make(map[string]authorEntry),
		appMetrics: metrics.App(),
	}
}

func authorKey(id string) string {
	return "author:" + id
}

// Get returns the profile for id, trying the local map, then the shared
// tier, then the source
func (c *AuthorCache) Get(ctx context.Context, id string) (*models.Profile, error) {
	if p, ok := c.lookupLocal(id); ok {
		c.appMetrics.AuthorCacheLookups.WithLabelValues("memory").Inc()
		return p, nil
	}

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		if c.tier != nil {
			var p models.Profile
			hit, err := c.tier.GetJSON(ctx, authorKey(id), &p)
			if err != nil {
				logger.Log.Warn("Author cache tier read failed",
					logger.WithUserID(id),
					zap.Error(err),
				)
			} else if hit {
				c.appMetrics.AuthorCacheLookups.WithLabelValues("redis").Inc()
				c.storeLocal(p)
				return &p, nil
			}
		}

		p, err := c.source.GetProfile(ctx, id)
		if err != nil {
			c.appMetrics.AuthorCacheLookups.WithLabelValues("error").Inc()
			return nil, err
		}
		c.appMetrics.AuthorCacheLookups.WithLabelValues("source").Inc()
		public := publicProfile(*p)
		c.storeLocal(public)
		if c.tier != nil {
			if err := c.tier.SetJSON(ctx, authorKey(id), public, c.ttl); err != nil {
				logger.Log.Warn("Author cache tier write failed",
					logger.WithUserID(id),
					zap.Error(err),
				)
			}
		}
		return &public, nil
	})
	if err != nil {
		return nil, err
	}
	p := *(v.(*models.Profile))
	return &p, nil
}

// Put seeds the local map, e.g. with authors already seen in a page
func (c *AuthorCache) Put(p models.Profile) {
	if p.ID == "" {
		return
	}
	c.storeLocal(publicProfile(p))
}

// Len returns the number of locally cached profiles
func (c *AuthorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.local)
}

func (c *AuthorCache) lookupLocal(id string) (*models.Profile, bool) {
	c.mu.RLock()
	e, ok := c.local[id]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	p := e.profile
	return &p, true
}

func (c *AuthorCache) storeLocal(p models.Profile) {
	c.mu.Lock()
	c.local[p.ID] = authorEntry{profile: p, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// publicProfile strips fields a feed never shows
func publicProfile(p models.Profile) models.Profile {
	p.Email = ""
	p.PasswordHash = nil
	return p
}
