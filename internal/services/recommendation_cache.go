package services

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
)

// RecommendationCache holds resolved lists for a short TTL and collapses concurrent
// loads for the same key into a single resolution.
type RecommendationCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	metrics    *observability.Metrics

	mu      sync.Mutex
	entries map[string]cacheEntry
	// loads tracks in-flight loads so InvalidateSession can keep them from storing stale lists.
	loads map[string]*pendingLoad
	group singleflight.Group
}

type pendingLoad struct {
	stale bool
}

type cacheEntry struct {
	recs      []Recommendation
	expiresAt time.Time
}

func NewRecommendationCache(ttl time.Duration, maxEntries int, metrics *observability.Metrics) *RecommendationCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &RecommendationCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		metrics:    metrics,
		entries:    make(map[string]cacheEntry),
		loads:      make(map[string]*pendingLoad),
	}
}

func CacheKey(level, personalityType, sessionToken string) string {
	return level + "|" + personalityType + "|" + sessionToken
}

// GetOrLoad returns a cached copy for key or runs load once for all concurrent callers.
// Empty results are returned but never stored.
func (c *RecommendationCache) GetOrLoad(key string, load func() []Recommendation) []Recommendation {
	if recs, ok := c.get(key); ok {
		c.metrics.IncRecommendationCache(true)
		return recs
	}
	c.metrics.IncRecommendationCache(false)
	v, _, _ := c.group.Do(key, func() (any, error) {
		if recs, ok := c.get(key); ok {
			return recs, nil
		}
		pending := c.beginLoad(key)
		var recs []Recommendation
		defer func() { c.finishLoad(key, pending, recs) }()
		recs = load()
		return recs, nil
	})
	return cloneRecommendations(v.([]Recommendation))
}

// InvalidateSession drops every entry cached for sessionToken. Loads already running for the
// session still return their result to waiting callers but do not store it.
func (c *RecommendationCache) InvalidateSession(sessionToken string) {
	if c == nil || sessionToken == "" {
		return
	}
	suffix := "|" + sessionToken
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasSuffix(k, suffix) {
			delete(c.entries, k)
		}
	}
	for k, p := range c.loads {
		if strings.HasSuffix(k, suffix) {
			p.stale = true
		}
	}
}

func (c *RecommendationCache) beginLoad(key string) *pendingLoad {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &pendingLoad{}
	c.loads[key] = p
	return p
}

func (c *RecommendationCache) finishLoad(key string, p *pendingLoad, recs []Recommendation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loads[key] == p {
		delete(c.loads, key)
	}
	if p.stale || len(recs) == 0 {
		return
	}
	c.setLocked(key, recs)
}

func (c *RecommendationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *RecommendationCache) get(key string) ([]Recommendation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return cloneRecommendations(e.recs), true
}

func (c *RecommendationCache) setLocked(key string, recs []Recommendation) {
	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = cacheEntry{recs: cloneRecommendations(recs), expiresAt: now.Add(c.ttl)}
}

// evictLocked drops expired entries, then the entry closest to expiry if still full.
func (c *RecommendationCache) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	delete(c.entries, oldestKey)
}

func cloneRecommendations(in []Recommendation) []Recommendation {
	out := make([]Recommendation, len(in))
	copy(out, in)
	return out
}
