package video

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "video_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "video_cache_miss_total"})
)

type listing struct {
	videos   []*Video
	loadedAt time.Time
}

// ListCache keeps the active catalog per category. Cached slices are shared
// and must not be modified by callers.
type ListCache struct {
	mu    sync.RWMutex
	items map[string]*listing
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time
}

func NewListCache(ttl time.Duration) *ListCache {
	return &ListCache{
		items: make(map[string]*listing),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *ListCache) Get(category string) ([]*Video, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[category]
	if !ok || c.now().Sub(v.loadedAt) > c.ttl {
		cacheMiss.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return v.videos, true
}

func (c *ListCache) Set(category string, videos []*Video) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[category] = &listing{videos: videos, loadedAt: c.now()}
}

// InvalidateAll drops every category and is called after catalog writes.
func (c *ListCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*listing)
}
