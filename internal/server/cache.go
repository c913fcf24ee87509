package server

import (
	"sync"
	"time"

	"github.com/guiyumin/clipget/internal/core/extractor"
)

const (
	// DefaultCacheTTL is how long a resolved descriptor is reused.
	DefaultCacheTTL    = 10 * time.Minute
	cacheCleanupPeriod = time.Minute
)

type cachedDescriptor struct {
	info    *extractor.VideoInfo
	expires time.Time
}

// descriptorCache keeps recent resolve results keyed by canonical URL so
// that a resolve followed by a download of the same post fetches once.
type descriptorCache struct {
	mu      sync.Mutex
	entries map[string]cachedDescriptor
	ttl     time.Duration
	now     func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
}

func newDescriptorCache(ttl time.Duration) *descriptorCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &descriptorCache{
		entries: make(map[string]cachedDescriptor),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Start begins the periodic sweep of expired entries.
func (c *descriptorCache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		return
	}
	c.ticker = time.NewTicker(cacheCleanupPeriod)
	c.stop = make(chan struct{})
	go c.cleanupLoop(c.ticker, c.stop)
}

// Stop ends the sweep.
func (c *descriptorCache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.stop)
	c.ticker, c.stop = nil, nil
}

func (c *descriptorCache) cleanupLoop(ticker *time.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-stop:
			return
		}
	}
}

func (c *descriptorCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Get returns a copy of a live entry. Only playable descriptors are
// cached, so a miss means the post must be resolved again.
func (c *descriptorCache) Get(key string) (*extractor.VideoInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	cp := *e.info
	cp.Qualities = append([]extractor.QualityOption(nil), e.info.Qualities...)
	return &cp, true
}

func (c *descriptorCache) Put(key string, info *extractor.VideoInfo) {
	if !info.Playable() {
		return
	}
	c.mu.Lock()
	c.entries[key] = cachedDescriptor{info: info, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *descriptorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
