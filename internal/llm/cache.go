package llm

import (
	"sync"
	"time"
)

type cachedImage struct {
	expiry time.Time
	image  Image
}

// imageCache keeps downloaded product images so the archive and vision
// passes over the same product fetch each URL once.
type imageCache struct {
	entries   map[string]cachedImage
	stopCh    chan struct{}
	ttl       time.Duration
	mu        sync.RWMutex
	closeOnce sync.Once
}

func newImageCache(ttl time.Duration) *imageCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &imageCache{
		entries: make(map[string]cachedImage),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

func (c *imageCache) get(url string) (Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[url]
	if !ok || time.Now().After(entry.expiry) {
		return Image{}, false
	}
	return entry.image, true
}

func (c *imageCache) set(url string, img Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[url] = cachedImage{
		image:  img,
		expiry: time.Now().Add(c.ttl),
	}
}

func (c *imageCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired(time.Now())
		}
	}
}

func (c *imageCache) evictExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
}

func (c *imageCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *imageCache) Close() {
	c.closeOnce.Do(func() { close(c.stopCh) })
}
