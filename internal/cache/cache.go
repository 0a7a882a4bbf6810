// Package cache stores finished answers keyed by collection and query.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qarag/internal/config"
	"qarag/internal/log"
)

// Cache provides thread-safe caching with expiration support.
type Cache interface {
	// Get returns the value and true, or false if missing or expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Close() error
}

// New returns the cache selected by cfg.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "", "none":
		return NoOp{}, nil
	case "memory":
		return NewMemoryCache(time.Minute), nil
	case "redis":
		if cfg.Redis == nil || cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("redis cache requires an address")
		}
		rc, err := NewRedisCache(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log.WithComponent("cache"))
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

type entry struct {
	value      []byte
	expiration time.Time
}

func (e *entry) isExpired(now time.Time) bool {
	return now.After(e.expiration)
}

// MemoryCache is an in-process Cache with a background janitor.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache starts a cache whose janitor removes expired entries every
// cleanupInterval. A non-positive interval disables the janitor.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*entry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	} else {
		close(c.done)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, found := c.entries[key]
	if !found || e.isExpired(c.now()) {
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, expiration: c.now().Add(ttl)}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	count := 0
	for key, e := range c.entries {
		if e.isExpired(now) {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

// Close stops the janitor and waits for it to exit.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

func (c *MemoryCache) janitor(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

// NoOp caches nothing.
type NoOp struct{}

func (NoOp) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (NoOp) Set(context.Context, string, []byte, time.Duration) {}
func (NoOp) Close() error                                       { return nil }
