package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-fusion-service/internal/models"
)

// Cache holds resolved candidate lists keyed by the raw query.
// Get returns cached candidates if present and not expired, Set stores them with TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.Candidate, bool, error)
	Set(ctx context.Context, key string, value []models.Candidate, ttl time.Duration) error
}

// Pinger is implemented by networked backends so health checks can probe them.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InMemoryCache implements Cache using a mutex-guarded map with TTL-based expiration.
// Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     []models.Candidate
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get returns (candidates, true, nil) on hit and (nil, false, nil) on miss or expiry.
// The returned slice is a copy.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]models.Candidate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	return cloneCandidates(entry.value), true, nil
}

// Set stores candidates with the given TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []models.Candidate, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     cloneCandidates(value),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func cloneCandidates(in []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, len(in))
	copy(out, in)
	return out
}
