package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-fusion-service/internal/models"
)

var paris = []models.Candidate{
	{Name: "Paris", Region: "Ile-de-France", Country: "France", Latitude: 48.87, Longitude: 2.33},
	{Name: "Paris", Region: "Texas", Country: "United States of America", Latitude: 33.66, Longitude: -95.56},
}

// TestInMemoryCache_GetSet verifies that Set stores candidates and Get returns
// them in the same order.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "Paris", paris, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "Paris")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if len(got) != 2 || got[0] != paris[0] || got[1] != paris[1] {
		t.Errorf("Get() = %+v, want %+v", got, paris)
	}
}

// TestInMemoryCache_EmptyListIsHit verifies that an empty candidate list is a
// cacheable result distinct from a miss.
func TestInMemoryCache_EmptyListIsHit(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	_ = c.Set(ctx, "zzzz", []models.Candidate{}, time.Minute)

	got, ok, err := c.Get(ctx, "zzzz")
	if err != nil || !ok {
		t.Fatalf("Get() = (%v, %v, %v), want hit", got, ok, err)
	}
	if len(got) != 0 {
		t.Errorf("Get() len = %d, want 0", len(got))
	}
}

func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache()
	_, ok, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false")
	}
}

// TestInMemoryCache_Get_Expired verifies that expired entries are reported as a
// miss and evicted.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	now := time.Date(2024, 4, 28, 21, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "Paris", paris, time.Minute)
	now = now.Add(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, "Paris"); ok {
		t.Error("Get() ok = true after expiry, want false")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after eviction", c.Len())
	}
}

// TestInMemoryCache_ReturnsCopy verifies callers cannot mutate cached entries.
func TestInMemoryCache_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	_ = c.Set(ctx, "Paris", paris, time.Minute)

	got, _, _ := c.Get(ctx, "Paris")
	got[0].Name = "mutated"

	again, _, _ := c.Get(ctx, "Paris")
	if again[0].Name != "Paris" {
		t.Errorf("cached entry mutated: %+v", again[0])
	}
}

func TestInMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "Paris", paris, time.Minute)
				_, _, _ = c.Get(ctx, "Paris")
			}
		}()
	}
	wg.Wait()
}

func TestStorageKey(t *testing.T) {
	a := storageKey("New York")
	b := storageKey("new york")
	if a == b {
		t.Error("storageKey() must not fold case")
	}
	if !strings.HasPrefix(a, keyPrefix) {
		t.Errorf("storageKey() = %q, want prefix %q", a, keyPrefix)
	}
	if strings.ContainsAny(a, " \t\n") || len(a) > 250 {
		t.Errorf("storageKey() = %q is not memcached-safe", a)
	}
	if storageKey("Zürich, Schweiz") != storageKey("Zürich, Schweiz") {
		t.Error("storageKey() not deterministic")
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{ttl: 5 * time.Minute, want: 300},
		{ttl: 0, want: 60},
		{ttl: -time.Second, want: 60},
		{ttl: 31 * 24 * time.Hour, want: 60},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
}

// TestMemcachedCache_CancelledContext verifies no network call is attempted once ctx is done.
func TestMemcachedCache_CancelledContext(t *testing.T) {
	c, err := NewMemcachedCache("127.0.0.1:1", 50*time.Millisecond, 1)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.Get(ctx, "Paris"); err == nil {
		t.Error("Get() with cancelled ctx expected error")
	}
	if err := c.Set(ctx, "Paris", paris, time.Minute); err == nil {
		t.Error("Set() with cancelled ctx expected error")
	}
}
