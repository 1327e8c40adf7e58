package cache

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/kjstillabower/weather-fusion-service/internal/models"
)

func createTestCandidates(n int) []models.Candidate {
	out := make([]models.Candidate, n)
	for i := range out {
		out[i] = models.Candidate{
			Name:      fmt.Sprintf("Springfield %d", i),
			Region:    "Illinois",
			Country:   "United States of America",
			Latitude:  39.8,
			Longitude: -89.64,
		}
	}
	return out
}

func BenchmarkInMemoryCache_Get_Hit(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "Springfield", createTestCandidates(5), 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, "Springfield")
	}
}

func BenchmarkInMemoryCache_Get_Miss(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, "nowhere")
	}
}

func BenchmarkInMemoryCache_Set(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()
	data := createTestCandidates(5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Set(ctx, "Springfield", data, 5*time.Minute)
	}
}

func BenchmarkInMemoryCache_Concurrent(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "Springfield", createTestCandidates(5), 5*time.Minute)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _, _ = c.Get(ctx, "Springfield")
		}
	})
}

func BenchmarkStorageKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = storageKey("San Francisco, California")
	}
}

// BenchmarkInMemoryCache_MemoryPerEntry reports approximate heap use per cached query.
func BenchmarkInMemoryCache_MemoryPerEntry(b *testing.B) {
	ctx := context.Background()
	data := createTestCandidates(5)
	const entries = 1000

	for i := 0; i < b.N; i++ {
		runtime.GC()
		var before, after runtime.MemStats
		runtime.ReadMemStats(&before)

		c := NewInMemoryCache()
		for j := 0; j < entries; j++ {
			_ = c.Set(ctx, fmt.Sprintf("query-%d", j), data, time.Minute)
		}

		runtime.ReadMemStats(&after)
		b.ReportMetric(float64(after.HeapAlloc-before.HeapAlloc)/entries, "bytes/entry")
		runtime.KeepAlive(c)
	}
}
