package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkInMemoryCache_Get_Hit benchmarks cache Get operation on cache hit.
func BenchmarkInMemoryCache_Get_Hit(b *testing.B) {
	c := NewInMemoryCache(nil)
	ctx := context.Background()
	_ = c.Set(ctx, "44.8176,20.4599", sampleResult(), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, "44.8176,20.4599")
	}
}

// BenchmarkInMemoryCache_Get_Miss benchmarks cache Get operation on cache miss.
func BenchmarkInMemoryCache_Get_Miss(b *testing.B) {
	c := NewInMemoryCache(nil)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, "0.0000,0.0000")
	}
}

// BenchmarkInMemoryCache_Get_Parallel measures read-lock contention under parallel hits.
func BenchmarkInMemoryCache_Get_Parallel(b *testing.B) {
	c := NewInMemoryCache(nil)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		_ = c.Set(ctx, fmt.Sprintf("%d.0000,0.0000", i), sampleResult(), time.Hour)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _, _ = c.Get(ctx, fmt.Sprintf("%d.0000,0.0000", i%100))
			i++
		}
	})
}

// BenchmarkKey benchmarks cache key derivation.
func BenchmarkKey(b *testing.B) {
	coords := sampleResult().Location
	for i := 0; i < b.N; i++ {
		_ = Key(coords)
	}
}
