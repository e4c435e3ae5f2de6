package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleResult() models.Result {
	return models.Result{
		Location: models.Coordinates{Latitude: 44.8176, Longitude: 20.4599, Name: "Belgrade, Serbia"},
		Readings: []models.Reading{
			{Date: "2024-05-01", Time: "14:00", Temperature: 21.3, Unit: models.Unit, Description: "Clear sky"},
			{Date: "2024-05-02", Time: "14:00", Temperature: 19.8, Unit: models.Unit, Description: "Overcast"},
		},
		ProducedAt: t0,
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		in   models.Coordinates
		want string
	}{
		{"four decimals", models.Coordinates{Latitude: 44.8176, Longitude: 20.4599}, "44.8176,20.4599"},
		{"rounds up", models.Coordinates{Latitude: 44.81768, Longitude: 20.45991}, "44.8177,20.4599"},
		{"pads", models.Coordinates{Latitude: 48.85, Longitude: 2.35}, "48.8500,2.3500"},
		{"negative", models.Coordinates{Latitude: -33.8688, Longitude: -151.2093}, "-33.8688,-151.2093"},
		{"negative zero folded", models.Coordinates{Latitude: -0.00001, Longitude: 0.00001}, "0.0000,0.0000"},
		{"name ignored", models.Coordinates{Latitude: 1, Longitude: 2, Name: "x"}, "1.0000,2.0000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.in); got != tt.want {
				t.Errorf("Key(%+v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestKey_CollapsesBeyondFourthDecimal(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(clock.NewFake(t0))

	a := models.Coordinates{Latitude: 44.817612, Longitude: 20.459901}
	b := models.Coordinates{Latitude: 44.817649, Longitude: 20.459949}
	if Key(a) != Key(b) {
		t.Fatalf("Key(a) = %q, Key(b) = %q, want equal", Key(a), Key(b))
	}

	if err := c.Set(ctx, Key(a), sampleResult(), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, Key(b)); !ok {
		t.Error("Get(b) ok = false, want hit on slot stored under a")
	}
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(clock.NewFake(t0))

	val := sampleResult()
	if err := c.Set(ctx, "44.8176,20.4599", val, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "44.8176,20.4599")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Location != val.Location || len(got.Readings) != len(val.Readings) || !got.ProducedAt.Equal(val.ProducedAt) {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
	for i := range val.Readings {
		if got.Readings[i] != val.Readings[i] {
			t.Errorf("Readings[%d] = %+v, want %+v", i, got.Readings[i], val.Readings[i])
		}
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache(nil)

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that Get returns ok=false once the TTL has
// elapsed and removes the entry on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(t0)
	c := NewInMemoryCache(fc)

	if err := c.Set(ctx, "k", sampleResult(), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	fc.Advance(59 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("Get() before TTL ok = false, want true")
	}

	fc.Advance(time.Minute)
	_, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after lazy eviction", c.Len())
	}
}

func TestInMemoryCache_ExpiryIndependentOfAccess(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(t0)
	c := NewInMemoryCache(fc)
	_ = c.Set(ctx, "k", sampleResult(), time.Hour)

	for i := 0; i < 5; i++ {
		fc.Advance(10 * time.Minute)
		_, _, _ = c.Get(ctx, "k")
	}
	fc.Advance(10 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Get() ok = true after TTL despite repeated reads, want false")
	}
}

func TestInMemoryCache_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(clock.NewFake(t0))
	_ = c.Set(ctx, "k", sampleResult(), time.Hour)

	got, _, _ := c.Get(ctx, "k")
	got.FromCache = true
	got.Readings[0].Temperature = 99

	again, _, _ := c.Get(ctx, "k")
	if again.FromCache {
		t.Error("stored entry FromCache mutated through returned copy")
	}
	if again.Readings[0].Temperature != 21.3 {
		t.Errorf("stored reading mutated: %v", again.Readings[0].Temperature)
	}
}

func TestInMemoryCache_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(t0)
	c := NewInMemoryCache(fc)
	_ = c.Set(ctx, "k", sampleResult(), time.Hour)

	fc.Advance(50 * time.Minute)
	newer := sampleResult()
	newer.ProducedAt = fc.Now()
	_ = c.Set(ctx, "k", newer, time.Hour)

	fc.Advance(30 * time.Minute)
	got, ok, _ := c.Get(ctx, "k")
	if !ok {
		t.Fatal("Get() ok = false, want true: overwrite resets expiry")
	}
	if !got.ProducedAt.Equal(newer.ProducedAt) {
		t.Errorf("ProducedAt = %v, want %v", got.ProducedAt, newer.ProducedAt)
	}
}

func TestInMemoryCache_Sweep(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(t0)
	c := NewInMemoryCache(fc)
	_ = c.Set(ctx, "old", sampleResult(), time.Minute)
	_ = c.Set(ctx, "new", sampleResult(), time.Hour)

	fc.Advance(2 * time.Minute)
	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok, _ := c.Get(ctx, "new"); !ok {
		t.Error("unexpired entry swept")
	}
}

func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(clock.NewFake(t0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r := sampleResult()
			r.Readings[0].Temperature = float64(i)
			_ = c.Set(ctx, fmt.Sprintf("k%d", i%5), r, time.Hour)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _, _ = c.Get(ctx, fmt.Sprintf("k%d", i%5))
		}(i)
	}
	wg.Wait()

	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}
	for i := 0; i < 5; i++ {
		got, ok, _ := c.Get(ctx, fmt.Sprintf("k%d", i))
		if !ok {
			t.Fatalf("k%d missing", i)
		}
		if int(got.Readings[0].Temperature)%5 != i {
			t.Errorf("k%d holds value written for another key: %v", i, got.Readings[0].Temperature)
		}
	}
}
