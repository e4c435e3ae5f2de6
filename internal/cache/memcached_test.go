package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
)

type fakeMemcache struct {
	items  map[string]*memcache.Item
	getErr error
}

func (f *fakeMemcache) Get(key string) (*memcache.Item, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	it, ok := f.items[key]
	if !ok {
		return nil, memcache.ErrCacheMiss
	}
	return it, nil
}

func (f *fakeMemcache) Set(item *memcache.Item) error {
	if f.items == nil {
		f.items = make(map[string]*memcache.Item)
	}
	f.items[item.Key] = item
	return nil
}

func (f *fakeMemcache) Ping() error  { return nil }
func (f *fakeMemcache) Close() error { return nil }

func TestMemcachedCache_GetSet(t *testing.T) {
	ctx := context.Background()
	fm := &fakeMemcache{}
	c := newMemcachedCache(fm, clock.NewFake(t0))

	if err := c.Set(ctx, "44.8176,20.4599", sampleResult(), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	item, ok := fm.items["temperature:44.8176,20.4599"]
	if !ok {
		t.Fatal("item not stored under prefixed key")
	}
	if item.Expiration != 3600 {
		t.Errorf("Expiration = %d, want 3600", item.Expiration)
	}

	got, ok, err := c.Get(ctx, "44.8176,20.4599")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v; want hit", ok, err)
	}
	if got.Location.Name != "Belgrade, Serbia" || len(got.Readings) != 2 {
		t.Errorf("Get() = %+v", got)
	}
}

func TestMemcachedCache_ExpiredByClock(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(t0)
	c := newMemcachedCache(&fakeMemcache{}, fc)
	_ = c.Set(ctx, "k", sampleResult(), time.Hour)

	fc.Advance(time.Hour)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Get() ok = true after TTL, want false")
	}
}

func TestMemcachedCache_MissAndError(t *testing.T) {
	ctx := context.Background()
	c := newMemcachedCache(&fakeMemcache{}, nil)
	if _, ok, err := c.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("Get(missing) = ok %v, err %v; want miss without error", ok, err)
	}

	boom := errors.New("connection reset")
	c = newMemcachedCache(&fakeMemcache{getErr: boom}, nil)
	if _, _, err := c.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("Get() error = %v, want %v", err, boom)
	}
}

func TestMemcachedCache_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newMemcachedCache(&fakeMemcache{}, nil)
	if err := c.Set(ctx, "k", sampleResult(), time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Set() error = %v, want context.Canceled", err)
	}
}

func TestMemcachedCache_CorruptEntry(t *testing.T) {
	fm := &fakeMemcache{items: map[string]*memcache.Item{
		"temperature:k": {Key: "temperature:k", Value: []byte("{not json")},
	}}
	c := newMemcachedCache(fm, nil)
	if _, ok, err := c.Get(context.Background(), "k"); ok || !errors.Is(err, ErrCorruptEntry) {
		t.Errorf("Get() = ok %v, err %v; want ErrCorruptEntry", ok, err)
	}
}

func TestExpiration(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{time.Hour, 3600},
		{1500 * time.Millisecond, 2},
		{0, 1},
		{31 * 24 * time.Hour, int32(t0.Add(31 * 24 * time.Hour).Unix())},
	}
	for _, tt := range tests {
		if got := expiration(tt.ttl, t0); got != tt.want {
			t.Errorf("expiration(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func TestNewMemcachedCache_NoAddrs(t *testing.T) {
	if _, err := NewMemcachedCache(" , ", time.Second, 2, nil); err == nil {
		t.Error("NewMemcachedCache() with no addresses expected error")
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" a:11211, ,b:11211 ")
	if len(got) != 2 || got[0] != "a:11211" || got[1] != "b:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
}
