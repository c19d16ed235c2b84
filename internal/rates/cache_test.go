package rates

import (
	"context"
	"testing"
	"time"

	"github.com/bher20/freightrates/internal/locations"
	"github.com/bher20/freightrates/internal/storage"
	"github.com/shopspring/decimal"
)

func TestCacheStore_Unavailable(t *testing.T) {
	c := NewCacheStore(nil, 0)
	if c.Available() {
		t.Fatalf("nil backend must be unavailable")
	}
	if res := c.Lookup(context.Background(), "A", "B", locations.Sea, time.Now()); res.Outcome != CacheMiss {
		t.Fatalf("expected miss, got %s", res.Outcome)
	}
	if err := c.Store(context.Background(), storage.CachedRate{}); err != nil {
		t.Fatalf("store on unavailable cache: %v", err)
	}

	var nilStore *CacheStore
	if nilStore.Available() {
		t.Fatalf("nil CacheStore must be unavailable")
	}
}

func TestCacheStore_NormalizesNames(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	c := NewCacheStore(mem, time.Second)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	err := c.Store(ctx, storage.CachedRate{
		ID:          "r1",
		Origin:      " rotterdam",
		Destination: "New York ",
		Mode:        "sea",
		Price:       decimal.NewFromInt(1600),
		Currency:    "USD",
		ValidUntil:  now.Add(time.Hour),
		CreatedAt:   now,
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	res := c.Lookup(ctx, "ROTTERDAM", "new york", locations.Sea, now)
	if res.Outcome != CacheHit || res.Record.ID != "r1" {
		t.Fatalf("expected hit on r1, got %+v", res)
	}
	if res.Record.Origin != "ROTTERDAM" {
		t.Errorf("stored origin not normalized: %q", res.Record.Origin)
	}

	if res := c.Lookup(ctx, "ROTTERDAM", "NEW YORK", locations.Sea, now.Add(time.Hour)); res.Outcome != CacheMiss {
		t.Fatalf("expected miss at expiry, got %s", res.Outcome)
	}
}

func TestCacheStore_Failure(t *testing.T) {
	c := NewCacheStore(&brokenStorage{MemoryStorage: storage.NewMemory(), failReads: true}, 0)
	res := c.Lookup(context.Background(), "A", "B", locations.Sea, time.Now())
	if res.Outcome != CacheFailure || res.Err == nil {
		t.Fatalf("expected failure with error, got %+v", res)
	}
}
