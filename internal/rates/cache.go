package rates

import (
	"context"
	"time"

	"github.com/bher20/freightrates/internal/locations"
	"github.com/bher20/freightrates/internal/metrics"
	"github.com/bher20/freightrates/internal/storage"
)

// DefaultCacheTimeout bounds each read or write against the durable store.
const DefaultCacheTimeout = 5 * time.Second

// CacheOutcome is the explicit result kind of a cache lookup.
type CacheOutcome int

const (
	CacheMiss CacheOutcome = iota
	CacheHit
	CacheFailure
)

func (o CacheOutcome) String() string {
	switch o {
	case CacheHit:
		return "hit"
	case CacheFailure:
		return "failure"
	default:
		return "miss"
	}
}

// CacheResult carries the record for a hit and the error for a failure.
type CacheResult struct {
	Outcome CacheOutcome
	Record  *storage.CachedRate
	Err     error
}

// CacheStore is the engine's view of the durable rate cache. A CacheStore over
// a nil backend is unavailable: lookups miss and stores are dropped.
type CacheStore struct {
	store   storage.Storage
	timeout time.Duration
}

func NewCacheStore(st storage.Storage, timeout time.Duration) *CacheStore {
	if timeout <= 0 {
		timeout = DefaultCacheTimeout
	}
	return &CacheStore{store: st, timeout: timeout}
}

func (c *CacheStore) Available() bool {
	return c != nil && c.store != nil
}

// Lookup returns the newest record for the lane still valid at now. Names are
// normalized before the query.
func (c *CacheStore) Lookup(ctx context.Context, origin, destination string, mode locations.Mode, now time.Time) CacheResult {
	if !c.Available() {
		metrics.CacheLookupsTotal.WithLabelValues("unavailable").Inc()
		return CacheResult{Outcome: CacheMiss}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec, err := c.store.LatestRate(ctx,
		locations.Normalize(origin), locations.Normalize(destination), string(mode), now)

	var res CacheResult
	switch {
	case err != nil:
		res = CacheResult{Outcome: CacheFailure, Err: err}
	case rec == nil || !rec.ValidAt(now):
		res = CacheResult{Outcome: CacheMiss}
	default:
		res = CacheResult{Outcome: CacheHit, Record: rec}
	}
	metrics.CacheLookupsTotal.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

// Store appends rec. It is a no-op when the cache is unavailable.
func (c *CacheStore) Store(ctx context.Context, rec storage.CachedRate) error {
	if !c.Available() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec.Origin = locations.Normalize(rec.Origin)
	rec.Destination = locations.Normalize(rec.Destination)
	return c.store.SaveRate(ctx, rec)
}
