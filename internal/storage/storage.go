package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for cached lane rates and entitlement policy
// rules. Rate records are insert-only: a newer record for the same lane
// supersedes older ones at read time and nothing is ever deleted.
type Storage interface {
	// LatestRate returns the most recently created record for the lane whose
	// ValidUntil is after now, or nil when there is none.
	LatestRate(ctx context.Context, origin, destination, mode string, now time.Time) (*CachedRate, error)
	// SaveRate appends a record.
	SaveRate(ctx context.Context, rec CachedRate) error
	// CountRatesSince counts records created at or after since.
	CountRatesSince(ctx context.Context, since time.Time) (int64, error)

	// Entitlement policy rules
	LoadCasbinRules(ctx context.Context) ([]CasbinRule, error)
	AddCasbinRule(ctx context.Context, r CasbinRule) error
	RemoveCasbinRule(ctx context.Context, r CasbinRule) error

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}
