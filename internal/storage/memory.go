package storage

import (
	"context"
	"sync"
	"time"
)

type laneKey struct {
	origin, destination, mode string
}

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu    sync.RWMutex
	rates map[laneKey][]CachedRate
	rules []CasbinRule
	// lastRuleID only grows, so ids stay unique after removals.
	lastRuleID uint
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		rates: make(map[laneKey][]CachedRate),
	}
}

// NewMemoryWithRules returns a MemoryStorage preloaded with policy rules.
func NewMemoryWithRules(rules []CasbinRule) *MemoryStorage {
	m := NewMemory()
	for _, r := range rules {
		m.lastRuleID++
		r.ID = m.lastRuleID
		m.rules = append(m.rules, r)
	}
	return m
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (m *MemoryStorage) LatestRate(ctx context.Context, origin, destination, mode string, now time.Time) (*CachedRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.rates[laneKey{origin, destination, mode}]
	var best *CachedRate
	for i := range list {
		if !list[i].ValidAt(now) {
			continue
		}
		// Later appends win ties.
		if best == nil || !list[i].CreatedAt.Before(best.CreatedAt) {
			best = &list[i]
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStorage) SaveRate(ctx context.Context, rec CachedRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	k := laneKey{rec.Origin, rec.Destination, rec.Mode}
	m.rates[k] = append(m.rates[k], rec)
	return nil
}

func (m *MemoryStorage) CountRatesSince(ctx context.Context, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, list := range m.rates {
		for _, r := range list {
			if !r.CreatedAt.Before(since) {
				n++
			}
		}
	}
	return n, nil
}

func (m *MemoryStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CasbinRule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

func (m *MemoryStorage) AddCasbinRule(ctx context.Context, r CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rules {
		if sameRule(existing, r) {
			return nil
		}
	}
	m.lastRuleID++
	r.ID = m.lastRuleID
	m.rules = append(m.rules, r)
	return nil
}

func (m *MemoryStorage) RemoveCasbinRule(ctx context.Context, r CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rules[:0]
	for _, existing := range m.rules {
		if !sameRule(existing, r) {
			kept = append(kept, existing)
		}
	}
	m.rules = kept
	return nil
}
