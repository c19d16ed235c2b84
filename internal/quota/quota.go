// Package quota meters live calls against the upstream provider's per-period
// allowance. The billing period is the calendar month in UTC.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bher20/freightrates/internal/metrics"
)

// Counter reports how many live rates were recorded since a point in time.
// storage.Storage satisfies it.
type Counter interface {
	CountRatesSince(ctx context.Context, since time.Time) (int64, error)
}

// PeriodStart returns the first instant of the billing period containing t.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Meter counts upstream rate calls in the current period. A limit of zero
// means unlimited. Safe for concurrent use.
type Meter struct {
	mu      sync.Mutex
	limit   int64
	used    int64
	period  time.Time
	alerted bool
	now     func() time.Time
}

// NewMeter returns a Meter starting at zero usage. now may be nil.
func NewMeter(limit int64, now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	if limit < 0 {
		limit = 0
	}
	m := &Meter{limit: limit, now: now, period: PeriodStart(now())}
	metrics.QuotaLimit.Set(float64(limit))
	metrics.QuotaUsed.Set(0)
	return m
}

// rollover resets usage when the period changed. Caller holds mu.
func (m *Meter) rollover() {
	p := PeriodStart(m.now())
	if p.After(m.period) {
		m.period = p
		m.used = 0
		m.alerted = false
		metrics.QuotaUsed.Set(0)
	}
}

// TryAcquire counts one live call if it fits in the current period and
// reports whether it did. The check and the increment happen under one lock,
// so concurrent callers can never take more than the limit.
func (m *Meter) TryAcquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	if m.limit != 0 && m.used >= m.limit {
		return false
	}
	m.used++
	metrics.QuotaUsed.Set(float64(m.used))
	return true
}

// Seed sets usage for the current period from previously stored live rates.
func (m *Meter) Seed(ctx context.Context, c Counter) error {
	m.mu.Lock()
	m.rollover()
	since := m.period
	m.mu.Unlock()

	n, err := c.CountRatesSince(ctx, since)
	if err != nil {
		return fmt.Errorf("quota: seed usage: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.used {
		m.used = n
	}
	metrics.QuotaUsed.Set(float64(m.used))
	return nil
}

// Snapshot is a point-in-time view of the meter.
type Snapshot struct {
	PeriodStart time.Time `json:"period_start"`
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit"`
}

// Remaining returns calls left in the period, or -1 when unlimited.
func (s Snapshot) Remaining() int64 {
	if s.Limit == 0 {
		return -1
	}
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// Fraction returns used/limit, or 0 when unlimited.
func (s Snapshot) Fraction() float64 {
	if s.Limit == 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Limit)
}

func (m *Meter) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return Snapshot{PeriodStart: m.period, Used: m.used, Limit: m.limit}
}

// CrossedThreshold returns true the first time in a period that usage reaches
// fraction of the limit. Always false when unlimited.
func (m *Meter) CrossedThreshold(fraction float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	if m.limit == 0 || m.alerted {
		return false
	}
	if float64(m.used) >= fraction*float64(m.limit) {
		m.alerted = true
		return true
	}
	return false
}
