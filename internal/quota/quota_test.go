package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type fakeCounter struct {
	n     int64
	err   error
	since time.Time
}

func (f *fakeCounter) CountRatesSince(ctx context.Context, since time.Time) (int64, error) {
	f.since = since
	return f.n, f.err
}

func TestPeriodStart(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2026-04-01 03:00 in UTC+9 is still March in UTC.
	got := PeriodStart(time.Date(2026, 4, 1, 3, 0, 0, 0, loc))
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("PeriodStart = %v, want %v", got, want)
	}
}

func TestMeter_LimitAndRollover(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 30, 12, 0, 0, 0, time.UTC)}
	m := NewMeter(2, c.now)

	if !m.TryAcquire() || !m.TryAcquire() {
		t.Fatalf("expected two calls to fit a limit of 2")
	}
	if m.TryAcquire() {
		t.Fatalf("expected exhausted after reaching limit")
	}
	if u := m.Snapshot().Used; u != 2 {
		t.Fatalf("refused call must not be counted, used = %d", u)
	}
	if r := m.Snapshot().Remaining(); r != 0 {
		t.Errorf("Remaining = %d, want 0", r)
	}

	c.t = time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC)
	if u := m.Snapshot().Used; u != 0 {
		t.Fatalf("expected usage reset, got %d", u)
	}
	if !m.TryAcquire() {
		t.Fatalf("expected a call to fit after period rollover")
	}
}

func TestMeter_Unlimited(t *testing.T) {
	m := NewMeter(0, nil)
	for i := 0; i < 100; i++ {
		if !m.TryAcquire() {
			t.Fatalf("zero limit must never exhaust (call %d)", i)
		}
	}
	s := m.Snapshot()
	if s.Remaining() != -1 || s.Fraction() != 0 {
		t.Errorf("unexpected unlimited snapshot: %+v", s)
	}
	if m.CrossedThreshold(0.5) {
		t.Errorf("unlimited meter must not alert")
	}
}

func TestMeter_Seed(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)}
	m := NewMeter(10, c.now)
	fc := &fakeCounter{n: 7}

	if err := m.Seed(context.Background(), fc); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if !fc.since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("seed counted from %v", fc.since)
	}
	if u := m.Snapshot().Used; u != 7 {
		t.Fatalf("Used = %d, want 7", u)
	}

	fc.err = errors.New("db down")
	if err := m.Seed(context.Background(), fc); err == nil {
		t.Fatalf("expected seed error")
	}
	if u := m.Snapshot().Used; u != 7 {
		t.Fatalf("failed seed must not change usage, got %d", u)
	}
}

func TestMeter_CrossedThresholdOncePerPeriod(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)}
	m := NewMeter(10, c.now)
	for i := 0; i < 7; i++ {
		m.TryAcquire()
	}
	if m.CrossedThreshold(0.8) {
		t.Fatalf("7/10 must not cross 0.8")
	}
	m.TryAcquire()
	if !m.CrossedThreshold(0.8) {
		t.Fatalf("8/10 must cross 0.8")
	}
	m.TryAcquire()
	if m.CrossedThreshold(0.8) {
		t.Fatalf("alert must fire once per period")
	}

	c.t = time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		m.TryAcquire()
	}
	if !m.CrossedThreshold(0.8) {
		t.Fatalf("alert must re-arm in a new period")
	}
}

func TestMeter_TryAcquireConcurrentNeverExceedsLimit(t *testing.T) {
	const (
		limit   = 5
		callers = 50
	)
	m := NewMeter(limit, nil)

	var (
		admitted int32
		wg       sync.WaitGroup
		start    = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if m.TryAcquire() {
				// Simulate a slow token refresh before the rate call.
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if n := atomic.LoadInt32(&admitted); n != limit {
		t.Fatalf("admitted %d live calls, want %d", n, limit)
	}
	if u := m.Snapshot().Used; u != limit {
		t.Fatalf("Used = %d, want %d", u, limit)
	}
}
