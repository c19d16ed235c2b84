package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bher20/freightrates/internal/alerting"
	"github.com/bher20/freightrates/internal/notification"
	"github.com/bher20/freightrates/internal/quota"
)

// LockKeyQuotaReport is the advisory lock key for the quota report. The
// credential pre-warm is per process and takes no lock.
const LockKeyQuotaReport int64 = 7302

// TokenWarmer is satisfied by credentials.Manager.
type TokenWarmer interface {
	Configured() bool
	Token(ctx context.Context) (string, error)
}

// PrewarmCredentials refreshes the platform token ahead of expiry so request
// paths rarely wait on the auth endpoint.
func PrewarmCredentials(tw TokenWarmer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !tw.Configured() {
			return nil
		}
		if _, err := tw.Token(ctx); err != nil {
			return fmt.Errorf("prewarm credentials: %w", err)
		}
		return nil
	}
}

// QuotaReporter publishes quota usage and raises an alert the first time
// usage crosses Threshold in a billing period.
type QuotaReporter struct {
	Meter     *quota.Meter
	Counter   quota.Counter // optional; re-seeds usage from storage
	Threshold float64
	Alerter   *alerting.Alerter
	Notifier  *notification.Service
}

func (r *QuotaReporter) Run(ctx context.Context) error {
	if r.Counter != nil {
		if err := r.Meter.Seed(ctx, r.Counter); err != nil {
			return err
		}
	}

	snap := r.Meter.Snapshot()
	slog.Info("cron: quota usage",
		"period", snap.PeriodStart.Format("2006-01"),
		"used", snap.Used,
		"limit", snap.Limit,
		"remaining", snap.Remaining(),
	)

	if !r.Meter.CrossedThreshold(r.Threshold) {
		return nil
	}

	var errs []error
	if r.Alerter != nil {
		if err := r.Alerter.SendQuotaAlert(ctx, alerting.QuotaAlert{
			PeriodStart: snap.PeriodStart,
			Used:        snap.Used,
			Limit:       snap.Limit,
			Threshold:   r.Threshold,
		}); err != nil {
			errs = append(errs, fmt.Errorf("quota webhook: %w", err))
		}
	}
	if r.Notifier.Enabled() {
		if err := r.Notifier.SendQuotaAlert(ctx, notification.QuotaUsage{
			Period: snap.PeriodStart.Format("2006-01"),
			Used:   snap.Used,
			Limit:  snap.Limit,
		}); err != nil {
			errs = append(errs, fmt.Errorf("quota email: %w", err))
		}
	}
	return errors.Join(errs...)
}
