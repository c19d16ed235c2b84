// Package app wires configuration into the storage, engine, HTTP and worker
// components.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bher20/freightrates/internal/alerting"
	"github.com/bher20/freightrates/internal/api"
	"github.com/bher20/freightrates/internal/config"
	"github.com/bher20/freightrates/internal/credentials"
	"github.com/bher20/freightrates/internal/cron"
	"github.com/bher20/freightrates/internal/entitlement"
	"github.com/bher20/freightrates/internal/lanes"
	"github.com/bher20/freightrates/internal/locations"
	"github.com/bher20/freightrates/internal/migrate"
	"github.com/bher20/freightrates/internal/notification"
	"github.com/bher20/freightrates/internal/quota"
	"github.com/bher20/freightrates/internal/rates"
	"github.com/bher20/freightrates/internal/storage"
	"github.com/bher20/freightrates/internal/upstream"
)

// App holds the application-level dependencies.
type App struct {
	Config      config.Config
	Store       storage.Storage // nil when the durable cache is disabled
	Rates       *rates.Service
	Credentials *credentials.Manager
	Quota       *quota.Meter
	Enforcer    *entitlement.Enforcer // set only in casbin mode
	Lanes       *lanes.Table
	Locations   *locations.Resolver
	Alerter     *alerting.Alerter
	Notifier    *notification.Service
}

// SetupLogging installs the default slog logger.
func SetupLogging(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// OpenStorage opens the configured backend. The pgxpool backend is migrated
// with goose first when auto-migrate is on; gorm backends migrate themselves.
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	if cfg.Driver == "postgrespool" && cfg.AutoMigrate {
		if err := migrate.Up(ctx, cfg.Driver, cfg.DSN); err != nil {
			return nil, fmt.Errorf("app: auto-migrate: %w", err)
		}
	}
	return storage.Open(ctx, storage.Config{Driver: cfg.Driver, DSN: cfg.DSN})
}

// New builds the application graph.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("app: open storage: %w", err)
	}

	a := &App{
		Config:    cfg,
		Store:     st,
		Lanes:     lanes.Default(),
		Locations: locations.Load(),
		Alerter: alerting.NewAlerter(alerting.AlertConfig{
			WebhookURL:  cfg.Alerting.WebhookURL,
			WebhookType: cfg.Alerting.WebhookType,
		}),
		Notifier: notification.NewService(notification.Config{
			APIKey:   cfg.Email.SendGridAPIKey,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
			To:       cfg.Email.To,
		}),
	}

	checker, err := a.buildChecker()
	if err != nil {
		a.Close()
		return nil, err
	}

	// Credentials and provider.
	client := upstream.NewClient(cfg.Upstream.BaseURL,
		upstream.NewHTTPClient(cfg.Upstream.Timeout, cfg.Upstream.SkipTLSVerify))
	a.Credentials = credentials.NewManager(client, credentials.Config{
		PlatformID: cfg.Upstream.PlatformID,
		APIKey:     cfg.Upstream.APIKey,
	})
	var provider rates.RateProvider
	if cfg.Upstream.BaseURL != "" {
		provider = client
	} else {
		slog.Warn("app: no upstream URL configured, live tier disabled")
	}

	// Quota.
	a.Quota = quota.NewMeter(cfg.Quota.MonthlyLimit, nil)
	if st != nil {
		if err := a.Quota.Seed(ctx, st); err != nil {
			slog.Warn("app: could not seed quota usage", "error", err)
		}
	}

	a.Rates = rates.NewService(rates.Config{
		CacheTTL:         cfg.Engine.CacheTTL,
		LiveTimeout:      cfg.Engine.LiveTimeout,
		EstimateValidity: cfg.Engine.EstimateValidity,
		GuestUserID:      cfg.Engine.GuestUserID,
		DefaultMode:      cfg.Engine.DefaultMode,
	}, rates.Deps{
		Cache:        rates.NewCacheStore(st, rates.DefaultCacheTimeout),
		Entitlements: checker,
		Locations:    a.Locations,
		Estimates:    a.Lanes,
		Credentials:  a.Credentials,
		Provider:     provider,
		Quota:        a.Quota,
	})

	slog.Info("app: initialized",
		"storage", cfg.Storage.Driver,
		"entitlement", cfg.Entitlement.Mode,
		"live", provider != nil && a.Credentials.Configured(),
		"quota_limit", cfg.Quota.MonthlyLimit,
	)
	return a, nil
}

func (a *App) buildChecker() (entitlement.Checker, error) {
	switch a.Config.Entitlement.Mode {
	case "casbin":
		if a.Store == nil {
			return nil, errors.New("app: casbin entitlements require a storage backend")
		}
		e, err := entitlement.NewEnforcer(a.Store)
		if err != nil {
			return nil, err
		}
		a.Enforcer = e
		return e, nil
	case "http":
		return entitlement.NewHTTPChecker(a.Config.Entitlement.URL, nil), nil
	default:
		return entitlement.NewStatic(a.Config.Entitlement.AllowList...), nil
	}
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	var pinger api.Pinger
	if a.Store != nil {
		pinger = a.Store
	}
	return api.NewMux(api.Deps{
		Rates:     a.Rates,
		Lanes:     a.Lanes,
		Locations: a.Locations,
		Store:     pinger,
	})
}

// Worker returns a scheduler with the credential pre-warm and quota report
// jobs. Jobs run on a single replica when the backend supports advisory
// locks.
func (a *App) Worker(ctx context.Context) (*cron.Worker, error) {
	var locker cron.Locker
	if l, ok := a.Store.(cron.Locker); ok {
		locker = l
	}
	w := cron.NewWorker(locker)

	if err := w.Add(ctx, cron.Job{
		Name:     "prewarm_credentials",
		Schedule: a.Config.Worker.PrewarmSchedule,
		Run:      cron.PrewarmCredentials(a.Credentials),
	}); err != nil {
		return nil, err
	}

	reporter := &cron.QuotaReporter{
		Meter:     a.Quota,
		Threshold: a.Config.Quota.AlertThreshold,
		Alerter:   a.Alerter,
		Notifier:  a.Notifier,
	}
	if a.Store != nil {
		reporter.Counter = a.Store
	}
	if err := w.Add(ctx, cron.Job{
		Name:     "quota_report",
		Schedule: a.Config.Worker.QuotaReportSchedule,
		LockKey:  cron.LockKeyQuotaReport,
		Run:      reporter.Run,
	}); err != nil {
		return nil, err
	}
	return w, nil
}

func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
