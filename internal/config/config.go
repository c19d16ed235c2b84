// Package config loads runtime configuration from FREIGHTRATES_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bher20/freightrates/internal/locations"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Message)
}

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Storage     StorageConfig
	Upstream    UpstreamConfig
	Engine      EngineConfig
	Entitlement EntitlementConfig
	Quota       QuotaConfig
	Alerting    AlertingConfig
	Email       EmailConfig
	Worker      WorkerConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Format string // "text" or "json"
	Level  string
}

type StorageConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type UpstreamConfig struct {
	BaseURL       string
	PlatformID    string
	APIKey        string
	Timeout       time.Duration
	SkipTLSVerify bool
}

type EngineConfig struct {
	CacheTTL         time.Duration
	LiveTimeout      time.Duration
	EstimateValidity time.Duration
	GuestUserID      string
	DefaultMode      locations.Mode
}

type EntitlementConfig struct {
	Mode      string // "static", "casbin" or "http"
	AllowList []string
	URL       string
}

type QuotaConfig struct {
	// MonthlyLimit is the number of live calls per calendar month; 0 is unlimited.
	MonthlyLimit   int64
	AlertThreshold float64
}

type AlertingConfig struct {
	WebhookURL  string
	WebhookType string
}

type EmailConfig struct {
	SendGridAPIKey string
	From           string
	FromName       string
	To             []string
}

type WorkerConfig struct {
	PrewarmSchedule     string
	QuotaReportSchedule string
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() (Config, error) {
	var (
		cfg Config
		err error
	)

	cfg.Server.Addr = env("FREIGHTRATES_ADDR", ":8000")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("FREIGHTRATES_ADDR") == "" {
		cfg.Server.Addr = ":" + port
	}
	if cfg.Server.ShutdownTimeout, err = parseDurationEnv("FREIGHTRATES_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return cfg, err
	}

	cfg.Log.Format = strings.ToLower(env("FREIGHTRATES_LOG_FORMAT", "text"))
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return cfg, &ConfigError{Field: "FREIGHTRATES_LOG_FORMAT", Message: "must be text or json"}
	}
	cfg.Log.Level = strings.ToLower(env("FREIGHTRATES_LOG_LEVEL", "info"))

	cfg.Storage.Driver = env("FREIGHTRATES_DB_DRIVER", "memory")
	switch cfg.Storage.Driver {
	case "none", "memory", "sqlite", "postgres", "postgrespool", "redis":
	default:
		return cfg, &ConfigError{Field: "FREIGHTRATES_DB_DRIVER", Message: fmt.Sprintf("unsupported driver %q", cfg.Storage.Driver)}
	}
	cfg.Storage.DSN = os.Getenv("FREIGHTRATES_DB_DSN")
	if cfg.Storage.AutoMigrate, err = parseBoolEnv("FREIGHTRATES_DB_AUTO_MIGRATE", true); err != nil {
		return cfg, err
	}

	cfg.Upstream.BaseURL = os.Getenv("FREIGHTRATES_UPSTREAM_URL")
	cfg.Upstream.PlatformID = os.Getenv("FREIGHTRATES_PLATFORM_ID")
	cfg.Upstream.APIKey = os.Getenv("FREIGHTRATES_API_KEY")
	if cfg.Upstream.Timeout, err = parseDurationEnv("FREIGHTRATES_UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Upstream.SkipTLSVerify, err = parseBoolEnv("FREIGHTRATES_UPSTREAM_SKIP_TLS_VERIFY", false); err != nil {
		return cfg, err
	}

	if cfg.Engine.CacheTTL, err = parseDurationEnv("FREIGHTRATES_CACHE_TTL", 7*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.Engine.LiveTimeout, err = parseDurationEnv("FREIGHTRATES_LIVE_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Engine.EstimateValidity, err = parseDurationEnv("FREIGHTRATES_ESTIMATE_VALIDITY", 24*time.Hour); err != nil {
		return cfg, err
	}
	cfg.Engine.GuestUserID = env("FREIGHTRATES_GUEST_USER_ID", "guest")
	mode, ok := locations.ParseMode(env("FREIGHTRATES_DEFAULT_MODE", "sea"))
	if !ok {
		return cfg, &ConfigError{Field: "FREIGHTRATES_DEFAULT_MODE", Message: "must be sea or air"}
	}
	cfg.Engine.DefaultMode = mode

	cfg.Entitlement.Mode = env("FREIGHTRATES_ENTITLEMENT_MODE", "static")
	cfg.Entitlement.AllowList = splitList(os.Getenv("FREIGHTRATES_ENTITLED_USERS"))
	cfg.Entitlement.URL = os.Getenv("FREIGHTRATES_ENTITLEMENT_URL")
	switch cfg.Entitlement.Mode {
	case "static", "casbin":
	case "http":
		if cfg.Entitlement.URL == "" {
			return cfg, &ConfigError{Field: "FREIGHTRATES_ENTITLEMENT_URL", Message: "required when entitlement mode is http"}
		}
	default:
		return cfg, &ConfigError{Field: "FREIGHTRATES_ENTITLEMENT_MODE", Message: "must be static, casbin or http"}
	}

	if raw := os.Getenv("FREIGHTRATES_QUOTA_MONTHLY_LIMIT"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return cfg, &ConfigError{Field: "FREIGHTRATES_QUOTA_MONTHLY_LIMIT", Message: "must be a non-negative integer"}
		}
		cfg.Quota.MonthlyLimit = n
	}
	cfg.Quota.AlertThreshold = 0.8
	if raw := os.Getenv("FREIGHTRATES_QUOTA_ALERT_THRESHOLD"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f <= 0 || f > 1 {
			return cfg, &ConfigError{Field: "FREIGHTRATES_QUOTA_ALERT_THRESHOLD", Message: "must be a fraction in (0, 1]"}
		}
		cfg.Quota.AlertThreshold = f
	}

	cfg.Alerting.WebhookURL = os.Getenv("FREIGHTRATES_ALERT_WEBHOOK_URL")
	cfg.Alerting.WebhookType = os.Getenv("FREIGHTRATES_ALERT_WEBHOOK_TYPE")

	cfg.Email.SendGridAPIKey = os.Getenv("FREIGHTRATES_SENDGRID_API_KEY")
	cfg.Email.From = os.Getenv("FREIGHTRATES_EMAIL_FROM")
	cfg.Email.FromName = env("FREIGHTRATES_EMAIL_FROM_NAME", "Freight Rates")
	cfg.Email.To = splitList(os.Getenv("FREIGHTRATES_EMAIL_TO"))

	cfg.Worker.PrewarmSchedule = env("FREIGHTRATES_PREWARM_SCHEDULE", "@every 30m")
	cfg.Worker.QuotaReportSchedule = env("FREIGHTRATES_QUOTA_REPORT_SCHEDULE", "@hourly")

	return cfg, nil
}

// LiveConfigured reports whether the upstream provider can be called at all.
func (c Config) LiveConfigured() bool {
	return c.Upstream.BaseURL != "" && c.Upstream.PlatformID != "" && c.Upstream.APIKey != ""
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be a valid duration (e.g. 10s, 168h)"}
	}
	if d <= 0 {
		return 0, &ConfigError{Field: key, Message: "must be positive"}
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ConfigError{Field: key, Message: "must be a boolean"}
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
