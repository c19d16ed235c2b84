// Package credentials caches the short-lived bearer token for the rate
// provider and refreshes it before it expires.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bher20/freightrates/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRefreshBuffer is how long before expiry a cached token stops
	// being handed out.
	DefaultRefreshBuffer = 5 * time.Minute
	// DefaultTokenTTL is the lifetime assumed for a freshly issued token.
	DefaultTokenTTL = 4 * time.Hour
	// DefaultRefreshTimeout bounds a single refresh call.
	DefaultRefreshTimeout = 10 * time.Second
)

// ErrNotConfigured is returned without any network call when the platform id
// or API key is missing. It persists until the process is redeployed with
// credentials.
var ErrNotConfigured = errors.New("credentials: platform id or api key not configured")

// Issuer exchanges platform credentials for a bearer token.
type Issuer interface {
	IssueToken(ctx context.Context, platformID, apiKey string) (string, error)
}

// Config holds the platform credentials and token timing.
type Config struct {
	PlatformID     string
	APIKey         string
	RefreshBuffer  time.Duration
	TokenTTL       time.Duration
	RefreshTimeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager holds one token per process. It is safe for concurrent use; at
// most one refresh is in flight at a time.
type Manager struct {
	cfg    Config
	issuer Issuer
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	flight singleflight.Group
}

// NewManager returns a Manager. Zero durations in cfg take the defaults.
func NewManager(issuer Issuer, cfg Config) *Manager {
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = DefaultRefreshBuffer
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{cfg: cfg, issuer: issuer, now: now}
}

// Configured reports whether platform credentials are present.
func (m *Manager) Configured() bool {
	return m.cfg.PlatformID != "" && m.cfg.APIKey != ""
}

// Token returns a valid bearer token, refreshing it when the cached one is
// missing or inside the refresh buffer. Failures are never cached.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if !m.Configured() {
		return "", ErrNotConfigured
	}
	if tok, ok := m.cached(); ok {
		return tok, nil
	}

	v, err, _ := m.flight.Do("token", func() (interface{}, error) {
		// A refresh that finished while we waited for the lock is good enough.
		if tok, ok := m.cached(); ok {
			return tok, nil
		}
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next Token call refreshes.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

// ExpiresAt returns the expiry of the cached token, zero if none.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

func (m *Manager) cached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", false
	}
	if !m.now().Before(m.expiresAt.Add(-m.cfg.RefreshBuffer)) {
		return "", false
	}
	return m.token, true
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	// The flight is shared by every waiter, so it must not die with the
	// first caller's request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
	defer cancel()

	tok, err := m.issuer.IssueToken(ctx, m.cfg.PlatformID, m.cfg.APIKey)
	if err != nil {
		metrics.CredentialRefreshesTotal.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "credentials: token refresh failed", "error", err)
		return "", fmt.Errorf("credentials: refresh: %w", err)
	}

	expires := m.now().Add(m.cfg.TokenTTL)
	m.mu.Lock()
	m.token = tok
	m.expiresAt = expires
	m.mu.Unlock()

	metrics.CredentialRefreshesTotal.WithLabelValues("ok").Inc()
	slog.InfoContext(ctx, "credentials: token refreshed", "expires_at", expires)
	return tok, nil
}
