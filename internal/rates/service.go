// Package rates resolves freight quotes through a tiered lookup: durable
// cache, then the metered live provider for entitled users, then the static
// estimate table.
package rates

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bher20/freightrates/internal/entitlement"
	"github.com/bher20/freightrates/internal/lanes"
	"github.com/bher20/freightrates/internal/locations"
	"github.com/bher20/freightrates/internal/metrics"
	"github.com/bher20/freightrates/internal/storage"
	"github.com/bher20/freightrates/internal/upstream"
	"github.com/google/uuid"
)

// Defaults for Config fields left zero.
const (
	DefaultCacheTTL           = 7 * 24 * time.Hour
	DefaultLiveTimeout        = 10 * time.Second
	DefaultEstimateValidity   = 24 * time.Hour
	DefaultEntitlementTimeout = 5 * time.Second
	DefaultGuestUserID        = "guest"
)

// Fallback reasons, used in logs and metrics.
const (
	reasonNone                 = ""
	reasonStoreUnavailable     = "store_unavailable"
	reasonNotEntitled          = "not_entitled"
	reasonUnresolvedLocation   = "unresolved_location"
	reasonQuotaExhausted       = "quota_exhausted"
	reasonProviderUnconfigured = "provider_unconfigured"
	reasonCredential           = "credential"
	reasonUpstream             = "upstream"
)

// TokenSource supplies the platform bearer token. credentials.Manager
// satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// RateProvider performs the live lane lookup. upstream.Client satisfies it.
type RateProvider interface {
	QueryRate(ctx context.Context, token string, q upstream.RateQuery) (*upstream.Rate, error)
}

// QuotaGate meters live calls. TryAcquire counts one call and reports false
// when the allowance is used up. quota.Meter satisfies it.
type QuotaGate interface {
	TryAcquire() bool
}

// Config controls how the rates service behaves.
type Config struct {
	CacheTTL           time.Duration
	LiveTimeout        time.Duration
	EstimateValidity   time.Duration
	EntitlementTimeout time.Duration
	GuestUserID        string
	DefaultMode        locations.Mode
	Now                func() time.Time
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.LiveTimeout <= 0 {
		c.LiveTimeout = DefaultLiveTimeout
	}
	if c.EstimateValidity <= 0 {
		c.EstimateValidity = DefaultEstimateValidity
	}
	if c.EntitlementTimeout <= 0 {
		c.EntitlementTimeout = DefaultEntitlementTimeout
	}
	if c.GuestUserID == "" {
		c.GuestUserID = DefaultGuestUserID
	}
	if c.DefaultMode == "" {
		c.DefaultMode = locations.Sea
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Deps are the collaborators of the service. Any of them may be nil; a nil
// collaborator closes the tier that needs it.
type Deps struct {
	Cache        *CacheStore
	Entitlements entitlement.Checker
	Locations    *locations.Resolver
	Estimates    *lanes.Table
	Credentials  TokenSource
	Provider     RateProvider
	Quota        QuotaGate
}

// Service coordinates cache, live provider and estimates.
type Service struct {
	cfg  Config
	deps Deps
}

func NewService(cfg Config, deps Deps) *Service {
	if deps.Estimates == nil {
		deps.Estimates = lanes.Default()
	}
	if deps.Locations == nil {
		deps.Locations = locations.Load()
	}
	return &Service{cfg: cfg.withDefaults(), deps: deps}
}

// Resolve returns a quote for the lane in the default mode. It never fails;
// problems show up only in the quote's provenance and flags.
func (s *Service) Resolve(ctx context.Context, origin, destination, userID string) Quote {
	return s.ResolveLane(ctx, LaneRequest{Origin: origin, Destination: destination, UserID: userID})
}

// ResolveLane is Resolve with an explicit transport mode.
func (s *Service) ResolveLane(ctx context.Context, req LaneRequest) Quote {
	now := s.cfg.Now()
	origin := locations.Normalize(req.Origin)
	destination := locations.Normalize(req.Destination)
	mode := req.Mode
	if mode == "" {
		mode = s.cfg.DefaultMode
	}
	log := slog.With("origin", origin, "destination", destination, "mode", string(mode))

	// 1. No durable cache: never spend live quota without somewhere to keep it.
	if !s.deps.Cache.Available() {
		return s.finish(log, s.estimate(origin, destination, mode, now, false), reasonStoreUnavailable)
	}

	// 2. Cache.
	res := s.deps.Cache.Lookup(ctx, origin, destination, mode, now)
	switch res.Outcome {
	case CacheFailure:
		log.Warn("rates: cache lookup failed, treating store as unavailable", "error", res.Err)
		return s.finish(log, s.estimate(origin, destination, mode, now, false), reasonStoreUnavailable)
	case CacheHit:
		entitled := s.entitled(ctx, log, req.UserID)
		return s.finish(log, fromRecord(*res.Record, mode, entitled), reasonNone)
	}

	// 3. Miss without entitlement: estimate, and never touch the provider.
	if !s.entitled(ctx, log, req.UserID) {
		return s.finish(log, s.estimate(origin, destination, mode, now, true), reasonNotEntitled)
	}

	// 4. Miss with entitlement: try the live tier.
	out := s.live(ctx, log, origin, destination, mode, now)
	if out.quote != nil {
		return s.finish(log, *out.quote, reasonNone)
	}
	if out.err != nil {
		log.Warn("rates: live lookup failed, using estimate", "reason", out.reason, "error", out.err)
	} else {
		log.Info("rates: live lookup skipped, using estimate", "reason", out.reason)
	}

	// 5. Estimate.
	return s.finish(log, s.estimate(origin, destination, mode, now, false), out.reason)
}

func (s *Service) finish(log *slog.Logger, q Quote, reason string) Quote {
	metrics.ResolutionsTotal.WithLabelValues(string(q.Provenance), reason).Inc()
	log.Debug("rates: resolved", "provenance", q.Provenance, "reason", reason, "price", q.Price.String())
	return q
}

// entitled treats the guest id, an empty id, a missing checker and a failing
// checker as not entitled.
func (s *Service) entitled(ctx context.Context, log *slog.Logger, userID string) bool {
	if userID == "" || userID == s.cfg.GuestUserID || s.deps.Entitlements == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EntitlementTimeout)
	defer cancel()

	ok, err := s.deps.Entitlements.HasEntitlement(ctx, userID)
	if err != nil {
		log.Warn("rates: entitlement check failed", "user", userID, "error", err)
		return false
	}
	return ok
}

func fromRecord(rec storage.CachedRate, mode locations.Mode, entitled bool) Quote {
	q := Quote{
		Origin:      rec.Origin,
		Destination: rec.Destination,
		Mode:        mode,
		Price:       rec.Price,
		Currency:    rec.Currency,
		TransitDays: rec.TransitDays,
		Carrier:     rec.Carrier,
		ValidUntil:  rec.ValidUntil,
	}
	if entitled {
		q.Provenance = ProvenanceLive
		return q
	}
	// Non-entitled callers still see the cached price, flagged as an estimate.
	q.Provenance = ProvenanceCached
	q.RequiresEntitlement = true
	q.IsEstimate = true
	return q
}

func (s *Service) estimate(origin, destination string, mode locations.Mode, now time.Time, requiresEntitlement bool) Quote {
	e := s.deps.Estimates.Estimate(origin, destination, mode)
	return Quote{
		Origin:              origin,
		Destination:         destination,
		Mode:                mode,
		Price:               e.Price,
		Currency:            e.Currency,
		TransitDays:         e.TransitDays,
		Carrier:             e.Carrier,
		ValidUntil:          now.Add(s.cfg.EstimateValidity),
		Provenance:          ProvenanceEstimated,
		RequiresEntitlement: requiresEntitlement,
		IsEstimate:          true,
	}
}

type liveOutcome struct {
	quote  *Quote
	reason string
	err    error
}

func (s *Service) live(ctx context.Context, log *slog.Logger, origin, destination string, mode locations.Mode, now time.Time) liveOutcome {
	if s.deps.Provider == nil || s.deps.Credentials == nil {
		return liveOutcome{reason: reasonProviderUnconfigured}
	}

	originID, okO := s.deps.Locations.Resolve(origin, mode)
	destinationID, okD := s.deps.Locations.Resolve(destination, mode)
	if !okO || !okD {
		log.Info("rates: location not mapped", "origin_known", okO, "destination_known", okD)
		return liveOutcome{reason: reasonUnresolvedLocation}
	}

	token, err := s.deps.Credentials.Token(ctx)
	if err != nil {
		return liveOutcome{reason: reasonCredential, err: err}
	}

	// Take the quota slot only once the call is about to go out.
	if s.deps.Quota != nil && !s.deps.Quota.TryAcquire() {
		return liveOutcome{reason: reasonQuotaExhausted}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.LiveTimeout)
	defer cancel()

	rate, err := s.deps.Provider.QueryRate(callCtx, token, upstream.RateQuery{
		Origin:      originID,
		Destination: destinationID,
		Mode:        string(mode),
		Date:        now,
	})
	if err != nil {
		if errors.Is(err, upstream.ErrUnauthorized) {
			s.deps.Credentials.Invalidate()
		}
		return liveOutcome{reason: reasonUpstream, err: err}
	}
	if rate == nil || rate.Price.Sign() <= 0 {
		return liveOutcome{reason: reasonUpstream, err: upstream.ErrNoUsablePrice}
	}

	rec := storage.CachedRate{
		ID:          uuid.NewString(),
		Origin:      origin,
		Destination: destination,
		Mode:        string(mode),
		Price:       rate.Price,
		Currency:    rate.Currency,
		TransitDays: rate.TransitTime,
		Carrier:     rate.Carrier,
		ValidUntil:  now.Add(s.cfg.CacheTTL),
		CreatedAt:   now,
	}
	if err := s.deps.Cache.Store(ctx, rec); err != nil {
		log.Warn("rates: cache write-back failed", "error", err)
	}

	q := fromRecord(rec, mode, true)
	return liveOutcome{quote: &q}
}
