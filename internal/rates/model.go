package rates

import (
	"time"

	"github.com/bher20/freightrates/internal/locations"
	"github.com/shopspring/decimal"
)

// Provenance says which tier produced a quote.
type Provenance string

const (
	ProvenanceLive      Provenance = "live"
	ProvenanceCached    Provenance = "cached"
	ProvenanceEstimated Provenance = "estimated"
)

// Quote is the answer returned for every resolution. A live quote is never an
// estimate.
type Quote struct {
	Origin              string          `json:"origin"`
	Destination         string          `json:"destination"`
	Mode                locations.Mode  `json:"mode"`
	Price               decimal.Decimal `json:"price"`
	Currency            string          `json:"currency"`
	TransitDays         int             `json:"transit_days"`
	Carrier             string          `json:"carrier"`
	ValidUntil          time.Time       `json:"valid_until"`
	Provenance          Provenance      `json:"provenance"`
	RequiresEntitlement bool            `json:"requires_entitlement"`
	IsEstimate          bool            `json:"is_estimate"`
}

// LaneRequest is one resolution request. An empty Mode uses the service
// default.
type LaneRequest struct {
	Origin      string
	Destination string
	UserID      string
	Mode        locations.Mode
}
