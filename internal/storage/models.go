package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// CachedRate is a lane rate previously obtained from the live provider.
// Origin and destination are stored normalized (uppercase, trimmed).
type CachedRate struct {
	ID          string          `json:"id" gorm:"primaryKey;column:id"`
	Origin      string          `json:"origin" gorm:"column:origin;index:idx_cached_rates_lane,priority:1"`
	Destination string          `json:"destination" gorm:"column:destination;index:idx_cached_rates_lane,priority:2"`
	Mode        string          `json:"mode" gorm:"column:mode;index:idx_cached_rates_lane,priority:3"`
	Price       decimal.Decimal `json:"price" gorm:"column:price;type:numeric(14,2)"`
	Currency    string          `json:"currency" gorm:"column:currency"`
	TransitDays int             `json:"transit_days" gorm:"column:transit_days"`
	Carrier     string          `json:"carrier" gorm:"column:carrier"`
	ValidUntil  time.Time       `json:"valid_until" gorm:"column:valid_until"`
	CreatedAt   time.Time       `json:"created_at" gorm:"column:created_at;index"`
}

// ValidAt reports whether the record may still be served at now.
func (r CachedRate) ValidAt(now time.Time) bool {
	return now.Before(r.ValidUntil)
}

// CasbinRule represents a policy rule for entitlement checks.
type CasbinRule struct {
	ID    uint   `json:"-" gorm:"primaryKey"`
	PType string `json:"ptype" gorm:"column:ptype"`
	V0    string `json:"v0" gorm:"column:v0"`
	V1    string `json:"v1" gorm:"column:v1"`
	V2    string `json:"v2" gorm:"column:v2"`
	V3    string `json:"v3" gorm:"column:v3"`
	V4    string `json:"v4" gorm:"column:v4"`
	V5    string `json:"v5" gorm:"column:v5"`
}

// sameRule compares rule fields, ignoring the surrogate id.
func sameRule(a, b CasbinRule) bool {
	a.ID, b.ID = 0, 0
	return a == b
}
