// Package locations maps free-text origin and destination names to the rate
// provider's location identifiers.
//
// Resolution is exact-match only. A wrong identifier makes the provider quote
// a different lane, so anything not in the table is reported as unresolved
// and the caller skips the live tier.
package locations

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Mode is the shipment mode a lookup is made for. Ports and airports live in
// separate identifier namespaces.
type Mode string

const (
	Sea Mode = "sea"
	Air Mode = "air"
)

// ParseMode maps a user supplied mode onto a Mode. Empty input is not a mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Sea:
		return Sea, true
	case Air:
		return Air, true
	default:
		return "", false
	}
}

// Normalize uppercases and trims a city or port name. Cache keys, estimate
// lanes and the mapping tables all use this form.
func Normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Mapping is one row of a location table.
type Mapping struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

const overrideEnv = "FREIGHTRATES_LOCATIONS_JSON"

// Resolver holds read-only per-mode lookup tables.
type Resolver struct {
	tables map[Mode]map[string]string
}

// NewResolver builds a Resolver from the given tables. Keys are normalized on
// load so callers may pass names in any case.
func NewResolver(tables map[Mode]map[string]string) *Resolver {
	r := &Resolver{tables: make(map[Mode]map[string]string, len(tables))}
	for mode, tbl := range tables {
		cp := make(map[string]string, len(tbl))
		for name, id := range tbl {
			cp[Normalize(name)] = strings.TrimSpace(id)
		}
		r.tables[mode] = cp
	}
	return r
}

// Load returns a Resolver built from FREIGHTRATES_LOCATIONS_JSON when it holds
// a valid non-empty document, otherwise from the built-in tables.
//
// The override document has the shape {"sea": {"NAME": "ID"}, "air": {...}}.
func Load() *Resolver {
	raw := os.Getenv(overrideEnv)
	if raw == "" {
		return NewResolver(defaultTables())
	}
	var doc map[Mode]map[string]string
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || len(doc) == 0 {
		slog.Warn("locations: ignoring invalid override, using built-in tables", "env", overrideEnv, "error", err)
		return NewResolver(defaultTables())
	}
	return NewResolver(doc)
}

// Resolve returns the provider identifier for name in the given mode.
func (r *Resolver) Resolve(name string, mode Mode) (string, bool) {
	key := Normalize(name)
	if key == "" {
		return "", false
	}
	id, ok := r.tables[mode][key]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Known lists the mappings for mode sorted by name.
func (r *Resolver) Known(mode Mode) []Mapping {
	tbl := r.tables[mode]
	out := make([]Mapping, 0, len(tbl))
	for name, id := range tbl {
		out = append(out, Mapping{Name: name, ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func defaultTables() map[Mode]map[string]string {
	return map[Mode]map[string]string{
		Sea: {
			"SHANGHAI":    "CNSHA",
			"SHENZHEN":    "CNSZX",
			"NINGBO":      "CNNGB",
			"QINGDAO":     "CNTAO",
			"HONG KONG":   "HKHKG",
			"SINGAPORE":   "SGSIN",
			"BUSAN":       "KRPUS",
			"TOKYO":       "JPTYO",
			"LOS ANGELES": "USLAX",
			"LONG BEACH":  "USLGB",
			"NEW YORK":    "USNYC",
			"SAVANNAH":    "USSAV",
			"HOUSTON":     "USHOU",
			"SEATTLE":     "USSEA",
			"VANCOUVER":   "CAVAN",
			"ROTTERDAM":   "NLRTM",
			"HAMBURG":     "DEHAM",
			"ANTWERP":     "BEANR",
			"FELIXSTOWE":  "GBFXT",
			"JEBEL ALI":   "AEJEA",
			"DUBAI":       "AEJEA",
			"NHAVA SHEVA": "INNSA",
			"MUMBAI":      "INNSA",
			"SANTOS":      "BRSSZ",
			"SYDNEY":      "AUSYD",
		},
		Air: {
			"SHANGHAI":    "PVG",
			"SHENZHEN":    "SZX",
			"HONG KONG":   "HKG",
			"SINGAPORE":   "SIN",
			"TOKYO":       "NRT",
			"SEOUL":       "ICN",
			"LOS ANGELES": "LAX",
			"NEW YORK":    "JFK",
			"CHICAGO":     "ORD",
			"MIAMI":       "MIA",
			"FRANKFURT":   "FRA",
			"LONDON":      "LHR",
			"AMSTERDAM":   "AMS",
			"PARIS":       "CDG",
			"DUBAI":       "DXB",
			"MUMBAI":      "BOM",
			"SYDNEY":      "SYD",
		},
	}
}
