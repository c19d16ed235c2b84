package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bher20/freightrates/internal/api/swagger"
	"github.com/bher20/freightrates/internal/lanes"
	"github.com/bher20/freightrates/internal/locations"
	"github.com/bher20/freightrates/internal/metrics"
	"github.com/bher20/freightrates/internal/rates"
)

// UserHeader carries the caller's id, set by the authentication layer in
// front of this service.
const UserHeader = "X-User-ID"

// Resolver is the quote engine as seen by the HTTP layer.
type Resolver interface {
	ResolveLane(ctx context.Context, req rates.LaneRequest) rates.Quote
}

// Pinger reports backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP surface. Store may be nil.
type Deps struct {
	Rates     Resolver
	Lanes     *lanes.Table
	Locations *locations.Resolver
	Store     Pinger
}

// NewMux constructs the HTTP mux, wiring in the rates service, metrics, and health endpoints.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", handleReady(d.Store))
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	// Quote API.
	mux.Handle("/api/v1/quote", instrument("/api/v1/quote", handleQuote(d.Rates)))
	mux.Handle("/api/v1/lanes", instrument("/api/v1/lanes", handleLanes(d.Lanes)))
	mux.Handle("/api/v1/locations", instrument("/api/v1/locations", handleLocations(d.Locations)))

	// API docs.
	mux.Handle("/swagger/", http.StripPrefix("/swagger", swagger.Handler()))

	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		metrics.RequestsTotal.WithLabelValues(path).Inc()
		next.ServeHTTP(rec, r)
		metrics.RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())

		if rec.status >= 400 {
			metrics.RequestErrorsTotal.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
		}
	})
}

func handleReady(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			// Without a durable store the service still answers with estimates.
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready (no store)"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			slog.Warn("readyz: store ping failed", "error", err)
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

func handleQuote(svc Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		// An unknown mode falls back to the engine's default mode.
		mode, _ := locations.ParseMode(q.Get("mode"))
		quote := svc.ResolveLane(r.Context(), rates.LaneRequest{
			Origin:      q.Get("origin"),
			Destination: q.Get("destination"),
			UserID:      r.Header.Get(UserHeader),
			Mode:        mode,
		})
		writeJSON(w, quote)
	}
}

type laneView struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Mode        string `json:"mode"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	TransitDays int    `json:"transit_days"`
	Carrier     string `json:"carrier"`
}

func handleLanes(table *lanes.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		entries := table.Lanes()
		out := make([]laneView, 0, len(entries))
		for _, e := range entries {
			out = append(out, laneView{
				Origin:      e.Origin,
				Destination: e.Destination,
				Mode:        string(e.Mode),
				Price:       e.Price.String(),
				Currency:    e.Currency,
				TransitDays: e.TransitDays,
				Carrier:     e.Carrier,
			})
		}
		writeJSON(w, out)
	}
}

func handleLocations(res *locations.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		mode := locations.Sea
		if raw := r.URL.Query().Get("mode"); raw != "" {
			m, ok := locations.ParseMode(raw)
			if !ok {
				http.Error(w, "unknown mode", http.StatusBadRequest)
				return
			}
			mode = m
		}
		out := res.Known(mode)
		if out == nil {
			out = []locations.Mapping{}
		}
		writeJSON(w, out)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response failed", "error", err)
	}
}
