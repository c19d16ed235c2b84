package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bher20/freightrates/internal/config"
	"github.com/bher20/freightrates/internal/locations"
	"github.com/bher20/freightrates/internal/rates"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.Storage.Driver = "memory"
	cfg.Engine.DefaultMode = locations.Sea
	cfg.Entitlement.Mode = "static"
	cfg.Entitlement.AllowList = []string{"alice"}
	cfg.Quota.AlertThreshold = 0.8
	cfg.Worker.PrewarmSchedule = "@every 30m"
	cfg.Worker.QuotaReportSchedule = "@hourly"
	return cfg
}

func getQuote(t *testing.T, h http.Handler, user string) rates.Quote {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/quote?origin=Shanghai&destination=Los+Angeles", nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	var q rates.Quote
	if err := json.Unmarshal(rr.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	return q
}

func TestNew_WithoutUpstreamServesEstimates(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	q := getQuote(t, a.Handler(), "alice")
	if q.Provenance != rates.ProvenanceEstimated || !q.IsEstimate {
		t.Fatalf("expected estimate, got %+v", q)
	}
	if q.Carrier != "COSCO Shipping" {
		t.Errorf("unexpected carrier: %q", q.Carrier)
	}
}

func TestNew_LiveThenServedFromCache(t *testing.T) {
	var rateCalls int32
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			w.Write([]byte(`{"token":"tok"}`))
		case "/rates":
			atomic.AddInt32(&rateCalls, 1)
			w.Write([]byte(`{"price":1900,"currency":"USD","transitTime":16,"carrier":"Maersk"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstreamSrv.Close()

	cfg := testConfig()
	cfg.Upstream.BaseURL = upstreamSrv.URL
	cfg.Upstream.PlatformID = "plat"
	cfg.Upstream.APIKey = "key"

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	h := a.Handler()

	first := getQuote(t, h, "alice")
	if first.Provenance != rates.ProvenanceLive {
		t.Fatalf("expected live quote, got %+v", first)
	}
	second := getQuote(t, h, "alice")
	if second.Provenance != rates.ProvenanceLive || !second.Price.Equal(first.Price) {
		t.Fatalf("expected cached live price for entitled user, got %+v", second)
	}
	guest := getQuote(t, h, "")
	if guest.Provenance != rates.ProvenanceCached || !guest.RequiresEntitlement {
		t.Fatalf("expected soft-unlocked cached quote for guest, got %+v", guest)
	}
	if n := atomic.LoadInt32(&rateCalls); n != 1 {
		t.Errorf("expected one upstream rate call, got %d", n)
	}
	if got := a.Quota.Snapshot().Used; got != 1 {
		t.Errorf("expected quota usage 1, got %d", got)
	}
}

func TestNew_CasbinRequiresStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "none"
	cfg.Entitlement.Mode = "casbin"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for casbin without storage")
	}
}

func TestNew_CasbinGrant(t *testing.T) {
	cfg := testConfig()
	cfg.Entitlement.Mode = "casbin"
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.Enforcer == nil {
		t.Fatalf("expected enforcer in casbin mode")
	}

	ctx := context.Background()
	if ok, _ := a.Enforcer.HasEntitlement(ctx, "bob"); ok {
		t.Fatalf("bob should not be entitled before grant")
	}
	if err := a.Enforcer.Grant(ctx, "bob"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if ok, _ := a.Enforcer.HasEntitlement(ctx, "bob"); !ok {
		t.Fatalf("bob should be entitled after grant")
	}
}

func TestWorker_SchedulesJobs(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := a.Worker(context.Background()); err != nil {
		t.Fatalf("Worker: %v", err)
	}

	cfg := testConfig()
	cfg.Worker.QuotaReportSchedule = "not a schedule"
	b, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()
	if _, err := b.Worker(context.Background()); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
}
