package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestIssueToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.PlatformID != "plat" || body.APIKey != "key" {
			t.Errorf("unexpected credentials: %+v", body)
		}
		w.Write([]byte(`{"token":"abc123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client())
	tok, err := c.IssueToken(context.Background(), "plat", "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "abc123" {
		t.Fatalf("unexpected token: %q", tok)
	}
}

func TestIssueToken_MissingTokenField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expires":3600}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).IssueToken(context.Background(), "p", "k")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestIssueToken_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).IssueToken(context.Background(), "p", "k")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestQueryRate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		q := r.URL.Query()
		if q.Get("origin") != "CNSHA" || q.Get("destination") != "USLAX" || q.Get("mode") != "sea" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("date") != "2026-03-01" {
			t.Errorf("unexpected date: %q", q.Get("date"))
		}
		w.Write([]byte(`{"price":1900,"currency":"usd","transitTime":16,"carrier":"Maersk"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	rate, err := c.QueryRate(context.Background(), "tok", RateQuery{
		Origin:      "CNSHA",
		Destination: "USLAX",
		Mode:        "sea",
		Date:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Price.Equal(decimal.NewFromInt(1900)) {
		t.Errorf("unexpected price: %s", rate.Price)
	}
	if rate.Currency != "USD" || rate.TransitTime != 16 || rate.Carrier != "Maersk" {
		t.Errorf("unexpected rate: %+v", rate)
	}
}

func TestQueryRate_NonPositivePrice(t *testing.T) {
	for _, body := range []string{
		`{"price":0,"currency":"USD","transitTime":16}`,
		`{"price":-5,"currency":"USD","transitTime":16}`,
		`{"currency":"USD","transitTime":16}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		_, err := NewClient(srv.URL, srv.Client()).QueryRate(context.Background(), "tok", RateQuery{Date: time.Now()})
		srv.Close()
		if !errors.Is(err, ErrNoUsablePrice) {
			t.Errorf("body %s: expected ErrNoUsablePrice, got %v", body, err)
		}
	}
}

func TestQueryRate_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).QueryRate(context.Background(), "tok", RateQuery{Date: time.Now()})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusBadGateway {
		t.Errorf("unexpected status code: %d", se.Code)
	}
}

func TestQueryRate_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).QueryRate(context.Background(), "tok", RateQuery{Date: time.Now()})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestQueryRate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, NewHTTPClient(50*time.Millisecond, false))
	if _, err := c.QueryRate(context.Background(), "tok", RateQuery{Date: time.Now()}); err == nil {
		t.Fatalf("expected timeout error")
	}
}
