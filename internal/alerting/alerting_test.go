package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDetectType(t *testing.T) {
	for url, want := range map[string]string{
		"https://hooks.slack.com/services/x":  "slack",
		"https://discord.com/api/webhooks/1": "discord",
		"https://ops.example.com/hook":       "generic",
	} {
		if got := detectType(url, ""); got != want {
			t.Errorf("detectType(%q) = %q, want %q", url, got, want)
		}
	}
	if got := detectType("https://hooks.slack.com/x", "generic"); got != "generic" {
		t.Errorf("explicit type must win, got %q", got)
	}
}

func TestSendQuotaAlert_Generic(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	a := NewAlerter(AlertConfig{WebhookURL: srv.URL})
	err := a.SendQuotaAlert(context.Background(), QuotaAlert{
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Used:        10,
		Limit:       10,
		Threshold:   0.8,
	})
	if err != nil {
		t.Fatalf("SendQuotaAlert: %v", err)
	}
	if got["alert_type"] != "quota_threshold" || got["exhausted"] != true {
		t.Fatalf("unexpected payload: %v", got)
	}
	if got["used"].(float64) != 10 {
		t.Errorf("used = %v", got["used"])
	}
}

func TestSendQuotaAlert_SlackShape(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	a := NewAlerter(AlertConfig{WebhookURL: srv.URL, WebhookType: "slack"})
	if err := a.SendQuotaAlert(context.Background(), QuotaAlert{Used: 8, Limit: 10, Threshold: 0.8}); err != nil {
		t.Fatalf("SendQuotaAlert: %v", err)
	}
	if _, ok := got["blocks"]; !ok {
		t.Fatalf("expected slack blocks, got %v", got)
	}
}

func TestSendQuotaAlert_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(AlertConfig{WebhookURL: srv.URL})
	if err := a.SendQuotaAlert(context.Background(), QuotaAlert{Used: 1, Limit: 1}); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestSendQuotaAlert_Disabled(t *testing.T) {
	a := NewAlerter(AlertConfig{})
	if err := a.SendQuotaAlert(context.Background(), QuotaAlert{}); err != nil {
		t.Fatalf("disabled alerter must be a no-op, got %v", err)
	}
}
