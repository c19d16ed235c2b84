package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	Timeout     time.Duration
}

// Enabled reports whether a webhook is configured.
func (c AlertConfig) Enabled() bool {
	return c.WebhookURL != ""
}

func detectType(url, explicit string) string {
	if explicit != "" {
		return explicit
	}
	switch {
	case strings.Contains(url, "slack.com"):
		return "slack"
	case strings.Contains(url, "discord.com"):
		return "discord"
	default:
		return "generic"
	}
}

// Alerter sends alerts to configured webhooks.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
}

func NewAlerter(cfg AlertConfig) *Alerter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.WebhookType = detectType(cfg.WebhookURL, cfg.WebhookType)
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// QuotaAlert reports upstream quota usage for the current billing period.
type QuotaAlert struct {
	PeriodStart time.Time
	Used        int64
	Limit       int64
	Threshold   float64
	Timestamp   time.Time
}

func (a QuotaAlert) percent() float64 {
	if a.Limit == 0 {
		return 0
	}
	return 100 * float64(a.Used) / float64(a.Limit)
}

func (a QuotaAlert) exhausted() bool {
	return a.Limit > 0 && a.Used >= a.Limit
}

// SendQuotaAlert posts alert to the webhook. It is a no-op when alerting is
// disabled.
func (a *Alerter) SendQuotaAlert(ctx context.Context, alert QuotaAlert) error {
	if !a.cfg.Enabled() {
		slog.Debug("alerting: alerts disabled, skipping")
		return nil
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var payload []byte
	var err error

	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackPayload(alert)
	case "discord":
		payload, err = buildDiscordPayload(alert)
	default:
		payload, err = buildGenericPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	slog.Info("alerting: sent quota alert", "used", alert.Used, "limit", alert.Limit, "type", a.cfg.WebhookType)
	return nil
}

func buildSlackPayload(alert QuotaAlert) ([]byte, error) {
	emoji := ":warning:"
	if alert.exhausted() {
		emoji = ":x:"
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Freight rate quota at %.0f%%", emoji, alert.percent()),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Used:*\n%d/%d", alert.Used, alert.Limit)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Period:*\n%s", alert.PeriodStart.Format("2006-01"))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Threshold:*\n%.0f%%", alert.Threshold*100)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
		},
	}

	return json.Marshal(payload)
}

func buildDiscordPayload(alert QuotaAlert) ([]byte, error) {
	color := 16776960 // Yellow
	if alert.exhausted() {
		color = 16711680 // Red
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       "Freight rate quota alert",
				"description": fmt.Sprintf("%d/%d live lookups used this period", alert.Used, alert.Limit),
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Period", "value": alert.PeriodStart.Format("2006-01"), "inline": true},
					{"name": "Usage", "value": fmt.Sprintf("%.0f%%", alert.percent()), "inline": true},
					{"name": "Threshold", "value": fmt.Sprintf("%.0f%%", alert.Threshold*100), "inline": true},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}

	return json.Marshal(payload)
}

func buildGenericPayload(alert QuotaAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":   "quota_threshold",
		"period_start": alert.PeriodStart.Format(time.RFC3339),
		"used":         alert.Used,
		"limit":        alert.Limit,
		"threshold":    alert.Threshold,
		"exhausted":    alert.exhausted(),
		"timestamp":    alert.Timestamp.Format(time.RFC3339),
	}

	return json.Marshal(payload)
}
