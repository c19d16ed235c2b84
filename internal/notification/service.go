package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	APIKey   string
	From     string
	FromName string
	To       []string
	// Host overrides the SendGrid API host; empty uses the public API.
	Host string
}

func (c Config) Enabled() bool {
	return c.APIKey != "" && c.From != "" && len(c.To) > 0
}

// Service sends operator emails through SendGrid.
type Service struct {
	cfg Config
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) Enabled() bool {
	return s != nil && s.cfg.Enabled()
}

// SendEmail delivers one message to every configured recipient.
func (s *Service) SendEmail(ctx context.Context, subject, body string) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}

	from := mail.NewEmail(s.cfg.FromName, s.cfg.From)
	msg := mail.NewV3Mail()
	msg.SetFrom(from)
	msg.Subject = subject

	p := mail.NewPersonalization()
	for _, addr := range s.cfg.To {
		p.AddTos(mail.NewEmail("", addr))
	}
	msg.AddPersonalizations(p)
	msg.AddContent(
		mail.NewContent("text/plain", body),
		mail.NewContent("text/html", "<pre>"+htmlEscape(body)+"</pre>"),
	)

	req := sendgrid.GetRequest(s.cfg.APIKey, "/v3/mail/send", s.cfg.Host)
	req.Method = "POST"
	client := &sendgrid.Client{Request: req}

	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	slog.Info("notification: email sent", "subject", subject, "recipients", len(s.cfg.To))
	return nil
}

// QuotaUsage is the content of a quota alert email.
type QuotaUsage struct {
	Period string
	Used   int64
	Limit  int64
}

// SendQuotaAlert emails operators about upstream quota usage.
func (s *Service) SendQuotaAlert(ctx context.Context, u QuotaUsage) error {
	subject := fmt.Sprintf("Freight rate quota: %d of %d live lookups used", u.Used, u.Limit)
	var b strings.Builder
	fmt.Fprintf(&b, "Billing period: %s\n", u.Period)
	fmt.Fprintf(&b, "Live lookups used: %d\n", u.Used)
	fmt.Fprintf(&b, "Monthly limit: %d\n", u.Limit)
	if u.Limit > 0 && u.Used >= u.Limit {
		b.WriteString("\nThe quota is exhausted. Quotes are served from cache and estimates until the period ends.\n")
	}
	return s.SendEmail(ctx, subject, b.String())
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func htmlEscape(s string) string { return htmlReplacer.Replace(s) }
