// Package upstream is the HTTP client for the freight rate provider: one
// endpoint issues short-lived bearer tokens, the other quotes a lane.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bher20/freightrates/internal/metrics"
	"github.com/shopspring/decimal"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 1 << 20

var (
	// ErrUnauthorized means the provider rejected the bearer token or the
	// platform credentials.
	ErrUnauthorized = errors.New("upstream: unauthorized")
	// ErrMalformedResponse means a 2xx response could not be decoded or
	// lacked a required field.
	ErrMalformedResponse = errors.New("upstream: malformed response")
	// ErrNoUsablePrice means the provider answered but the price was missing,
	// zero or negative.
	ErrNoUsablePrice = errors.New("upstream: no usable price")
)

// StatusError is returned for non-2xx responses other than 401/403.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: %s returned http %d: %s", e.Endpoint, e.Code, e.Body)
}

// RateQuery identifies one lane lookup.
type RateQuery struct {
	Origin      string
	Destination string
	Mode        string
	Date        time.Time
}

// Rate is the provider's answer for a lane.
type Rate struct {
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	TransitTime int             `json:"transitTime"`
	Carrier     string          `json:"carrier"`
}

// Client talks to the provider's auth and rate endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for baseURL. A nil httpClient uses
// DefaultHTTPClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type tokenRequest struct {
	PlatformID string `json:"platformId"`
	APIKey     string `json:"apiKey"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// IssueToken exchanges the platform id and API key for a bearer token.
func (c *Client) IssueToken(ctx context.Context, platformID, apiKey string) (token string, err error) {
	started := time.Now()
	defer func() { metrics.ObserveUpstream("auth", started, err) }()

	body, err := json.Marshal(tokenRequest{PlatformID: platformID, APIKey: apiKey})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("upstream: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	b, err := c.do(req, "auth")
	if err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(b, &tr); err != nil {
		return "", fmt.Errorf("%w: auth: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(tr.Token) == "" {
		return "", fmt.Errorf("%w: auth: missing token field", ErrMalformedResponse)
	}
	return tr.Token, nil
}

// QueryRate asks the provider for the price of a lane. A response without a
// positive price is reported as ErrNoUsablePrice.
func (c *Client) QueryRate(ctx context.Context, token string, q RateQuery) (rate *Rate, err error) {
	started := time.Now()
	defer func() { metrics.ObserveUpstream("rates", started, err) }()

	params := url.Values{}
	params.Set("origin", q.Origin)
	params.Set("destination", q.Destination)
	params.Set("mode", q.Mode)
	params.Set("date", q.Date.UTC().Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rates?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build rate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	b, err := c.do(req, "rates")
	if err != nil {
		return nil, err
	}

	var r Rate
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: rates: %v", ErrMalformedResponse, err)
	}
	if r.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrNoUsablePrice, r.Price.String())
	}
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		return nil, fmt.Errorf("%w: rates: missing currency", ErrMalformedResponse)
	}
	return &r, nil
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("upstream: %s: read body: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned http %d", ErrUnauthorized, endpoint, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: truncate(string(b), 256)}
	}
	return b, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
