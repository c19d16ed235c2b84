package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPChecker asks a subscription service:
//
//	GET {base}/users/{id}/entitlement -> {"active": true}
//
// A 404 means the user is unknown and therefore not entitled.
type HTTPChecker struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPChecker(baseURL string, httpClient *http.Client) *HTTPChecker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPChecker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type entitlementResponse struct {
	Active bool `json:"active"`
}

func (c *HTTPChecker) HasEntitlement(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	u := c.baseURL + "/users/" + url.PathEscape(userID) + "/entitlement"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("entitlement: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return false, fmt.Errorf("entitlement: http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var er entitlementResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return false, fmt.Errorf("entitlement: decode: %w", err)
	}
	return er.Active, nil
}
