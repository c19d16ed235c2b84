package upstream

import (
	"crypto/tls"
	"net/http"
	"time"
)

const (
	httpMaxIdleConns    = 10
	httpIdleConnTimeout = 30 * time.Second
)

// NewHTTPClient creates an HTTP client with optional TLS configuration.
// Set skipTLSVerify to true for provider sandboxes with misconfigured
// certificate chains.
func NewHTTPClient(timeout time.Duration, skipTLSVerify bool) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}

	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// DefaultHTTPClient returns a client with the default 10s provider timeout.
func DefaultHTTPClient() *http.Client {
	return NewHTTPClient(DefaultTimeout, false)
}
