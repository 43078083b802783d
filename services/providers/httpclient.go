package providers

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/upb/market-gateway/models"
)

// DefaultTimeout bounds a whole vendor call when the provider has none configured
const DefaultTimeout = 20 * time.Second

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 512

// HTTPClient is a small wrapper around http.Client with bounded timeouts
type HTTPClient struct {
	HTTP      *http.Client
	UserAgent string
}

// NewHTTPClient creates a client whose connect, TLS and header waits are
// bounded independently of the overall timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	return &HTTPClient{
		HTTP:      &http.Client{Timeout: timeout, Transport: transport},
		UserAgent: "market-gateway/1.0",
	}
}

// GetJSON performs a GET against base+path and decodes a 2xx JSON body into out
func (c *HTTPClient) GetJSON(ctx context.Context, provider models.ProviderID, base, path string, query url.Values, headers map[string]string, out interface{}) error {
	endpoint := base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return NewProviderError(provider, CodeHTTP, "failed to create request", 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return NewProviderError(provider, CodeHTTP, "request failed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		code := CodeStatus
		if resp.StatusCode == http.StatusTooManyRequests {
			code = CodeRateLimited
		}
		return NewProviderError(provider, code, string(body), resp.StatusCode, nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewProviderError(provider, CodeDecode, "failed to decode response", resp.StatusCode, err)
	}
	return nil
}
