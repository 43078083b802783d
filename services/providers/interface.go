package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/market-gateway/models"
)

// Provider is a market data vendor adapter
type Provider interface {
	// ID returns the vendor identity
	ID() models.ProviderID
}

// SearchProvider looks up tickers by free text
type SearchProvider interface {
	Provider
	Search(ctx context.Context, query string) ([]models.Ticker, error)
}

// NewsProvider fetches recent news for a batch of tickers.
// Tickers the vendor knows nothing about are absent from the result.
type NewsProvider interface {
	Provider
	News(ctx context.Context, tickers []string) (map[string][]models.NewsItem, error)
}

// InfoProvider fetches the latest quote for a batch of tickers.
// Tickers the vendor knows nothing about are absent from the result.
type InfoProvider interface {
	Provider
	Info(ctx context.Context, tickers []string) (map[string]models.Info, error)
}

// Error codes shared by the adapters
const (
	CodeHTTP        = "HTTP_ERROR"
	CodeStatus      = "HTTP_STATUS"
	CodeDecode      = "DECODE_ERROR"
	CodeRateLimited = "RATE_LIMITED"
	CodeVendor      = "VENDOR_ERROR"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider models.ProviderID

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider models.ProviderID, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// IsRateLimited reports whether the vendor refused the call for quota reasons
func IsRateLimited(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code == CodeRateLimited
	}
	return false
}

// FetchEach calls fetch for every ticker in order and collects the found
// values. A per-ticker error only fails the batch when nothing was found.
func FetchEach[T any](ctx context.Context, tickers []string, fetch func(ctx context.Context, ticker string) (T, bool, error)) (map[string]T, error) {
	out := make(map[string]T, len(tickers))
	var lastErr error

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		value, ok, err := fetch(ctx, ticker)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			out[ticker] = value
		}
	}

	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}
