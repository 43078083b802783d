package models

import (
	"fmt"
	"math"
	"time"
)

// ProviderID identifies one upstream market data vendor
type ProviderID string

const (
	ProviderFinnhub      ProviderID = "finnhub"
	ProviderAlphaVantage ProviderID = "alphavantage"
	ProviderPolygon      ProviderID = "polygon"
	ProviderTwelveData   ProviderID = "twelvedata"
	ProviderFMP          ProviderID = "fmp"
	ProviderMarketaux    ProviderID = "marketaux"
	ProviderTiingo       ProviderID = "tiingo"
)

// AllProviders lists every known vendor in a stable order
var AllProviders = []ProviderID{
	ProviderFinnhub,
	ProviderAlphaVantage,
	ProviderPolygon,
	ProviderTwelveData,
	ProviderFMP,
	ProviderMarketaux,
	ProviderTiingo,
}

// ParseProviderID validates a vendor name
func ParseProviderID(s string) (ProviderID, error) {
	for _, id := range AllProviders {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown provider: %q", s)
}

// Operation is a logical data request kind
type Operation string

const (
	OperationSearch Operation = "search"
	OperationNews   Operation = "news"
	OperationInfo   Operation = "info"
)

// AllOperations lists every operation in a stable order
var AllOperations = []Operation{OperationSearch, OperationNews, OperationInfo}

// LimitConfig holds the configured call allowance of a provider.
// A nil granularity is unbounded.
type LimitConfig struct {
	PerMinute *int `json:"per_minute,omitempty" yaml:"per_minute,omitempty"`
	PerDay    *int `json:"per_day,omitempty" yaml:"per_day,omitempty"`
	PerMonth  *int `json:"per_month,omitempty" yaml:"per_month,omitempty"`
}

// IsUnbounded reports whether no granularity is configured
func (l LimitConfig) IsUnbounded() bool {
	return l.PerMinute == nil && l.PerDay == nil && l.PerMonth == nil
}

// LimitUsage is the durable usage state of a provider.
// UsedCount is shared by every configured granularity.
type LimitUsage struct {
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	UsedCount  int        `json:"used_count" db:"used_count"`
}

// ProviderConfig is the externally supplied configuration of one provider
type ProviderConfig struct {
	ID         ProviderID
	Endpoint   string
	Credential string
	Limits     LimitConfig
	Timeout    time.Duration
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// PriorityTable ranks providers for one operation. Lower is preferred.
type PriorityTable map[ProviderID]int

// Rank returns the rank of id, or math.MaxInt when id is not listed
func (p PriorityTable) Rank(id ProviderID) int {
	if rank, ok := p[id]; ok {
		return rank
	}
	return math.MaxInt
}
