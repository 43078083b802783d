package handlers

import (
	"sort"
	"time"

	"github.com/upb/market-gateway/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NewsDateLayout formats news timestamps for display, in UTC
const NewsDateLayout = "2006-01-02 15:04"

// DefaultNewsLimit and MaxNewsLimit bound the per-symbol news list
const (
	DefaultNewsLimit = 10
	MaxNewsLimit     = 100
)

var numberPrinter = message.NewPrinter(language.English)

// TickerResponse is one search hit
type TickerResponse struct {
	Ticker  string `json:"ticker"`
	Company string `json:"company"`
}

// NewsResponse is one headline as shown to clients
type NewsResponse struct {
	Title             string `json:"title"`
	Provider          string `json:"provider"`
	DateTimeFormatted string `json:"dateTimeFormatted"`
	Timestamp         int64  `json:"timestamp"`
	URL               string `json:"url"`
}

// InfoResponse is a formatted quote summary
type InfoResponse struct {
	MarketValueFormatted string `json:"marketValueFormatted"`
	DeltaFormatted       string `json:"deltaFormatted"`
	PercentFormatted     string `json:"percentFormatted"`
	Currency             string `json:"currency"`
}

// TTLResponse advertises client-side cache lifetimes
type TTLResponse struct {
	SearchTTLSeconds int64 `json:"searchTtlSeconds"`
	NewsTTLSeconds   int64 `json:"newsTtlSeconds"`
	InfoTTLSeconds   int64 `json:"infoTtlSeconds"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func toTickerResponses(tickers []models.Ticker) []TickerResponse {
	out := make([]TickerResponse, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, TickerResponse{Ticker: t.Symbol, Company: t.Company})
	}
	return out
}

// toNewsResponses sorts newest first and keeps at most limit items
func toNewsResponses(items []models.NewsItem, limit int) []NewsResponse {
	sorted := make([]models.NewsItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]NewsResponse, 0, len(sorted))
	for _, item := range sorted {
		out = append(out, NewsResponse{
			Title:             item.Title,
			Provider:          string(item.Provider),
			DateTimeFormatted: item.PublishedAt.UTC().Format(NewsDateLayout),
			Timestamp:         item.PublishedAt.UnixMilli(),
			URL:               item.URL,
		})
	}
	return out
}

func toInfoResponse(info models.Info) InfoResponse {
	return InfoResponse{
		MarketValueFormatted: numberPrinter.Sprintf("%.2f", info.MarketValue),
		DeltaFormatted:       numberPrinter.Sprintf("%+.2f", info.Delta),
		PercentFormatted:     numberPrinter.Sprintf("%+.2f%%", info.Percent),
		Currency:             info.Currency,
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
