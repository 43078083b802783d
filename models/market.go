package models

import "time"

// Ticker is a symbol search hit
type Ticker struct {
	Symbol  string `json:"symbol"`
	Company string `json:"company"`
}

// NewsItem is a single headline about a symbol
type NewsItem struct {
	Title       string     `json:"title"`
	Provider    ProviderID `json:"provider"`
	PublishedAt time.Time  `json:"published_at"`
	URL         string     `json:"url"`
}

// Info is the latest quote summary of a symbol
type Info struct {
	MarketValue float64 `json:"market_value"`
	Delta       float64 `json:"delta"`
	Percent     float64 `json:"percent"`
	Currency    string  `json:"currency"`
}
