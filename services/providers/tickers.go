package providers

import (
	"strconv"
	"strings"

	"github.com/upb/market-gateway/models"
)

// TickerSet matches vendor symbols back to the requested tickers, ignoring case
type TickerSet map[string]string

// NewTickerSet indexes tickers by their upper-cased form
func NewTickerSet(tickers []string) TickerSet {
	set := make(TickerSet, len(tickers))
	for _, t := range tickers {
		set[strings.ToUpper(t)] = t
	}
	return set
}

// Match returns the requested ticker a vendor symbol refers to
func (s TickerSet) Match(symbol string) (string, bool) {
	t, ok := s[strings.ToUpper(strings.TrimSpace(symbol))]
	return t, ok
}

// NewsBatch groups news items per requested ticker, dropping duplicate URLs per ticker
type NewsBatch struct {
	set   TickerSet
	items map[string][]models.NewsItem
	seen  map[string]map[string]bool
}

// NewNewsBatch creates a batch collecting news for tickers
func NewNewsBatch(tickers []string) *NewsBatch {
	return &NewsBatch{
		set:   NewTickerSet(tickers),
		items: make(map[string][]models.NewsItem),
		seen:  make(map[string]map[string]bool),
	}
}

// Add files item under symbol when symbol was requested
func (b *NewsBatch) Add(symbol string, item models.NewsItem) {
	ticker, ok := b.set.Match(symbol)
	if !ok || item.Title == "" {
		return
	}
	if b.seen[ticker] == nil {
		b.seen[ticker] = make(map[string]bool)
	}
	if item.URL != "" {
		if b.seen[ticker][item.URL] {
			return
		}
		b.seen[ticker][item.URL] = true
	}
	b.items[ticker] = append(b.items[ticker], item)
}

// Result returns the collected items
func (b *NewsBatch) Result() map[string][]models.NewsItem {
	return b.items
}

// ParseNumber parses vendor numbers sent as strings, such as "1.25%"
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
