// Package fmp adapts the Financial Modeling Prep v3 API.
package fmp

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/providers"
)

const (
	publishedLayout = "2006-01-02 15:04:05"
	searchLimit     = "20"
	newsLimit       = "50"
)

// FMP reports news timestamps in US Eastern time
var newsLocation = loadLocation("America/New_York")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Provider implements search, news and info on Financial Modeling Prep
type Provider struct {
	cfg    models.ProviderConfig
	client *providers.HTTPClient
}

// New creates a Financial Modeling Prep adapter
func New(cfg models.ProviderConfig, client *providers.HTTPClient) *Provider {
	return &Provider{cfg: cfg, client: client}
}

// Build is the registry builder of this adapter
func Build(cfg models.ProviderConfig, client *providers.HTTPClient) providers.Provider {
	return New(cfg, client)
}

// ID implements providers.Provider
func (p *Provider) ID() models.ProviderID { return models.ProviderFMP }

type searchHit struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Search implements providers.SearchProvider
func (p *Provider) Search(ctx context.Context, query string) ([]models.Ticker, error) {
	var hits []searchHit
	if err := p.get(ctx, "/search", url.Values{"query": {query}, "limit": {searchLimit}}, &hits); err != nil {
		return nil, err
	}

	tickers := make([]models.Ticker, 0, len(hits))
	for _, h := range hits {
		if h.Symbol == "" {
			continue
		}
		tickers = append(tickers, models.Ticker{Symbol: h.Symbol, Company: h.Name})
	}
	return tickers, nil
}

type article struct {
	Symbol        string `json:"symbol"`
	PublishedDate string `json:"publishedDate"`
	Title         string `json:"title"`
	URL           string `json:"url"`
}

// News implements providers.NewsProvider with one call for the whole batch
func (p *Provider) News(ctx context.Context, tickers []string) (map[string][]models.NewsItem, error) {
	var articles []article
	query := url.Values{"tickers": {strings.Join(tickers, ",")}, "limit": {newsLimit}}
	if err := p.get(ctx, "/stock_news", query, &articles); err != nil {
		return nil, err
	}

	batch := providers.NewNewsBatch(tickers)
	for _, a := range articles {
		published, err := time.ParseInLocation(publishedLayout, a.PublishedDate, newsLocation)
		if err != nil {
			continue
		}
		batch.Add(a.Symbol, models.NewsItem{
			Title:       a.Title,
			Provider:    models.ProviderFMP,
			PublishedAt: published.UTC(),
			URL:         a.URL,
		})
	}
	return batch.Result(), nil
}

type quote struct {
	Symbol            string  `json:"symbol"`
	Price             float64 `json:"price"`
	Change            float64 `json:"change"`
	ChangesPercentage float64 `json:"changesPercentage"`
}

// Info implements providers.InfoProvider with one call for the whole batch
func (p *Provider) Info(ctx context.Context, tickers []string) (map[string]models.Info, error) {
	escaped := make([]string, len(tickers))
	for i, t := range tickers {
		escaped[i] = url.PathEscape(t)
	}

	var quotes []quote
	if err := p.get(ctx, "/quote/"+strings.Join(escaped, ","), url.Values{}, &quotes); err != nil {
		return nil, err
	}

	set := providers.NewTickerSet(tickers)
	out := make(map[string]models.Info, len(quotes))
	for _, q := range quotes {
		ticker, ok := set.Match(q.Symbol)
		if !ok {
			continue
		}
		out[ticker] = models.Info{
			MarketValue: q.Price,
			Delta:       q.Change,
			Percent:     q.ChangesPercentage,
			Currency:    "USD",
		}
	}
	return out, nil
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	query.Set("apikey", p.cfg.Credential)
	return p.client.GetJSON(ctx, p.ID(), p.cfg.Endpoint, path, query, nil, out)
}
