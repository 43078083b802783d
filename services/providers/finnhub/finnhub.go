// Package finnhub adapts the Finnhub REST API.
package finnhub

import (
	"context"
	"net/url"
	"time"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/providers"
)

// newsLookback is how far back company news is requested
const newsLookback = 7 * 24 * time.Hour

// Provider implements search, news and info on Finnhub
type Provider struct {
	cfg    models.ProviderConfig
	client *providers.HTTPClient
	now    func() time.Time
}

// New creates a Finnhub adapter
func New(cfg models.ProviderConfig, client *providers.HTTPClient) *Provider {
	return &Provider{cfg: cfg, client: client, now: time.Now}
}

// Build is the registry builder of this adapter
func Build(cfg models.ProviderConfig, client *providers.HTTPClient) providers.Provider {
	return New(cfg, client)
}

// ID implements providers.Provider
func (p *Provider) ID() models.ProviderID { return models.ProviderFinnhub }

type searchResponse struct {
	Result []struct {
		Description string `json:"description"`
		Symbol      string `json:"symbol"`
	} `json:"result"`
}

// Search implements providers.SearchProvider
func (p *Provider) Search(ctx context.Context, query string) ([]models.Ticker, error) {
	var resp searchResponse
	if err := p.get(ctx, "/search", url.Values{"q": {query}}, &resp); err != nil {
		return nil, err
	}

	tickers := make([]models.Ticker, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.Symbol == "" {
			continue
		}
		tickers = append(tickers, models.Ticker{Symbol: r.Symbol, Company: r.Description})
	}
	return tickers, nil
}

type newsArticle struct {
	Headline string `json:"headline"`
	Datetime int64  `json:"datetime"`
	URL      string `json:"url"`
}

// News implements providers.NewsProvider. Finnhub serves one symbol per call.
func (p *Provider) News(ctx context.Context, tickers []string) (map[string][]models.NewsItem, error) {
	now := p.now().UTC()
	from := now.Add(-newsLookback).Format(time.DateOnly)
	to := now.Format(time.DateOnly)

	return providers.FetchEach(ctx, tickers, func(ctx context.Context, ticker string) ([]models.NewsItem, bool, error) {
		var articles []newsArticle
		query := url.Values{"symbol": {ticker}, "from": {from}, "to": {to}}
		if err := p.get(ctx, "/company-news", query, &articles); err != nil {
			return nil, false, err
		}

		items := make([]models.NewsItem, 0, len(articles))
		for _, a := range articles {
			if a.Headline == "" {
				continue
			}
			items = append(items, models.NewsItem{
				Title:       a.Headline,
				Provider:    models.ProviderFinnhub,
				PublishedAt: time.Unix(a.Datetime, 0).UTC(),
				URL:         a.URL,
			})
		}
		return items, len(items) > 0, nil
	})
}

type quoteResponse struct {
	Current       float64  `json:"c"`
	Change        *float64 `json:"d"`
	PercentChange *float64 `json:"dp"`
}

// Info implements providers.InfoProvider
func (p *Provider) Info(ctx context.Context, tickers []string) (map[string]models.Info, error) {
	return providers.FetchEach(ctx, tickers, func(ctx context.Context, ticker string) (models.Info, bool, error) {
		var quote quoteResponse
		if err := p.get(ctx, "/quote", url.Values{"symbol": {ticker}}, &quote); err != nil {
			return models.Info{}, false, err
		}
		// unknown symbols come back as all zeros with null deltas
		if quote.Current == 0 && quote.Change == nil {
			return models.Info{}, false, nil
		}

		info := models.Info{MarketValue: quote.Current, Currency: "USD"}
		if quote.Change != nil {
			info.Delta = *quote.Change
		}
		if quote.PercentChange != nil {
			info.Percent = *quote.PercentChange
		}
		return info, true, nil
	})
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	headers := map[string]string{"X-Finnhub-Token": p.cfg.Credential}
	return p.client.GetJSON(ctx, p.ID(), p.cfg.Endpoint, path, query, headers, out)
}
