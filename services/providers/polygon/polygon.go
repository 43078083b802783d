// Package polygon adapts the Polygon.io REST API.
package polygon

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/providers"
)

const (
	searchLimit = "20"
	newsLimit   = "20"
)

// Provider implements search, news and info on Polygon
type Provider struct {
	cfg    models.ProviderConfig
	client *providers.HTTPClient
}

// New creates a Polygon adapter
func New(cfg models.ProviderConfig, client *providers.HTTPClient) *Provider {
	return &Provider{cfg: cfg, client: client}
}

// Build is the registry builder of this adapter
func Build(cfg models.ProviderConfig, client *providers.HTTPClient) providers.Provider {
	return New(cfg, client)
}

// ID implements providers.Provider
func (p *Provider) ID() models.ProviderID { return models.ProviderPolygon }

type searchResponse struct {
	Results []struct {
		Ticker string `json:"ticker"`
		Name   string `json:"name"`
	} `json:"results"`
}

// Search implements providers.SearchProvider
func (p *Provider) Search(ctx context.Context, query string) ([]models.Ticker, error) {
	var resp searchResponse
	params := url.Values{"search": {query}, "active": {"true"}, "limit": {searchLimit}}
	if err := p.get(ctx, "/v3/reference/tickers", params, &resp); err != nil {
		return nil, err
	}

	tickers := make([]models.Ticker, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Ticker == "" {
			continue
		}
		tickers = append(tickers, models.Ticker{Symbol: r.Ticker, Company: r.Name})
	}
	return tickers, nil
}

type newsResponse struct {
	Results []struct {
		Title        string `json:"title"`
		ArticleURL   string `json:"article_url"`
		PublishedUTC string `json:"published_utc"`
	} `json:"results"`
}

// News implements providers.NewsProvider, one ticker per call
func (p *Provider) News(ctx context.Context, tickers []string) (map[string][]models.NewsItem, error) {
	return providers.FetchEach(ctx, tickers, func(ctx context.Context, ticker string) ([]models.NewsItem, bool, error) {
		var resp newsResponse
		params := url.Values{"ticker": {ticker}, "limit": {newsLimit}, "order": {"desc"}, "sort": {"published_utc"}}
		if err := p.get(ctx, "/v2/reference/news", params, &resp); err != nil {
			return nil, false, err
		}

		items := make([]models.NewsItem, 0, len(resp.Results))
		for _, r := range resp.Results {
			published, err := time.Parse(time.RFC3339, r.PublishedUTC)
			if err != nil || r.Title == "" {
				continue
			}
			items = append(items, models.NewsItem{
				Title:       r.Title,
				Provider:    models.ProviderPolygon,
				PublishedAt: published.UTC(),
				URL:         r.ArticleURL,
			})
		}
		return items, len(items) > 0, nil
	})
}

type prevCloseResponse struct {
	ResultsCount int `json:"resultsCount"`
	Results      []struct {
		Open  float64 `json:"o"`
		Close float64 `json:"c"`
	} `json:"results"`
}

// Info implements providers.InfoProvider from the previous day aggregate bar
func (p *Provider) Info(ctx context.Context, tickers []string) (map[string]models.Info, error) {
	return providers.FetchEach(ctx, tickers, func(ctx context.Context, ticker string) (models.Info, bool, error) {
		var resp prevCloseResponse
		path := "/v2/aggs/ticker/" + url.PathEscape(strings.ToUpper(ticker)) + "/prev"
		if err := p.get(ctx, path, url.Values{"adjusted": {"true"}}, &resp); err != nil {
			return models.Info{}, false, err
		}
		if len(resp.Results) == 0 {
			return models.Info{}, false, nil
		}

		bar := resp.Results[0]
		info := models.Info{MarketValue: bar.Close, Delta: bar.Close - bar.Open, Currency: "USD"}
		if bar.Open != 0 {
			info.Percent = info.Delta / bar.Open * 100
		}
		return info, true, nil
	})
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.Credential}
	return p.client.GetJSON(ctx, p.ID(), p.cfg.Endpoint, path, query, headers, out)
}
