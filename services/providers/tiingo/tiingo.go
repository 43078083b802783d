// Package tiingo adapts the Tiingo news API.
package tiingo

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/providers"
)

const newsLimit = "50"

// Provider implements news on Tiingo
type Provider struct {
	cfg    models.ProviderConfig
	client *providers.HTTPClient
}

// New creates a Tiingo adapter
func New(cfg models.ProviderConfig, client *providers.HTTPClient) *Provider {
	return &Provider{cfg: cfg, client: client}
}

// Build is the registry builder of this adapter
func Build(cfg models.ProviderConfig, client *providers.HTTPClient) providers.Provider {
	return New(cfg, client)
}

// ID implements providers.Provider
func (p *Provider) ID() models.ProviderID { return models.ProviderTiingo }

type article struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	PublishedDate string   `json:"publishedDate"`
	Tickers       []string `json:"tickers"`
}

// News implements providers.NewsProvider with one call for the whole batch.
// Tiingo reports tickers in lower case.
func (p *Provider) News(ctx context.Context, tickers []string) (map[string][]models.NewsItem, error) {
	lowered := make([]string, len(tickers))
	for i, t := range tickers {
		lowered[i] = strings.ToLower(t)
	}
	query := url.Values{"tickers": {strings.Join(lowered, ",")}, "limit": {newsLimit}}
	headers := map[string]string{"Authorization": "Token " + p.cfg.Credential}

	var articles []article
	if err := p.client.GetJSON(ctx, p.ID(), p.cfg.Endpoint, "/tiingo/news", query, headers, &articles); err != nil {
		return nil, err
	}

	batch := providers.NewNewsBatch(tickers)
	for _, a := range articles {
		published, err := time.Parse(time.RFC3339Nano, a.PublishedDate)
		if err != nil {
			continue
		}
		item := models.NewsItem{
			Title:       a.Title,
			Provider:    models.ProviderTiingo,
			PublishedAt: published.UTC(),
			URL:         a.URL,
		}
		for _, symbol := range a.Tickers {
			batch.Add(symbol, item)
		}
	}
	return batch.Result(), nil
}
