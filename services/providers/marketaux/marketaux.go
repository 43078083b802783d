// Package marketaux adapts the Marketaux news API.
package marketaux

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/providers"
)

// Provider implements news on Marketaux
type Provider struct {
	cfg    models.ProviderConfig
	client *providers.HTTPClient
}

// New creates a Marketaux adapter
func New(cfg models.ProviderConfig, client *providers.HTTPClient) *Provider {
	return &Provider{cfg: cfg, client: client}
}

// Build is the registry builder of this adapter
func Build(cfg models.ProviderConfig, client *providers.HTTPClient) providers.Provider {
	return New(cfg, client)
}

// ID implements providers.Provider
func (p *Provider) ID() models.ProviderID { return models.ProviderMarketaux }

type newsResponse struct {
	Data []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		PublishedAt string `json:"published_at"`
		Entities    []struct {
			Symbol string `json:"symbol"`
		} `json:"entities"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// News implements providers.NewsProvider with one call for the whole batch
func (p *Provider) News(ctx context.Context, tickers []string) (map[string][]models.NewsItem, error) {
	query := url.Values{
		"symbols":         {strings.Join(tickers, ",")},
		"filter_entities": {"true"},
		"language":        {"en"},
		"api_token":       {p.cfg.Credential},
	}

	var resp newsResponse
	if err := p.client.GetJSON(ctx, p.ID(), p.cfg.Endpoint, "/news/all", query, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		code := providers.CodeVendor
		if resp.Error.Code == "usage_limit_reached" || resp.Error.Code == "rate_limit_reached" {
			code = providers.CodeRateLimited
		}
		return nil, providers.NewProviderError(p.ID(), code, resp.Error.Message, 0, nil)
	}

	batch := providers.NewNewsBatch(tickers)
	for _, article := range resp.Data {
		published, err := time.Parse(time.RFC3339Nano, article.PublishedAt)
		if err != nil {
			continue
		}
		item := models.NewsItem{
			Title:       article.Title,
			Provider:    models.ProviderMarketaux,
			PublishedAt: published.UTC(),
			URL:         article.URL,
		}
		for _, entity := range article.Entities {
			batch.Add(entity.Symbol, item)
		}
	}
	return batch.Result(), nil
}
