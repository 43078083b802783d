// Package alphavantage adapts the Alpha Vantage query API.
package alphavantage

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/providers"
)

const (
	publishedLayout = "20060102T150405"
	newsLimit       = "50"
)

// Provider implements search, news and info on Alpha Vantage
type Provider struct {
	cfg    models.ProviderConfig
	client *providers.HTTPClient
}

// New creates an Alpha Vantage adapter
func New(cfg models.ProviderConfig, client *providers.HTTPClient) *Provider {
	return &Provider{cfg: cfg, client: client}
}

// Build is the registry builder of this adapter
func Build(cfg models.ProviderConfig, client *providers.HTTPClient) providers.Provider {
	return New(cfg, client)
}

// ID implements providers.Provider
func (p *Provider) ID() models.ProviderID { return models.ProviderAlphaVantage }

// envelope carries the soft errors Alpha Vantage reports with status 200
type envelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (e envelope) err(id models.ProviderID) error {
	switch {
	case e.Note != "":
		return providers.NewProviderError(id, providers.CodeRateLimited, e.Note, 0, nil)
	case e.Information != "":
		return providers.NewProviderError(id, providers.CodeRateLimited, e.Information, 0, nil)
	case e.ErrorMessage != "":
		return providers.NewProviderError(id, providers.CodeVendor, e.ErrorMessage, 0, nil)
	}
	return nil
}

type searchResponse struct {
	envelope
	BestMatches []struct {
		Symbol string `json:"1. symbol"`
		Name   string `json:"2. name"`
	} `json:"bestMatches"`
}

// Search implements providers.SearchProvider
func (p *Provider) Search(ctx context.Context, query string) ([]models.Ticker, error) {
	var resp searchResponse
	if err := p.query(ctx, "SYMBOL_SEARCH", url.Values{"keywords": {query}}, &resp, &resp.envelope); err != nil {
		return nil, err
	}

	tickers := make([]models.Ticker, 0, len(resp.BestMatches))
	for _, m := range resp.BestMatches {
		if m.Symbol == "" {
			continue
		}
		tickers = append(tickers, models.Ticker{Symbol: m.Symbol, Company: m.Name})
	}
	return tickers, nil
}

type newsResponse struct {
	envelope
	Feed []struct {
		Title           string `json:"title"`
		URL             string `json:"url"`
		TimePublished   string `json:"time_published"`
		TickerSentiment []struct {
			Ticker string `json:"ticker"`
		} `json:"ticker_sentiment"`
	} `json:"feed"`
}

// News implements providers.NewsProvider with a single NEWS_SENTIMENT call
func (p *Provider) News(ctx context.Context, tickers []string) (map[string][]models.NewsItem, error) {
	var resp newsResponse
	query := url.Values{"tickers": {strings.Join(tickers, ",")}, "limit": {newsLimit}}
	if err := p.query(ctx, "NEWS_SENTIMENT", query, &resp, &resp.envelope); err != nil {
		return nil, err
	}

	batch := providers.NewNewsBatch(tickers)
	for _, article := range resp.Feed {
		published, err := time.Parse(publishedLayout, article.TimePublished)
		if err != nil {
			continue
		}
		item := models.NewsItem{
			Title:       article.Title,
			Provider:    models.ProviderAlphaVantage,
			PublishedAt: published.UTC(),
			URL:         article.URL,
		}
		for _, s := range article.TickerSentiment {
			batch.Add(s.Ticker, item)
		}
	}
	return batch.Result(), nil
}

type quoteResponse struct {
	envelope
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

// Info implements providers.InfoProvider. GLOBAL_QUOTE serves one symbol per call.
func (p *Provider) Info(ctx context.Context, tickers []string) (map[string]models.Info, error) {
	return providers.FetchEach(ctx, tickers, func(ctx context.Context, ticker string) (models.Info, bool, error) {
		var resp quoteResponse
		if err := p.query(ctx, "GLOBAL_QUOTE", url.Values{"symbol": {ticker}}, &resp, &resp.envelope); err != nil {
			return models.Info{}, false, err
		}

		price, ok := providers.ParseNumber(resp.GlobalQuote.Price)
		if !ok || resp.GlobalQuote.Symbol == "" {
			return models.Info{}, false, nil
		}
		change, _ := providers.ParseNumber(resp.GlobalQuote.Change)
		percent, _ := providers.ParseNumber(resp.GlobalQuote.ChangePercent)
		return models.Info{MarketValue: price, Delta: change, Percent: percent, Currency: "USD"}, true, nil
	})
}

func (p *Provider) query(ctx context.Context, function string, query url.Values, out interface{}, env *envelope) error {
	query.Set("function", function)
	query.Set("apikey", p.cfg.Credential)
	if err := p.client.GetJSON(ctx, p.ID(), p.cfg.Endpoint, "/query", query, nil, out); err != nil {
		return err
	}
	return env.err(p.ID())
}
