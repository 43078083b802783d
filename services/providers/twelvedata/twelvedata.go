// Package twelvedata adapts the Twelve Data REST API.
package twelvedata

import (
	"context"
	"net/http"
	"net/url"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/providers"
)

// Provider implements search and info on Twelve Data
type Provider struct {
	cfg    models.ProviderConfig
	client *providers.HTTPClient
}

// New creates a Twelve Data adapter
func New(cfg models.ProviderConfig, client *providers.HTTPClient) *Provider {
	return &Provider{cfg: cfg, client: client}
}

// Build is the registry builder of this adapter
func Build(cfg models.ProviderConfig, client *providers.HTTPClient) providers.Provider {
	return New(cfg, client)
}

// ID implements providers.Provider
func (p *Provider) ID() models.ProviderID { return models.ProviderTwelveData }

// status is the error envelope Twelve Data returns with HTTP 200
type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (s status) failed() bool {
	return s.Status == "error"
}

func (s status) err(id models.ProviderID) error {
	code := providers.CodeVendor
	if s.Code == http.StatusTooManyRequests {
		code = providers.CodeRateLimited
	}
	return providers.NewProviderError(id, code, s.Message, s.Code, nil)
}

type searchResponse struct {
	status
	Data []struct {
		Symbol         string `json:"symbol"`
		InstrumentName string `json:"instrument_name"`
	} `json:"data"`
}

// Search implements providers.SearchProvider
func (p *Provider) Search(ctx context.Context, query string) ([]models.Ticker, error) {
	var resp searchResponse
	if err := p.get(ctx, "/symbol_search", url.Values{"symbol": {query}}, &resp); err != nil {
		return nil, err
	}
	if resp.failed() {
		return nil, resp.err(p.ID())
	}

	tickers := make([]models.Ticker, 0, len(resp.Data))
	seen := make(map[string]bool, len(resp.Data))
	for _, d := range resp.Data {
		// the same symbol is listed once per exchange
		if d.Symbol == "" || seen[d.Symbol] {
			continue
		}
		seen[d.Symbol] = true
		tickers = append(tickers, models.Ticker{Symbol: d.Symbol, Company: d.InstrumentName})
	}
	return tickers, nil
}

type quoteResponse struct {
	status
	Symbol        string `json:"symbol"`
	Currency      string `json:"currency"`
	Close         string `json:"close"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`
}

// Info implements providers.InfoProvider, one symbol per call
func (p *Provider) Info(ctx context.Context, tickers []string) (map[string]models.Info, error) {
	return providers.FetchEach(ctx, tickers, func(ctx context.Context, ticker string) (models.Info, bool, error) {
		var resp quoteResponse
		if err := p.get(ctx, "/quote", url.Values{"symbol": {ticker}}, &resp); err != nil {
			return models.Info{}, false, err
		}
		if resp.failed() {
			if resp.Code == http.StatusNotFound || resp.Code == http.StatusBadRequest {
				return models.Info{}, false, nil
			}
			return models.Info{}, false, resp.err(p.ID())
		}

		price, ok := providers.ParseNumber(resp.Close)
		if !ok {
			return models.Info{}, false, nil
		}
		change, _ := providers.ParseNumber(resp.Change)
		percent, _ := providers.ParseNumber(resp.PercentChange)
		currency := resp.Currency
		if currency == "" {
			currency = "USD"
		}
		return models.Info{MarketValue: price, Delta: change, Percent: percent, Currency: currency}, true, nil
	})
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	headers := map[string]string{"Authorization": "apikey " + p.cfg.Credential}
	return p.client.GetJSON(ctx, p.ID(), p.cfg.Endpoint, path, query, headers, out)
}
