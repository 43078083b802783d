package fmp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/providers"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return New(models.ProviderConfig{
		ID:         models.ProviderFMP,
		Endpoint:   server.URL,
		Credential: "test-key",
	}, providers.NewHTTPClient(time.Second))
}

func TestSearch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "berkshire", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`[{"symbol":"BRK-A","name":"Berkshire Hathaway Inc.","currency":"USD"}]`))
	})

	got, err := p.Search(context.Background(), "berkshire")
	require.NoError(t, err)
	assert.Equal(t, []models.Ticker{{Symbol: "BRK-A", Company: "Berkshire Hathaway Inc."}}, got)
}

func TestNews(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock_news", r.URL.Path)
		assert.Equal(t, "AAPL,TSLA", r.URL.Query().Get("tickers"))
		_, _ = w.Write([]byte(`[
			{"symbol":"TSLA","publishedDate":"2024-03-10 08:00:00","title":"Tesla deliveries","url":"https://f/1"},
			{"symbol":"GOOG","publishedDate":"2024-03-10 08:00:00","title":"Other","url":"https://f/2"}
		]`))
	})

	got, err := p.News(context.Background(), []string{"AAPL", "TSLA"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got["TSLA"], 1)
	assert.Equal(t, "Tesla deliveries", got["TSLA"][0].Title)
	assert.Equal(t, time.UTC, got["TSLA"][0].PublishedAt.Location())
}

func TestInfo(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote/AAPL,MSFT", r.URL.Path)
		_, _ = w.Write([]byte(`[{"symbol":"AAPL","price":172.5,"change":-2.5,"changesPercentage":-1.4286}]`))
	})

	got, err := p.Info(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Info{
		"AAPL": {MarketValue: 172.5, Delta: -2.5, Percent: -1.4286, Currency: "USD"},
	}, got)
}

func TestInfo_ErrorObjectIsDecodeError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Error Message":"Invalid API KEY."}`))
	})

	_, err := p.Info(context.Background(), []string{"AAPL"})
	var provErr *providers.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, providers.CodeDecode, provErr.Code)
}
