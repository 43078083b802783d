package handlers

import (
	"context"
	"net/http"

	"github.com/upb/market-gateway/middleware"
	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/utils"
	"go.uber.org/zap"
)

// MarketService defines the aggregation operations behind the ticker endpoints
type MarketService interface {
	Search(ctx context.Context, query string) ([]models.Ticker, error)
	News(ctx context.Context, tickers []string) (map[string][]models.NewsItem, error)
	Info(ctx context.Context, tickers []string) (map[string]models.Info, error)
}

// TickerHandler handles ticker search, news and info requests
type TickerHandler struct {
	service MarketService
	logger  *zap.Logger
}

// NewTickerHandler creates a new TickerHandler
func NewTickerHandler(service MarketService, logger *zap.Logger) *TickerHandler {
	return &TickerHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSearch handles GET /api/v1/tickers/search?query=
func (h *TickerHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := utils.NormalizeQuery(r.URL.Query().Get("query"))
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	tickers, err := h.service.Search(ctx, query)
	if err != nil {
		h.logger.Debug("search failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("query", query),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.writeOK(w, toTickerResponses(tickers))
}

// HandleNews handles POST /api/v1/tickers/news[?limit=]
func (h *TickerHandler) HandleNews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := utils.ParseIntParam(r.URL.Query().Get("limit"), "limit", DefaultNewsLimit, 1, MaxNewsLimit)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	tickers, ok := h.decodeTickers(w, r)
	if !ok {
		return
	}

	news, err := h.service.News(ctx, tickers)
	if err != nil {
		h.logger.Debug("news failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Strings("tickers", tickers),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	response := make(map[string][]NewsResponse, len(news))
	for symbol, items := range news {
		response[symbol] = toNewsResponses(items, limit)
	}
	h.writeOK(w, response)
}

// HandleInfo handles POST /api/v1/tickers/info
func (h *TickerHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tickers, ok := h.decodeTickers(w, r)
	if !ok {
		return
	}

	infos, err := h.service.Info(ctx, tickers)
	if err != nil {
		h.logger.Debug("info failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Strings("tickers", tickers),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	response := make(map[string]InfoResponse, len(infos))
	for symbol, info := range infos {
		response[symbol] = toInfoResponse(info)
	}
	h.writeOK(w, response)
}

// decodeTickers reads and normalizes the JSON array body of batch endpoints
func (h *TickerHandler) decodeTickers(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var raw []string
	if err := utils.DecodeJSONBody(w, r, &raw); err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}

	tickers, err := utils.NormalizeTickers(raw)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}
	return tickers, true
}

func (h *TickerHandler) writeOK(w http.ResponseWriter, data interface{}) {
	if err := utils.WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
