package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services"
	"github.com/upb/market-gateway/utils"
	"go.uber.org/zap"
)

// StatsService exposes monthly provider statistics
type StatsService interface {
	CurrentMonth() string
	Monthly(ctx context.Context, month string) (models.MonthlyStats, error)
}

// StatsHandler handles provider statistics requests
type StatsHandler struct {
	service StatsService
	logger  *zap.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(service StatsService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCurrent handles GET /api/v1/stats
func (h *StatsHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.CurrentMonth())
}

// HandleMonth handles GET /api/v1/stats/{month}
func (h *StatsHandler) HandleMonth(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")
	if err := models.ValidateMonth(month); err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, "month must be formatted as yyyy-MM", err).
			WithDetail("month", month), h.logger)
		return
	}
	h.respond(w, r, month)
}

func (h *StatsHandler) respond(w http.ResponseWriter, r *http.Request, month string) {
	stats, err := h.service.Monthly(r.Context(), month)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if err := utils.WriteJSON(w, http.StatusOK, stats); err != nil {
		h.logger.Error("failed to write stats response", zap.Error(err))
	}
}
