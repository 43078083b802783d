package handlers

import (
	"net/http"

	"github.com/upb/market-gateway/config"
	"github.com/upb/market-gateway/utils"
	"go.uber.org/zap"
)

// TTLHandler advertises client cache lifetimes
type TTLHandler struct {
	ttl    config.ClientTTLConfig
	logger *zap.Logger
}

// NewTTLHandler creates a new TTLHandler
func NewTTLHandler(ttl config.ClientTTLConfig, logger *zap.Logger) *TTLHandler {
	return &TTLHandler{ttl: ttl, logger: logger}
}

// HandleClientTTL handles GET /api/v1/ttl/client
func (h *TTLHandler) HandleClientTTL(w http.ResponseWriter, r *http.Request) {
	response := TTLResponse{
		SearchTTLSeconds: seconds(h.ttl.Search),
		NewsTTLSeconds:   seconds(h.ttl.News),
		InfoTTLSeconds:   seconds(h.ttl.Info),
	}
	if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write ttl response", zap.Error(err))
	}
}
