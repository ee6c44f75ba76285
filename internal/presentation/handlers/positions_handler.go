package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/application/services"
)

// PositionsHandler handles HTTP requests for position, price and ledger endpoints
type PositionsHandler struct {
	service *services.PositionService
	logger  *zap.Logger
}

// NewPositionsHandler creates a new positions handler
func NewPositionsHandler(service *services.PositionService, logger *zap.Logger) *PositionsHandler {
	return &PositionsHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the position routes on a chi router
func (h *PositionsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/wallets", func(r chi.Router) {
		r.Get("/{address}/positions", h.GetWalletPositions)
		r.Get("/{address}/ledger", h.GetLedger)
	})
	r.Get("/positions", h.GetPositions)
	r.Get("/prices", h.GetPrices)
}

// GetWalletPositions handles GET /api/v1/wallets/{address}/positions
func (h *PositionsHandler) GetWalletPositions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if !isValidAddress(address) {
		h.respondError(w, http.StatusBadRequest, "Invalid wallet address format")
		return
	}

	h.positions(w, r, []string{address})
}

// GetPositions handles GET /api/v1/positions?addresses=0x..,0x..
func (h *PositionsHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("addresses")
	if raw == "" {
		h.respondError(w, http.StatusBadRequest, "Query parameter 'addresses' is required")
		return
	}

	addresses := strings.Split(raw, ",")
	for _, address := range addresses {
		address = strings.TrimSpace(address)
		if address != "" && !isValidAddress(address) {
			h.respondError(w, http.StatusBadRequest, "Invalid wallet address format: "+address)
			return
		}
	}

	h.positions(w, r, addresses)
}

func (h *PositionsHandler) positions(w http.ResponseWriter, r *http.Request, addresses []string) {
	response, err := h.service.GetPositions(r.Context(), addresses)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoAddresses):
			h.respondError(w, http.StatusBadRequest, "At least one address is required")
		case errors.Is(err, services.ErrTooManyAddresses):
			h.respondError(w, http.StatusBadRequest, "Too many addresses")
		default:
			h.logger.Error("Failed to get positions",
				zap.Error(err),
				zap.Strings("addresses", addresses),
			)
			h.respondError(w, http.StatusInternalServerError, "Failed to get positions")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// GetPrices handles GET /api/v1/prices
func (h *PositionsHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.GetPrices(r.Context()))
}

// GetLedger handles GET /api/v1/wallets/{address}/ledger
func (h *PositionsHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if !isValidAddress(address) {
		h.respondError(w, http.StatusBadRequest, "Invalid wallet address format")
		return
	}

	address = strings.ToLower(address)

	response, err := h.service.GetLedger(r.Context(), address)
	if err != nil {
		h.logger.Error("Failed to get ledger",
			zap.Error(err),
			zap.String("address", address),
		)
		h.respondError(w, http.StatusInternalServerError, "Failed to get ledger")
		return
	}

	if response == nil {
		h.respondError(w, http.StatusNotFound, "Ledger not found")
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

func (h *PositionsHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *PositionsHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// isValidAddress checks for a 0x-prefixed 20-byte hex address
func isValidAddress(addr string) bool {
	if len(addr) != 42 {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(addr), "0x") {
		return false
	}
	return common.IsHexAddress(addr)
}
