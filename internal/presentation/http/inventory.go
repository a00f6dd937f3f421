package httppresentation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appInventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

type stockResponse struct {
	ProductID         string    `json:"product_id"`
	Quantity          int       `json:"quantity"`
	Reserved          int       `json:"reserved"`
	Available         int       `json:"available"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Low               bool      `json:"low"`
	Version           int64     `json:"version"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newStockResponse(s dominv.Stock) stockResponse {
	return stockResponse{
		ProductID:         s.ProductID,
		Quantity:          s.Quantity,
		Reserved:          s.Reserved,
		Available:         s.Available(),
		LowStockThreshold: s.LowStockThreshold,
		Low:               s.IsLow(),
		Version:           s.Version,
		UpdatedAt:         s.UpdatedAt,
	}
}

type adjustStockRequest struct {
	Delta    *int   `json:"delta"`
	Absolute *int   `json:"absolute"`
	Reason   string `json:"reason"`
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	stock, err := h.uc.GetStock.Execute(r.Context(), appInventory.GetStockQuery{
		ProductID: chi.URLParam(r, "productID"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStockResponse(stock))
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	stock, err := h.uc.AdjustStock.Execute(r.Context(), appInventory.AdjustStockCommand{
		ProductID: chi.URLParam(r, "productID"),
		Delta:     req.Delta,
		Absolute:  req.Absolute,
		Reason:    req.Reason,
		Admin:     requesterFrom(r).Admin,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStockResponse(stock))
}
