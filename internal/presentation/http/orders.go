package httppresentation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	appOrder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	domainOrder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	Items           []createOrderItemRequest  `json:"items"`
	ShippingAddress domainOrder.Address       `json:"shipping_address"`
	PaymentMethod   domainOrder.PaymentMethod `json:"payment_method"`
}

type orderResponse struct {
	ID              string                    `json:"id"`
	OrderNumber     string                    `json:"order_number"`
	CustomerID      string                    `json:"customer_id"`
	Items           []domainOrder.Item        `json:"items"`
	TotalAmount     int64                     `json:"total_amount"`
	Currency        string                    `json:"currency"`
	ShippingAddress domainOrder.Address       `json:"shipping_address"`
	PaymentMethod   domainOrder.PaymentMethod `json:"payment_method"`
	PaymentIntentID string                    `json:"payment_intent_id,omitempty"`
	PaymentStatus   domainOrder.PaymentStatus `json:"payment_status"`
	Status          domainOrder.Status        `json:"status"`
	Stage           domainOrder.Stage         `json:"stage"`
	Tracking        *domainOrder.Tracking     `json:"tracking,omitempty"`
	CancelReason    string                    `json:"cancel_reason,omitempty"`
	Version         int64                     `json:"version"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

type createOrderResponse struct {
	orderResponse
	ClientSecret string `json:"client_secret,omitempty"`
}

func newOrderResponse(o *domainOrder.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		Items:           o.Items,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentIntentID: o.PaymentIntentID,
		PaymentStatus:   o.PaymentStatus,
		Status:          o.Status,
		Stage:           o.Stage,
		CancelReason:    o.CancelReason,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if !o.Tracking.Empty() {
		tracking := o.Tracking
		resp.Tracking = &tracking
	}
	return resp
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	requester := requesterFrom(r)
	if requester.ID == "" {
		h.writeError(w, r, apperr.Unauthorized("missing "+headerUserID))
		return
	}

	var req createOrderRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]appOrder.CreateOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, appOrder.CreateOrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	result, err := h.uc.CreateOrder.Execute(r.Context(), appOrder.CreateOrderCommand{
		CustomerID:      requester.ID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/orders/"+result.Order.ID)
	writeJSON(w, http.StatusCreated, createOrderResponse{
		orderResponse: newOrderResponse(result.Order),
		ClientSecret:  result.ClientSecret,
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.uc.GetOrder.Execute(r.Context(), appOrder.GetOrderQuery{
		OrderID:   chi.URLParam(r, "orderID"),
		Requester: requesterFrom(r),
	})
	h.respondOrder(w, r, o, err)
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.uc.ConfirmPayment.Execute(r.Context(), appOrder.ConfirmPaymentCommand{
		OrderID:   chi.URLParam(r, "orderID"),
		Requester: requesterFrom(r),
	})
	h.respondOrder(w, r, o, err)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.uc.CancelOrder.Execute(r.Context(), appOrder.CancelOrderCommand{
		OrderID:   chi.URLParam(r, "orderID"),
		Requester: requesterFrom(r),
		Reason:    req.Reason,
	})
	h.respondOrder(w, r, o, err)
}

func (h *Handler) handleRefundOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.uc.RefundOrder.Execute(r.Context(), appOrder.RefundOrderCommand{
		OrderID:   chi.URLParam(r, "orderID"),
		Requester: requesterFrom(r),
		Reason:    req.Reason,
	})
	h.respondOrder(w, r, o, err)
}

type updateStatusRequest struct {
	Status   domainOrder.Status   `json:"status"`
	Tracking domainOrder.Tracking `json:"tracking"`
	Reason   string               `json:"reason"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.uc.UpdateStatus.Execute(r.Context(), appOrder.UpdateOrderStatusCommand{
		OrderID:   chi.URLParam(r, "orderID"),
		Requester: requesterFrom(r),
		Status:    req.Status,
		Tracking:  req.Tracking,
		Reason:    req.Reason,
	})
	h.respondOrder(w, r, o, err)
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, o *domainOrder.Order, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}
