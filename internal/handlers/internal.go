package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// InternalHandlers serves fulfilment callbacks from trusted services. Callers authenticate with a
// Google-signed service token, checked by the router before these handlers run.
type InternalHandlers struct {
	orders services.OrderService
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{orders: orders}
}

// Routes registers internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	r.Post("/orders/{orderId}/status", h.updateOrderStatus)
}

func (h *InternalHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	svc, ok := auth.ServiceIdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "service token required", http.StatusUnauthorized))
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderId"), "orderId")
	if !ok {
		return
	}
	var req updateOrderStatusRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	actor := services.Actor{UserID: "svc:" + svc.Subject, IsAdmin: true}
	order, err := h.orders.UpdateOrderStatus(r.Context(), actor, services.UpdateOrderStatusCommand{
		OrderID: orderID,
		Status:  domain.OrderStatus(req.Status),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orderId": order.ID, "status": string(order.Status)})
}
