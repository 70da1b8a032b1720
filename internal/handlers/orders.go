package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const defaultEvidenceLimit = 5 << 20

// OrderHandlers exposes the shopper's order history and post-placement operations.
type OrderHandlers struct {
	orders        services.OrderService
	returns       services.ReturnService
	evidenceLimit int64
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithEvidenceLimit caps the size of uploaded return evidence.
func WithEvidenceLimit(limit int64) OrderOption {
	return func(h *OrderHandlers) {
		if limit > 0 {
			h.evidenceLimit = limit
		}
	}
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(orders services.OrderService, returns services.ReturnService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{orders: orders, returns: returns, evidenceLimit: defaultEvidenceLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers read-only order endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
}

// MutationRoutes registers state-changing order endpoints; the router wraps them with idempotency.
func (h *OrderHandlers) MutationRoutes(r chi.Router) {
	r.Patch("/cancel-item/{itemId}", h.cancelItem)
	r.Post("/return-item", h.returnItem)
	r.Post("/retry-payment/{orderId}", h.retryPayment)
	r.Post("/verify-retry-payment/{orderId}", h.verifyRetryPayment)
	r.Post("/returns/{returnId}/evidence", h.uploadEvidence)
}

// cancelItemRequest.OrderID is optional; the order is resolved from the item id when omitted.
type cancelItemRequest struct {
	OrderID string `json:"orderId" validate:"omitempty,max=128"`
	Reason  string `json:"reason" validate:"max=2000"`
}

type returnItemRequest struct {
	OrderID string `json:"orderId" validate:"required,max=128"`
	ItemID  string `json:"itemId" validate:"required,max=128"`
	Reason  string `json:"reason" validate:"required,max=2000"`
}

type verifyRetryPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required,max=128"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required,max=128"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required,max=256"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, ok := pageFromRequest(w, r)
	if !ok {
		return
	}
	result, err := h.orders.ListOrders(r.Context(), actor, page)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]orderPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, newOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderId"), "orderId")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(r.Context(), actor, orderID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderPayload(order))
}

func (h *OrderHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	itemID, ok := pathParam(w, r, chi.URLParam(r, "itemId"), "itemId")
	if !ok {
		return
	}
	var req cancelItemRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	result, err := h.orders.CancelItem(r.Context(), actor, services.CancelItemCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		ItemID:  itemID,
		Reason:  cleanReason(req.Reason),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	message := "item cancelled"
	if result.RefundAmount > 0 {
		message = "item cancelled and refund credited to wallet"
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      message,
		"refundAmount": result.RefundAmount,
		"order":        newOrderPayload(result.Order),
	})
}

func (h *OrderHandlers) returnItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req returnItemRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	reason := cleanReason(req.Reason)
	if reason == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "reason is required", http.StatusBadRequest))
		return
	}
	request, err := h.returns.RequestReturn(r.Context(), actor, services.RequestReturnCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		ItemID:  strings.TrimSpace(req.ItemID),
		Reason:  reason,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"returnId":     request.ID,
		"refundAmount": request.RefundAmount,
		"return":       newReturnPayload(request),
	})
}

func (h *OrderHandlers) retryPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderId"), "orderId")
	if !ok {
		return
	}
	checkout, err := h.orders.RetryPayment(r.Context(), actor, orderID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"orderId":         checkout.OrderID,
		"razorpayOrderId": checkout.GatewayOrderID,
		"amount":          checkout.Amount,
		"currency":        checkout.Currency,
		"key":             checkout.KeyID,
	})
}

func (h *OrderHandlers) verifyRetryPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderId"), "orderId")
	if !ok {
		return
	}
	var req verifyRetryPaymentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	order, err := h.orders.VerifyRetryPayment(r.Context(), actor, services.VerifyRetryPaymentCommand{
		OrderID:          orderID,
		GatewayOrderID:   strings.TrimSpace(req.RazorpayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.RazorpayPaymentID),
		Signature:        strings.TrimSpace(req.RazorpaySignature),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orderId": order.ID,
		"order":   newOrderPayload(order),
	})
}

// uploadEvidence accepts the raw image as the request body.
func (h *OrderHandlers) uploadEvidence(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	returnID, ok := pathParam(w, r, chi.URLParam(r, "returnId"), "returnId")
	if !ok {
		return
	}
	data, err := readLimitedBody(r, h.evidenceLimit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	contentType := http.DetectContentType(data)
	if declared, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && strings.HasPrefix(declared, "image/") {
		contentType = declared
	}
	request, err := h.returns.AttachEvidence(r.Context(), actor, services.AttachEvidenceCommand{
		ReturnID:    returnID,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"return":  newReturnPayload(request),
	})
}
