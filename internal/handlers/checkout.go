package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// CheckoutHandlers exposes order placement and first-attempt gateway settlement.
type CheckoutHandlers struct {
	orders services.OrderService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(orders services.OrderService) *CheckoutHandlers {
	return &CheckoutHandlers{orders: orders}
}

// Routes registers checkout endpoints. Authentication, throttling and idempotency are applied by
// the router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	r.Post("/place-order", h.placeOrder)
	r.Post("/create-razorpay-order", h.createGatewayOrder)
	r.Post("/verify-payment", h.verifyPayment)
	r.Post("/payment-failed", h.paymentFailed)
	r.Post("/apply-coupon", h.applyCoupon)
}

type placeOrderRequest struct {
	AddressID     string `json:"addressId" validate:"required,max=128"`
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=cod wallet"`
	CouponCode    string `json:"couponCode" validate:"max=64"`
}

type createGatewayOrderRequest struct {
	AddressID  string `json:"addressId" validate:"required,max=128"`
	CouponCode string `json:"couponCode" validate:"max=64"`
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required,max=128"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required,max=128"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required,max=256"`
	AddressID         string `json:"addressId" validate:"required,max=128"`
	CouponCode        string `json:"couponCode" validate:"max=64"`
}

type paymentFailedRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required,max=128"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"max=128"`
	AddressID         string `json:"addressId" validate:"required,max=128"`
	CouponCode        string `json:"couponCode" validate:"max=64"`
	Reason            string `json:"reason" validate:"max=2000"`
}

type applyCouponRequest struct {
	CouponCode string `json:"couponCode" validate:"required,max=64"`
}

type placeOrderResponse struct {
	Success    bool                `json:"success"`
	OrderID    string              `json:"orderId"`
	Order      orderPayload        `json:"order"`
	Ineligible []ineligiblePayload `json:"skippedItems,omitempty"`
}

type gatewayOrderResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

type couponQuote struct {
	CouponCode string              `json:"couponCode"`
	RawTotal   int64               `json:"rawTotal"`
	Discount   int64               `json:"discount"`
	FinalTotal int64               `json:"finalTotal"`
	Lines      []pricedLinePayload `json:"items"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	result, err := h.orders.PlaceOrder(r.Context(), actor, services.PlaceOrderCommand{
		AddressID:     strings.TrimSpace(req.AddressID),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		CouponCode:    strings.TrimSpace(req.CouponCode),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, placeOrderResponse{
		Success:    true,
		OrderID:    result.Order.ID,
		Order:      newOrderPayload(result.Order),
		Ineligible: newIneligible(result.Ineligible),
	})
}

func (h *CheckoutHandlers) createGatewayOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createGatewayOrderRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	checkout, err := h.orders.CreateGatewayOrder(r.Context(), actor, services.CreateGatewayOrderCommand{
		AddressID:  strings.TrimSpace(req.AddressID),
		CouponCode: strings.TrimSpace(req.CouponCode),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatewayOrderResponse{
		Success:  true,
		OrderID:  checkout.GatewayOrderID,
		Amount:   checkout.Amount,
		Currency: checkout.Currency,
		Key:      checkout.KeyID,
	})
}

func (h *CheckoutHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	result, err := h.orders.VerifyPayment(r.Context(), actor, services.VerifyPaymentCommand{
		GatewayOrderID:   strings.TrimSpace(req.RazorpayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.RazorpayPaymentID),
		Signature:        strings.TrimSpace(req.RazorpaySignature),
		AddressID:        strings.TrimSpace(req.AddressID),
		CouponCode:       strings.TrimSpace(req.CouponCode),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, placeOrderResponse{
		Success:    true,
		OrderID:    result.Order.ID,
		Order:      newOrderPayload(result.Order),
		Ineligible: newIneligible(result.Ineligible),
	})
}

// paymentFailed records the attempt reported by the payment widget; the response keeps
// success=false so clients route the shopper to the retry flow.
func (h *CheckoutHandlers) paymentFailed(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req paymentFailedRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	order, err := h.orders.RecordPaymentFailure(r.Context(), actor, services.PaymentFailureCommand{
		GatewayOrderID:   strings.TrimSpace(req.RazorpayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.RazorpayPaymentID),
		AddressID:        strings.TrimSpace(req.AddressID),
		CouponCode:       strings.TrimSpace(req.CouponCode),
		Reason:           cleanReason(req.Reason),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": false,
		"orderId": order.ID,
		"message": "payment failed; you can retry from your orders",
	})
}

func (h *CheckoutHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req applyCouponRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	quote, err := h.orders.QuoteCheckout(r.Context(), actor, services.QuoteCheckoutCommand{CouponCode: strings.TrimSpace(req.CouponCode)})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": couponQuote{
			CouponCode: quote.CouponCode,
			RawTotal:   quote.RawTotal,
			Discount:   quote.Discount,
			FinalTotal: quote.FinalTotal,
			Lines:      newPricedLines(quote.Lines),
		},
	})
}
