package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// AdminHandlers exposes back-office order, return, coupon and stock operations. Every route
// requires the admin role, which the services check again.
type AdminHandlers struct {
	orders  services.OrderService
	returns services.ReturnService
	admin   services.AdminService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(orders services.OrderService, returns services.ReturnService, admin services.AdminService) *AdminHandlers {
	return &AdminHandlers{orders: orders, returns: returns, admin: admin}
}

// Routes registers admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	r.Patch("/orders/{orderId}/status", h.updateOrderStatus)
	r.Get("/returns", h.listReturns)
	r.Post("/returns/{returnId}/approve", h.approveReturn)
	r.Post("/returns/{returnId}/reject", h.rejectReturn)
	r.Post("/coupons", h.createCoupon)
	r.Post("/products/{productId}/restock", h.restock)
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Processing Shipped Delivered"`
}

type resolveReturnRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

type createCouponRequest struct {
	Code         string    `json:"code" validate:"required,alphanum,max=32"`
	Name         string    `json:"name" validate:"required,max=120"`
	UsageType    string    `json:"usageType" validate:"required,oneof=once multiple"`
	ActiveFrom   time.Time `json:"activeFrom" validate:"required"`
	ExpiresAt    time.Time `json:"expiresAt" validate:"required,gtfield=ActiveFrom"`
	Limit        int       `json:"limit" validate:"min=0"`
	Discount     int64     `json:"discount" validate:"required,gt=0"`
	MinimumOrder int64     `json:"minimumOrder" validate:"min=0"`
}

type restockRequest struct {
	Size     string `json:"size" validate:"required,size"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=100000"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
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
	order, err := h.orders.UpdateOrderStatus(r.Context(), actor, services.UpdateOrderStatusCommand{
		OrderID: orderID,
		Status:  domain.OrderStatus(req.Status),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderPayload(order))
}

func (h *AdminHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, ok := pageFromRequest(w, r)
	if !ok {
		return
	}
	result, err := h.returns.ListReturns(r.Context(), actor, services.ReturnListFilter{
		Status:     domain.ReturnStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Pagination: page,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]returnPayload, 0, len(result.Items))
	for _, req := range result.Items {
		items = append(items, newReturnPayload(req))
	}
	payload := map[string]any{"items": items}
	if result.NextPageToken != "" {
		payload["nextPageToken"] = result.NextPageToken
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *AdminHandlers) approveReturn(w http.ResponseWriter, r *http.Request) {
	h.resolveReturn(w, r, h.returns.ApproveReturn)
}

func (h *AdminHandlers) rejectReturn(w http.ResponseWriter, r *http.Request) {
	h.resolveReturn(w, r, h.returns.RejectReturn)
}

type resolveFunc func(ctx context.Context, actor services.Actor, cmd services.ResolveReturnCommand) (services.ReturnRequest, error)

func (h *AdminHandlers) resolveReturn(w http.ResponseWriter, r *http.Request, resolve resolveFunc) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	returnID, ok := pathParam(w, r, chi.URLParam(r, "returnId"), "returnId")
	if !ok {
		return
	}
	var req resolveReturnRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	request, err := resolve(r.Context(), actor, services.ResolveReturnCommand{ReturnID: returnID, Note: cleanReason(req.Note)})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "return": newReturnPayload(request)})
}

func (h *AdminHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createCouponRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	coupon, err := h.admin.CreateCoupon(r.Context(), actor, services.CreateCouponCommand{
		Code:         req.Code,
		Name:         cleanReason(req.Name),
		UsageType:    domain.CouponUsage(req.UsageType),
		ActiveFrom:   req.ActiveFrom,
		ExpiresAt:    req.ExpiresAt,
		Limit:        req.Limit,
		Discount:     req.Discount,
		MinimumOrder: req.MinimumOrder,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":           coupon.ID,
		"code":         coupon.Code,
		"name":         coupon.Name,
		"status":       string(coupon.Status),
		"usageType":    string(coupon.UsageType),
		"activeFrom":   formatTime(coupon.ActiveFrom),
		"expiresAt":    formatTime(coupon.ExpiresAt),
		"limit":        coupon.Limit,
		"discount":     coupon.Discount,
		"minimumOrder": coupon.MinimumOrder,
	})
}

func (h *AdminHandlers) restock(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, chi.URLParam(r, "productId"), "productId")
	if !ok {
		return
	}
	var req restockRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	product, err := h.admin.Restock(r.Context(), actor, services.RestockCommand{
		ProductID: productID,
		Size:      domain.Size(req.Size),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	stock := make(map[string]int, len(product.Stock))
	for size, qty := range product.Stock {
		stock[string(size)] = qty
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"productId": product.ID, "stock": stock})
}
