package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/services"
)

func ordersRouter(orders services.OrderService, returns services.ReturnService, opts ...OrderOption) http.Handler {
	h := NewOrderHandlers(orders, returns, opts...)
	router := chi.NewRouter()
	router.Route("/orders", func(r chi.Router) {
		h.Routes(r)
		h.MutationRoutes(r)
	})
	return router
}

func TestListOrdersPassesPagination(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var gotPage services.Pagination
	svc := &stubOrderService{
		listFn: func(_ context.Context, actor services.Actor, page services.Pagination) (domain.CursorPage[services.Order], error) {
			gotPage = page
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{{ID: "ord_2", UserID: actor.UserID, CreatedAt: created}},
				NextPageToken: "next",
			}, nil
		},
	}
	rr := do(t, ordersRouter(svc, nil), http.MethodGet, "/orders?pageSize=500", "", shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotPage.PageSize != 100 {
		t.Fatalf("expected page size clamped to 100, got %d", gotPage.PageSize)
	}
	body := decodeMap(t, rr)
	items := body["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["createdAt"] != "2025-03-01T10:00:00Z" || body["nextPageToken"] != "next" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = do(t, ordersRouter(svc, nil), http.MethodGet, "/orders?pageSize=abc", "", shopper)
	expectError(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, services.Actor, string) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	rr := do(t, ordersRouter(svc, nil), http.MethodGet, "/orders/ord_x", "", shopper)
	expectError(t, rr, http.StatusNotFound, "order_not_found")
}

func TestCancelItem(t *testing.T) {
	var got services.CancelItemCommand
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, _ services.Actor, cmd services.CancelItemCommand) (services.CancelItemResult, error) {
			got = cmd
			return services.CancelItemResult{Order: services.Order{ID: cmd.OrderID}, RefundAmount: 83}, nil
		},
	}
	rr := do(t, ordersRouter(svc, nil), http.MethodPatch, "/orders/cancel-item/itm-1", `{"orderId":"ord-1","reason":"  changed\nmy mind "}`, shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderID != "ord-1" || got.ItemID != "itm-1" || got.Reason != "changed my mind" {
		t.Fatalf("unexpected command %+v", got)
	}
	body := decodeMap(t, rr)
	if body["success"] != true || body["refundAmount"] != float64(83) || body["message"] == "" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCancelItemWithoutOrderID(t *testing.T) {
	var got services.CancelItemCommand
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, _ services.Actor, cmd services.CancelItemCommand) (services.CancelItemResult, error) {
			got = cmd
			return services.CancelItemResult{Order: services.Order{ID: "ord-1"}}, nil
		},
	}
	rr := do(t, ordersRouter(svc, nil), http.MethodPatch, "/orders/cancel-item/itm-1", `{"reason":"ordered twice"}`, shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderID != "" || got.ItemID != "itm-1" || got.Reason != "ordered twice" {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestCancelItemStateErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{err: services.ErrItemAlreadyCancelled, status: http.StatusBadRequest, code: "item_already_cancelled"},
		{err: services.ErrInvalidTransition, status: http.StatusConflict, code: "invalid_state"},
		{err: services.ErrOrderItemNotFound, status: http.StatusNotFound, code: "item_not_found"},
		{err: services.ErrForbidden, status: http.StatusForbidden, code: "forbidden"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			svc := &stubOrderService{
				cancelFn: func(context.Context, services.Actor, services.CancelItemCommand) (services.CancelItemResult, error) {
					return services.CancelItemResult{}, tc.err
				},
			}
			rr := do(t, ordersRouter(svc, nil), http.MethodPatch, "/orders/cancel-item/itm-1", `{"orderId":"ord-1"}`, shopper)
			expectError(t, rr, tc.status, tc.code)
		})
	}
}

func TestReturnItem(t *testing.T) {
	returns := &stubReturnService{
		requestFn: func(_ context.Context, actor services.Actor, cmd services.RequestReturnCommand) (services.ReturnRequest, error) {
			if cmd.Reason != "too small" {
				t.Errorf("unexpected reason %q", cmd.Reason)
			}
			return services.ReturnRequest{ID: domain.ReturnRequestID(cmd.OrderID, cmd.ItemID), OrderID: cmd.OrderID, ItemID: cmd.ItemID, UserID: actor.UserID, Status: domain.ReturnStatusRequested, RefundAmount: 167}, nil
		},
	}
	rr := do(t, ordersRouter(&stubOrderService{}, returns), http.MethodPost, "/orders/return-item", `{"orderId":"ord-1","itemId":"itm-2","reason":"too small"}`, shopper)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["returnId"] != "ord-1_itm-2" || body["refundAmount"] != float64(167) {
		t.Fatalf("unexpected body %v", body)
	}

	rr = do(t, ordersRouter(&stubOrderService{}, returns), http.MethodPost, "/orders/return-item", `{"orderId":"ord-1","itemId":"itm-2","reason":"<i></i>"}`, shopper)
	expectError(t, rr, http.StatusBadRequest, "invalid_request")

	expired := &stubReturnService{
		requestFn: func(context.Context, services.Actor, services.RequestReturnCommand) (services.ReturnRequest, error) {
			return services.ReturnRequest{}, services.ErrReturnWindowExpired
		},
	}
	rr = do(t, ordersRouter(&stubOrderService{}, expired), http.MethodPost, "/orders/return-item", `{"orderId":"ord-1","itemId":"itm-2","reason":"late"}`, shopper)
	expectError(t, rr, http.StatusBadRequest, "return_window_expired")
}

func TestRetryPaymentFlow(t *testing.T) {
	svc := &stubOrderService{
		retryFn: func(_ context.Context, _ services.Actor, orderID string) (services.GatewayCheckout, error) {
			return services.GatewayCheckout{OrderID: orderID, GatewayOrderID: "order_new", Amount: 250, Currency: "INR", KeyID: "rzp_key"}, nil
		},
		verifyRetryFn: func(_ context.Context, _ services.Actor, cmd services.VerifyRetryPaymentCommand) (services.Order, error) {
			if cmd.OrderID != "ord_pf" || cmd.GatewayOrderID != "order_new" {
				t.Errorf("unexpected command %+v", cmd)
			}
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusPlaced, PaymentStatus: domain.PaymentStatusPaid}, nil
		},
	}
	router := ordersRouter(svc, nil)

	rr := do(t, router, http.MethodPost, "/orders/retry-payment/ord_pf", "", shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["razorpayOrderId"] != "order_new" || body["key"] != "rzp_key" || body["amount"] != float64(250) {
		t.Fatalf("unexpected retry body %v", body)
	}

	rr = do(t, router, http.MethodPost, "/orders/verify-retry-payment/ord_pf", `{"razorpay_order_id":"order_new","razorpay_payment_id":"pay_2","razorpay_signature":"sig"}`, shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if order := decodeMap(t, rr)["order"].(map[string]any); order["paymentStatus"] != "paid" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestUploadEvidence(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	var got services.AttachEvidenceCommand
	returns := &stubReturnService{
		attachFn: func(_ context.Context, _ services.Actor, cmd services.AttachEvidenceCommand) (services.ReturnRequest, error) {
			got = cmd
			return services.ReturnRequest{ID: cmd.ReturnID, EvidenceURLs: []string{"https://cdn.example.com/returns/x.png"}}, nil
		},
	}
	router := ordersRouter(&stubOrderService{}, returns, WithEvidenceLimit(64))

	req := httptest.NewRequest(http.MethodPost, "/orders/returns/ord-1_itm-1/evidence", bytes.NewReader(png))
	req = req.WithContext(auth.WithIdentity(req.Context(), shopper))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.ReturnID != "ord-1_itm-1" || got.ContentType != "image/png" || len(got.Data) != len(png) {
		t.Fatalf("unexpected command %+v", got)
	}

	big := httptest.NewRequest(http.MethodPost, "/orders/returns/ord-1_itm-1/evidence", bytes.NewReader(make([]byte, 65)))
	big = big.WithContext(auth.WithIdentity(big.Context(), shopper))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, big)
	expectError(t, rr, http.StatusRequestEntityTooLarge, "invalid_request")
}
