package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func checkoutRouter(svc services.OrderService) http.Handler {
	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(svc).Routes)
	return router
}

func TestPlaceOrderSuccess(t *testing.T) {
	var (
		gotActor services.Actor
		gotCmd   services.PlaceOrderCommand
	)
	svc := &stubOrderService{
		placeFn: func(_ context.Context, actor services.Actor, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
			gotActor, gotCmd = actor, cmd
			return services.PlaceOrderResult{
				Order: services.Order{ID: "ord_1", UserID: actor.UserID, TotalAmount: 300, Discount: 50, FinalAmount: 250, PaymentMethod: domain.PaymentMethodWallet, Status: domain.OrderStatusPlaced},
				Ineligible: []services.IneligibleLine{
					{CartItemID: "cit-9", ProductID: "p-old", Reason: services.IneligibleBlocked},
				},
			}, nil
		},
	}

	rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/place-order", `{"addressId":" addr-1 ","paymentMethod":"wallet","couponCode":"SAVE50"}`, shopper)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotActor.UserID != "user-1" || gotActor.IsAdmin {
		t.Fatalf("unexpected actor %+v", gotActor)
	}
	if gotCmd.AddressID != "addr-1" || gotCmd.PaymentMethod != domain.PaymentMethodWallet || gotCmd.CouponCode != "SAVE50" {
		t.Fatalf("unexpected command %+v", gotCmd)
	}
	body := decodeMap(t, rr)
	if body["success"] != true || body["orderId"] != "ord_1" {
		t.Fatalf("unexpected body %v", body)
	}
	order := body["order"].(map[string]any)
	if order["finalAmount"] != float64(250) || order["discount"] != float64(50) {
		t.Fatalf("unexpected order payload %v", order)
	}
	skipped := body["skippedItems"].([]any)
	if len(skipped) != 1 || skipped[0].(map[string]any)["reason"] != "blocked" {
		t.Fatalf("unexpected skipped items %v", skipped)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	called := false
	svc := &stubOrderService{
		placeFn: func(context.Context, services.Actor, services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
			called = true
			return services.PlaceOrderResult{}, nil
		},
	}
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "empty body", body: "", status: http.StatusBadRequest},
		{name: "malformed json", body: `{"addressId":`, status: http.StatusBadRequest},
		{name: "missing address", body: `{"paymentMethod":"cod"}`, status: http.StatusBadRequest},
		{name: "gateway method uses its own route", body: `{"addressId":"a","paymentMethod":"razorpay"}`, status: http.StatusBadRequest},
		{name: "unknown method", body: `{"addressId":"a","paymentMethod":"cheque"}`, status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/place-order", tc.body, shopper)
			expectError(t, rr, tc.status, "invalid_request")
		})
	}
	if called {
		t.Fatalf("service must not be called for invalid requests")
	}

	rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/place-order", `{"paymentMethod":"cod"}`, shopper)
	body := expectError(t, rr, http.StatusBadRequest, "invalid_request")
	if fields := body["fields"].([]any); len(fields) != 1 || fields[0] != "addressId" {
		t.Fatalf("expected addressId field error, got %v", body["fields"])
	}
}

func TestPlaceOrderRequiresIdentity(t *testing.T) {
	rr := do(t, checkoutRouter(&stubOrderService{}), http.MethodPost, "/checkout/place-order", `{"addressId":"a","paymentMethod":"cod"}`, nil)
	expectError(t, rr, http.StatusUnauthorized, "unauthenticated")
}

func TestPlaceOrderOutOfStock(t *testing.T) {
	svc := &stubOrderService{
		placeFn: func(context.Context, services.Actor, services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
			return services.PlaceOrderResult{}, &services.StockShortageError{Lines: []services.StockShortage{
				{ProductID: "p-tee", ProductName: "Tee", Size: "M", Requested: 3, Available: 2},
			}}
		},
	}
	rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/place-order", `{"addressId":"a","paymentMethod":"cod"}`, shopper)
	body := expectError(t, rr, http.StatusConflict, "out_of_stock")
	lines := body["outOfStock"].([]any)
	line := lines[0].(map[string]any)
	if line["productName"] != "Tee" || line["size"] != "M" || line["requestedQty"] != float64(3) || line["availableStock"] != float64(2) {
		t.Fatalf("unexpected shortage line %v", line)
	}
	if body["message"] == "" {
		t.Fatalf("expected a message")
	}
}

func TestCheckoutErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "coupon expired", err: &services.CouponError{Code: "OLD", Reason: services.CouponReasonExpired}, status: http.StatusBadRequest, code: "coupon_expired"},
		{name: "coupon missing", err: &services.CouponError{Code: "NOPE", Reason: services.CouponReasonNotFound}, status: http.StatusNotFound, code: "coupon_not_found"},
		{name: "wallet short", err: &services.InsufficientFundsError{Required: 250, Available: 100}, status: http.StatusBadRequest, code: "insufficient_wallet_balance"},
		{name: "cod ceiling", err: services.ErrCODLimitExceeded, status: http.StatusBadRequest, code: "cod_limit_exceeded"},
		{name: "empty cart", err: services.ErrCartEmpty, status: http.StatusBadRequest, code: "cart_empty"},
		{name: "address", err: services.ErrAddressNotFound, status: http.StatusNotFound, code: "address_not_found"},
		{name: "gateway down", err: fmt.Errorf("%w: timeout", services.ErrPaymentGatewayUnavailable), status: http.StatusBadGateway, code: "payment_gateway_unavailable"},
		{name: "store unavailable", err: fmt.Errorf("%w: firestore", services.ErrUnavailable), status: http.StatusServiceUnavailable, code: "unavailable"},
		{name: "unknown", err: fmt.Errorf("boom"), status: http.StatusInternalServerError, code: "internal_server_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				placeFn: func(context.Context, services.Actor, services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
					return services.PlaceOrderResult{}, tc.err
				},
			}
			rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/place-order", `{"addressId":"a","paymentMethod":"wallet"}`, shopper)
			expectError(t, rr, tc.status, tc.code)
		})
	}
}

func TestCreateRazorpayOrder(t *testing.T) {
	svc := &stubOrderService{
		createFn: func(_ context.Context, _ services.Actor, cmd services.CreateGatewayOrderCommand) (services.GatewayCheckout, error) {
			if cmd.AddressID != "addr-1" || cmd.CouponCode != "" {
				t.Errorf("unexpected command %+v", cmd)
			}
			return services.GatewayCheckout{GatewayOrderID: "order_Rzp1", Amount: 250, Currency: "INR", KeyID: "rzp_test_key"}, nil
		},
	}
	rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/create-razorpay-order", `{"addressId":"addr-1"}`, shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["orderId"] != "order_Rzp1" || body["amount"] != float64(250) || body["key"] != "rzp_test_key" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestVerifyPayment(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &stubOrderService{
			verifyFn: func(_ context.Context, _ services.Actor, cmd services.VerifyPaymentCommand) (services.PlaceOrderResult, error) {
				if cmd.GatewayOrderID != "order_1" || cmd.GatewayPaymentID != "pay_1" || cmd.Signature != "sig" {
					t.Errorf("unexpected command %+v", cmd)
				}
				return services.PlaceOrderResult{Order: services.Order{ID: "ord_9", PaymentStatus: domain.PaymentStatusPaid}}, nil
			},
		}
		rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/verify-payment",
			`{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig","addressId":"addr-1"}`, shopper)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		if body := decodeMap(t, rr); body["orderId"] != "ord_9" {
			t.Fatalf("unexpected body %v", body)
		}
	})

	t.Run("signature mismatch exposes retry order", func(t *testing.T) {
		svc := &stubOrderService{
			verifyFn: func(context.Context, services.Actor, services.VerifyPaymentCommand) (services.PlaceOrderResult, error) {
				return services.PlaceOrderResult{}, &services.PaymentVerificationError{OrderID: "ord_failed", GatewayOrderID: "order_1"}
			},
		}
		rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/verify-payment",
			`{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"bad","addressId":"addr-1"}`, shopper)
		body := expectError(t, rr, http.StatusPaymentRequired, "payment_verification_failed")
		if body["orderId"] != "ord_failed" {
			t.Fatalf("expected failed order id, got %v", body["orderId"])
		}
	})

	t.Run("captured but not committed", func(t *testing.T) {
		svc := &stubOrderService{
			verifyFn: func(context.Context, services.Actor, services.VerifyPaymentCommand) (services.PlaceOrderResult, error) {
				return services.PlaceOrderResult{}, &services.PaymentCommitError{GatewayOrderID: "order_1", GatewayPaymentID: "pay_1", Err: services.ErrInsufficientStock}
			},
		}
		rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/verify-payment",
			`{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig","addressId":"addr-1"}`, shopper)
		body := expectError(t, rr, http.StatusInternalServerError, "payment_not_committed")
		if body["razorpayPaymentId"] != "pay_1" {
			t.Fatalf("expected payment id for support, got %v", body)
		}
	})

	t.Run("paid amount differs from checkout", func(t *testing.T) {
		svc := &stubOrderService{
			verifyFn: func(context.Context, services.Actor, services.VerifyPaymentCommand) (services.PlaceOrderResult, error) {
				return services.PlaceOrderResult{}, &services.PaymentCommitError{GatewayOrderID: "order_1", GatewayPaymentID: "pay_1", Err: services.ErrPaymentAmountMismatch}
			},
		}
		rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/verify-payment",
			`{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig","addressId":"addr-1"}`, shopper)
		body := expectError(t, rr, http.StatusInternalServerError, "payment_amount_mismatch")
		if body["razorpayOrderId"] != "order_1" {
			t.Fatalf("expected gateway order id for support, got %v", body)
		}
	})
}

func TestPaymentFailedRecordsOrder(t *testing.T) {
	var got services.PaymentFailureCommand
	svc := &stubOrderService{
		failureFn: func(_ context.Context, _ services.Actor, cmd services.PaymentFailureCommand) (services.Order, error) {
			got = cmd
			return services.Order{ID: "ord_pf", Status: domain.OrderStatusPaymentFailed}, nil
		},
	}
	rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/payment-failed",
		`{"razorpay_order_id":"order_1","addressId":"addr-1","reason":"<b>card</b> declined"}`, shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["success"] != false || body["orderId"] != "ord_pf" {
		t.Fatalf("unexpected body %v", body)
	}
	if got.Reason != "card declined" {
		t.Fatalf("expected sanitised reason, got %q", got.Reason)
	}
}

func TestApplyCoupon(t *testing.T) {
	svc := &stubOrderService{
		quoteFn: func(_ context.Context, _ services.Actor, cmd services.QuoteCheckoutCommand) (services.CheckoutQuote, error) {
			return services.CheckoutQuote{CouponCode: cmd.CouponCode, RawTotal: 300, Discount: 50, FinalTotal: 250}, nil
		},
	}
	rr := do(t, checkoutRouter(svc), http.MethodPost, "/checkout/apply-coupon", `{"couponCode":"SAVE50"}`, shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	data := decodeMap(t, rr)["data"].(map[string]any)
	if data["discount"] != float64(50) || data["finalTotal"] != float64(250) {
		t.Fatalf("unexpected quote %v", data)
	}
}
