package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/services"
)

var errNotStubbed = errors.New("not stubbed")

type stubOrderService struct {
	quoteFn        func(context.Context, services.Actor, services.QuoteCheckoutCommand) (services.CheckoutQuote, error)
	placeFn        func(context.Context, services.Actor, services.PlaceOrderCommand) (services.PlaceOrderResult, error)
	createFn       func(context.Context, services.Actor, services.CreateGatewayOrderCommand) (services.GatewayCheckout, error)
	verifyFn       func(context.Context, services.Actor, services.VerifyPaymentCommand) (services.PlaceOrderResult, error)
	failureFn      func(context.Context, services.Actor, services.PaymentFailureCommand) (services.Order, error)
	retryFn        func(context.Context, services.Actor, string) (services.GatewayCheckout, error)
	verifyRetryFn  func(context.Context, services.Actor, services.VerifyRetryPaymentCommand) (services.Order, error)
	getFn          func(context.Context, services.Actor, string) (services.Order, error)
	listFn         func(context.Context, services.Actor, services.Pagination) (domain.CursorPage[services.Order], error)
	cancelFn       func(context.Context, services.Actor, services.CancelItemCommand) (services.CancelItemResult, error)
	updateStatusFn func(context.Context, services.Actor, services.UpdateOrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) QuoteCheckout(ctx context.Context, actor services.Actor, cmd services.QuoteCheckoutCommand) (services.CheckoutQuote, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, actor, cmd)
	}
	return services.CheckoutQuote{}, errNotStubbed
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, actor services.Actor, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, actor, cmd)
	}
	return services.PlaceOrderResult{}, errNotStubbed
}

func (s *stubOrderService) CreateGatewayOrder(ctx context.Context, actor services.Actor, cmd services.CreateGatewayOrderCommand) (services.GatewayCheckout, error) {
	if s.createFn != nil {
		return s.createFn(ctx, actor, cmd)
	}
	return services.GatewayCheckout{}, errNotStubbed
}

func (s *stubOrderService) VerifyPayment(ctx context.Context, actor services.Actor, cmd services.VerifyPaymentCommand) (services.PlaceOrderResult, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, actor, cmd)
	}
	return services.PlaceOrderResult{}, errNotStubbed
}

func (s *stubOrderService) RecordPaymentFailure(ctx context.Context, actor services.Actor, cmd services.PaymentFailureCommand) (services.Order, error) {
	if s.failureFn != nil {
		return s.failureFn(ctx, actor, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) RetryPayment(ctx context.Context, actor services.Actor, orderID string) (services.GatewayCheckout, error) {
	if s.retryFn != nil {
		return s.retryFn(ctx, actor, orderID)
	}
	return services.GatewayCheckout{}, errNotStubbed
}

func (s *stubOrderService) VerifyRetryPayment(ctx context.Context, actor services.Actor, cmd services.VerifyRetryPaymentCommand) (services.Order, error) {
	if s.verifyRetryFn != nil {
		return s.verifyRetryFn(ctx, actor, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor services.Actor, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, orderID)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) ListOrders(ctx context.Context, actor services.Actor, page services.Pagination) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, page)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) CancelItem(ctx context.Context, actor services.Actor, cmd services.CancelItemCommand) (services.CancelItemResult, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, actor, cmd)
	}
	return services.CancelItemResult{}, errNotStubbed
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, actor services.Actor, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, actor, cmd)
	}
	return services.Order{}, errNotStubbed
}

type stubReturnService struct {
	requestFn func(context.Context, services.Actor, services.RequestReturnCommand) (services.ReturnRequest, error)
	attachFn  func(context.Context, services.Actor, services.AttachEvidenceCommand) (services.ReturnRequest, error)
	approveFn func(context.Context, services.Actor, services.ResolveReturnCommand) (services.ReturnRequest, error)
	rejectFn  func(context.Context, services.Actor, services.ResolveReturnCommand) (services.ReturnRequest, error)
	listFn    func(context.Context, services.Actor, services.ReturnListFilter) (domain.CursorPage[services.ReturnRequest], error)
}

func (s *stubReturnService) RequestReturn(ctx context.Context, actor services.Actor, cmd services.RequestReturnCommand) (services.ReturnRequest, error) {
	if s.requestFn != nil {
		return s.requestFn(ctx, actor, cmd)
	}
	return services.ReturnRequest{}, errNotStubbed
}

func (s *stubReturnService) AttachEvidence(ctx context.Context, actor services.Actor, cmd services.AttachEvidenceCommand) (services.ReturnRequest, error) {
	if s.attachFn != nil {
		return s.attachFn(ctx, actor, cmd)
	}
	return services.ReturnRequest{}, errNotStubbed
}

func (s *stubReturnService) ApproveReturn(ctx context.Context, actor services.Actor, cmd services.ResolveReturnCommand) (services.ReturnRequest, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, actor, cmd)
	}
	return services.ReturnRequest{}, errNotStubbed
}

func (s *stubReturnService) RejectReturn(ctx context.Context, actor services.Actor, cmd services.ResolveReturnCommand) (services.ReturnRequest, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, actor, cmd)
	}
	return services.ReturnRequest{}, errNotStubbed
}

func (s *stubReturnService) ListReturns(ctx context.Context, actor services.Actor, filter services.ReturnListFilter) (domain.CursorPage[services.ReturnRequest], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, filter)
	}
	return domain.CursorPage[services.ReturnRequest]{}, nil
}

type stubCartService struct {
	view    services.CartView
	err     error
	added   []services.AddCartItemCommand
	removed []string
}

func (s *stubCartService) GetCart(context.Context, services.Actor) (services.CartView, error) {
	return s.view, s.err
}

func (s *stubCartService) AddItem(_ context.Context, _ services.Actor, cmd services.AddCartItemCommand) (services.CartView, error) {
	s.added = append(s.added, cmd)
	return s.view, s.err
}

func (s *stubCartService) RemoveItem(_ context.Context, _ services.Actor, itemID string) (services.CartView, error) {
	s.removed = append(s.removed, itemID)
	return s.view, s.err
}

type stubWalletService struct {
	wallet services.Wallet
	page   domain.CursorPage[services.WalletTransaction]
	gotPg  services.Pagination
}

func (s *stubWalletService) GetWallet(context.Context, services.Actor) (services.Wallet, error) {
	return s.wallet, nil
}

func (s *stubWalletService) ListTransactions(_ context.Context, _ services.Actor, page services.Pagination) (domain.CursorPage[services.WalletTransaction], error) {
	s.gotPg = page
	return s.page, nil
}

type stubAdminService struct {
	couponFn  func(context.Context, services.Actor, services.CreateCouponCommand) (services.Coupon, error)
	restockFn func(context.Context, services.Actor, services.RestockCommand) (services.Product, error)
}

func (s *stubAdminService) CreateCoupon(ctx context.Context, actor services.Actor, cmd services.CreateCouponCommand) (services.Coupon, error) {
	if s.couponFn != nil {
		return s.couponFn(ctx, actor, cmd)
	}
	return services.Coupon{}, errNotStubbed
}

func (s *stubAdminService) Restock(ctx context.Context, actor services.Actor, cmd services.RestockCommand) (services.Product, error) {
	if s.restockFn != nil {
		return s.restockFn(ctx, actor, cmd)
	}
	return services.Product{}, errNotStubbed
}

var (
	shopper  = &auth.Identity{UID: "user-1", Roles: []string{auth.RoleCustomer}}
	operator = &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}
)

// do sends a request through h with identity attached to the context.
func do(t *testing.T, h http.Handler, method, target, body string, identity *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["error"] != code {
		t.Fatalf("expected error code %q, got %v", code, body["error"])
	}
	if body["success"] != false {
		t.Fatalf("expected success=false in error body, got %v", body["success"])
	}
	return body
}
