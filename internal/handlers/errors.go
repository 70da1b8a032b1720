package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/services"
)

type outOfStockLine struct {
	ProductName    string `json:"productName"`
	Size           string `json:"size"`
	RequestedQty   int    `json:"requestedQty"`
	AvailableStock int    `json:"availableStock"`
}

// writeServiceError maps service failures onto the storefront error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	httpx.WriteError(ctx, w, toHTTPError(ctx, err))
}

func toHTTPError(ctx context.Context, err error) httpx.Error {
	var (
		shortage *services.StockShortageError
		coupon   *services.CouponError
		funds    *services.InsufficientFundsError
		commit   *services.PaymentCommitError
		verify   *services.PaymentVerificationError
	)

	switch {
	case errors.As(err, &commit):
		requestctx.Logger(ctx).Error("payment captured but order not committed",
			zap.String("gateway_order_id", commit.GatewayOrderID),
			zap.String("gateway_payment_id", commit.GatewayPaymentID),
			zap.String("order_id", commit.OrderID),
			zap.Error(commit.Err),
		)
		details := map[string]any{"razorpayOrderId": commit.GatewayOrderID, "razorpayPaymentId": commit.GatewayPaymentID}
		if errors.Is(commit.Err, services.ErrPaymentAmountMismatch) {
			return httpx.NewError("payment_amount_mismatch", "payment was received for a different amount than the current checkout; please contact support", http.StatusInternalServerError).
				WithDetails(details)
		}
		return httpx.NewError("payment_not_committed", "payment was received but the order could not be saved; please contact support", http.StatusInternalServerError).
			WithDetails(details)
	case errors.As(err, &shortage):
		lines := make([]outOfStockLine, 0, len(shortage.Lines))
		for _, line := range shortage.Lines {
			name := line.ProductName
			if name == "" {
				name = line.ProductID
			}
			lines = append(lines, outOfStockLine{ProductName: name, Size: line.Size, RequestedQty: line.Requested, AvailableStock: line.Available})
		}
		return httpx.NewError("out_of_stock", "some items are out of stock", http.StatusConflict).
			WithDetails(map[string]any{"outOfStock": lines})
	case errors.As(err, &coupon):
		status := http.StatusBadRequest
		if coupon.Reason == services.CouponReasonNotFound {
			status = http.StatusNotFound
		}
		return httpx.NewError("coupon_"+string(coupon.Reason), couponMessage(coupon.Reason), status).
			WithDetails(map[string]any{"couponCode": coupon.Code})
	case errors.As(err, &funds):
		return httpx.NewError("insufficient_wallet_balance", "wallet balance is insufficient", http.StatusBadRequest).
			WithDetails(map[string]any{"required": funds.Required, "available": funds.Available})
	case errors.As(err, &verify) && verify.OrderID != "":
		return httpx.NewError("payment_verification_failed", "payment verification failed; the order can be paid again from your orders", http.StatusPaymentRequired).
			WithDetails(map[string]any{"orderId": verify.OrderID})
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		return httpx.NewError("payment_verification_failed", "payment verification failed", http.StatusPaymentRequired)
	case errors.Is(err, services.ErrPaymentGatewayUnavailable):
		return httpx.NewError("payment_gateway_unavailable", "payment gateway is unavailable, please retry", http.StatusBadGateway)
	case errors.Is(err, services.ErrCODLimitExceeded):
		return httpx.NewError("cod_limit_exceeded", "cash on delivery is not available for this order amount", http.StatusBadRequest)
	case errors.Is(err, services.ErrCartEmpty):
		return httpx.NewError("cart_empty", "cart has no purchasable items", http.StatusBadRequest)
	case errors.Is(err, services.ErrCartLineLimit):
		return httpx.NewError("cart_line_limit", "quantity exceeds the allowed limit for this item", http.StatusBadRequest)
	case errors.Is(err, services.ErrReturnWindowExpired):
		return httpx.NewError("return_window_expired", "return window has expired", http.StatusBadRequest)
	case errors.Is(err, services.ErrReturnNotAllowed):
		return httpx.NewError("return_not_allowed", "item is not eligible for return", http.StatusBadRequest)
	case errors.Is(err, services.ErrItemAlreadyCancelled):
		return httpx.NewError("item_already_cancelled", "item is already cancelled", http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidTransition):
		return httpx.NewError("invalid_state", "operation not allowed in the current order state", http.StatusConflict)
	case errors.Is(err, services.ErrReturnExists), errors.Is(err, services.ErrReturnAlreadyResolved):
		return httpx.NewError("return_conflict", "return request was already processed", http.StatusConflict)
	case errors.Is(err, services.ErrCouponExists):
		return httpx.NewError("coupon_exists", "a coupon with this code or name already exists", http.StatusConflict)
	case errors.Is(err, services.ErrConflict):
		return httpx.NewError("conflict", "the resource changed concurrently, please retry", http.StatusConflict)
	case errors.Is(err, services.ErrInvalidInput):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrForbidden):
		return httpx.NewError("forbidden", "not allowed", http.StatusForbidden)
	case errors.Is(err, services.ErrOrderNotFound):
		return httpx.NewError("order_not_found", "order not found", http.StatusNotFound)
	case errors.Is(err, services.ErrOrderItemNotFound):
		return httpx.NewError("item_not_found", "order item not found", http.StatusNotFound)
	case errors.Is(err, services.ErrAddressNotFound):
		return httpx.NewError("address_not_found", "address not found", http.StatusNotFound)
	case errors.Is(err, services.ErrProductNotFound):
		return httpx.NewError("product_not_found", "product not found", http.StatusNotFound)
	case errors.Is(err, services.ErrCartItemNotFound):
		return httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound)
	case errors.Is(err, services.ErrReturnNotFound):
		return httpx.NewError("return_not_found", "return request not found", http.StatusNotFound)
	case errors.Is(err, services.ErrUnavailable):
		return httpx.NewError("unavailable", "service temporarily unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout)
	}

	requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
	return httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError)
}

func couponMessage(reason services.CouponReason) string {
	switch reason {
	case services.CouponReasonNotFound:
		return "coupon not found"
	case services.CouponReasonInactive:
		return "coupon is not active"
	case services.CouponReasonNotStarted:
		return "coupon is not yet active"
	case services.CouponReasonExpired:
		return "coupon has expired"
	case services.CouponReasonLimitReached:
		return "coupon usage limit reached"
	case services.CouponReasonAlreadyUsed:
		return "coupon already used"
	case services.CouponReasonMinimumNotMet:
		return "order total does not meet the coupon minimum"
	default:
		return "coupon cannot be applied"
	}
}
