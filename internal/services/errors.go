package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrInvalidInput signals the caller supplied malformed or missing data.
	ErrInvalidInput = errors.New("order service: invalid input")
	// ErrForbidden indicates the actor may not act on the resource.
	ErrForbidden = errors.New("order service: forbidden")
	// ErrUnavailable indicates the service cannot reach a required dependency.
	ErrUnavailable = errors.New("order service: unavailable")
	// ErrConflict indicates a concurrent modification or duplicate write.
	ErrConflict = errors.New("order service: conflict")

	// ErrOrderNotFound indicates the order does not exist or is not visible to the actor.
	ErrOrderNotFound = errors.New("order service: order not found")
	// ErrOrderItemNotFound indicates the order has no item with the given id.
	ErrOrderItemNotFound = errors.New("order service: order item not found")
	// ErrAddressNotFound indicates the shipping address does not belong to the user.
	ErrAddressNotFound = errors.New("order service: address not found")
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = errors.New("order service: product not found")
	// ErrCartEmpty indicates no eligible line remained after filtering the cart.
	ErrCartEmpty = errors.New("order service: cart is empty")
	// ErrCartItemNotFound indicates the cart has no line with the given id.
	ErrCartItemNotFound = errors.New("order service: cart item not found")
	// ErrCartLineLimit indicates a cart line would exceed the per-line quantity cap or live stock.
	ErrCartLineLimit = errors.New("order service: cart line limit exceeded")

	// ErrInvalidTransition indicates the order or item is not in a state that permits the operation.
	ErrInvalidTransition = errors.New("order service: invalid state transition")
	// ErrItemAlreadyCancelled indicates the item was cancelled earlier.
	ErrItemAlreadyCancelled = errors.New("order service: item already cancelled")
	// ErrCODLimitExceeded indicates a cash-on-delivery order exceeds the collection ceiling.
	ErrCODLimitExceeded = errors.New("order service: cash on delivery limit exceeded")

	// ErrInsufficientStock is wrapped by StockShortageError.
	ErrInsufficientStock = errors.New("order service: insufficient stock")
	// ErrCouponInvalid is wrapped by CouponError.
	ErrCouponInvalid = errors.New("order service: coupon invalid")
	// ErrInsufficientWalletBalance is wrapped by InsufficientFundsError.
	ErrInsufficientWalletBalance = errors.New("order service: insufficient wallet balance")

	// ErrPaymentVerificationFailed indicates the gateway signature or order id did not match.
	ErrPaymentVerificationFailed = errors.New("order service: payment verification failed")
	// ErrPaymentGatewayUnavailable indicates the payment gateway could not be reached.
	ErrPaymentGatewayUnavailable = errors.New("order service: payment gateway unavailable")
	// ErrPaymentAmountMismatch indicates the checkout no longer totals what the gateway order charged.
	ErrPaymentAmountMismatch = errors.New("order service: paid amount does not match checkout total")
	// ErrPaymentNotCommitted marks a captured payment whose order could not be committed locally.
	ErrPaymentNotCommitted = errors.New("order service: payment captured but order not committed")

	// ErrReturnNotAllowed indicates the item is not eligible for a return.
	ErrReturnNotAllowed = errors.New("order service: return not allowed")
	// ErrReturnWindowExpired indicates the delivery happened too long ago.
	ErrReturnWindowExpired = errors.New("order service: return window expired")
	// ErrReturnExists indicates a return was already requested for the item.
	ErrReturnExists = errors.New("order service: return already requested")
	// ErrReturnNotFound indicates the return request does not exist.
	ErrReturnNotFound = errors.New("order service: return not found")
	// ErrReturnAlreadyResolved indicates the return was approved or rejected earlier.
	ErrReturnAlreadyResolved = errors.New("order service: return already resolved")

	// ErrCouponExists indicates a coupon with the same code or name exists.
	ErrCouponExists = errors.New("order service: coupon already exists")
)

// StockShortage reports one cart line that cannot be fulfilled.
type StockShortage struct {
	ProductID   string
	ProductName string
	Size        string
	Requested   int
	Available   int
}

// StockShortageError lists every short line of a rejected placement.
type StockShortageError struct {
	Lines []StockShortage
}

func (e *StockShortageError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		parts = append(parts, fmt.Sprintf("%s/%s requested %d available %d", line.ProductID, line.Size, line.Requested, line.Available))
	}
	return fmt.Sprintf("%v: %s", ErrInsufficientStock, strings.Join(parts, "; "))
}

func (e *StockShortageError) Unwrap() error { return ErrInsufficientStock }

// CouponReason enumerates coupon rejection causes in evaluation order.
type CouponReason string

const (
	CouponReasonNotFound      CouponReason = "not_found"
	CouponReasonInactive      CouponReason = "inactive"
	CouponReasonNotStarted    CouponReason = "not_started"
	CouponReasonExpired       CouponReason = "expired"
	CouponReasonLimitReached  CouponReason = "limit_reached"
	CouponReasonAlreadyUsed   CouponReason = "already_used"
	CouponReasonMinimumNotMet CouponReason = "minimum_not_met"
)

// CouponError reports why a coupon cannot be applied.
type CouponError struct {
	Code   string
	Reason CouponReason
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("%v: %s (%s)", ErrCouponInvalid, e.Code, e.Reason)
}

func (e *CouponError) Unwrap() error { return ErrCouponInvalid }

// InsufficientFundsError carries the amounts of a rejected wallet debit.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%v: required %d available %d", ErrInsufficientWalletBalance, e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientWalletBalance }

// PaymentCommitError is returned when the gateway captured a payment but the local transaction
// failed. Callers must surface it and direct the customer to support.
type PaymentCommitError struct {
	GatewayOrderID   string
	GatewayPaymentID string
	OrderID          string
	Err              error
}

func (e *PaymentCommitError) Error() string {
	return fmt.Sprintf("%v: gateway order %s payment %s: %v", ErrPaymentNotCommitted, e.GatewayOrderID, e.GatewayPaymentID, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause so callers can inspect either.
func (e *PaymentCommitError) Unwrap() []error {
	return []error{ErrPaymentNotCommitted, e.Err}
}

func translateRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound != nil {
				return notFound
			}
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}
