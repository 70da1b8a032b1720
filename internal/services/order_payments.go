package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
)

// PaymentVerificationError reports a rejected gateway callback. OrderID names the Payment Failed
// order recorded for it, if any, so the customer can retry.
type PaymentVerificationError struct {
	OrderID        string
	GatewayOrderID string
}

func (e *PaymentVerificationError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("%v: gateway order %s", ErrPaymentVerificationFailed, e.GatewayOrderID)
	}
	return fmt.Sprintf("%v: gateway order %s recorded as %s", ErrPaymentVerificationFailed, e.GatewayOrderID, e.OrderID)
}

func (e *PaymentVerificationError) Unwrap() error { return ErrPaymentVerificationFailed }

// CreateGatewayOrder prices the cart, checks stock without reserving it and registers the payable
// amount with the gateway. Only the pending checkout is persisted; the order is created once the
// payment is verified against it.
func (s *orderService) CreateGatewayOrder(ctx context.Context, actor Actor, cmd CreateGatewayOrderCommand) (result GatewayCheckout, err error) {
	ctx, span := startSpan(ctx, "orders.CreateGatewayOrder")
	defer func() { endSpan(span, err) }()

	if err := requireUser(actor); err != nil {
		return GatewayCheckout{}, err
	}
	addressID := strings.TrimSpace(cmd.AddressID)
	couponCode := strings.TrimSpace(cmd.CouponCode)
	if addressID == "" {
		return GatewayCheckout{}, fmt.Errorf("%w: address id is required", ErrInvalidInput)
	}

	var quote checkoutQuote
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		quote, err = s.buildQuote(ctx, tx, actor.UserID, addressID, couponCode)
		if err != nil {
			return err
		}
		return s.stock.Check(ctx, tx, quote.stockLines())
	})
	if err != nil {
		return GatewayCheckout{}, err
	}
	amount := quote.finalTotal()
	if amount <= 0 {
		return GatewayCheckout{}, fmt.Errorf("%w: nothing to pay through the gateway", ErrInvalidInput)
	}

	receipt := "rcpt_" + s.newID()
	gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
		Amount:   amount,
		Currency: s.currency,
		Receipt:  receipt,
		Notes:    map[string]string{"userId": actor.UserID},
	})
	if err != nil {
		return GatewayCheckout{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
	}

	now := s.now()
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		return translateRepoError(tx.CreatePendingCheckout(ctx, domain.PendingCheckout{
			GatewayOrderID: gatewayOrder.ID,
			UserID:         actor.UserID,
			AddressID:      addressID,
			CouponCode:     couponCode,
			Amount:         amount,
			Currency:       s.currency,
			Status:         domain.PendingCheckoutOpen,
			CreatedAt:      now,
			UpdatedAt:      now,
		}), nil)
	})
	if err != nil {
		return GatewayCheckout{}, err
	}

	s.logger(ctx, "order.gateway_order.created", map[string]any{
		"userId":         actor.UserID,
		"gatewayOrderId": gatewayOrder.ID,
		"amount":         amount,
	})
	return GatewayCheckout{
		GatewayOrderID: gatewayOrder.ID,
		Amount:         amount,
		Currency:       s.currency,
		KeyID:          s.gateway.KeyID(),
	}, nil
}

// VerifyPayment checks the gateway signature and, when valid, commits the order exactly as a
// wallet placement would, provided the cart still totals what the gateway order was issued for.
// A bad signature records a Payment Failed order for later retry. Replaying a settled callback
// returns the order it created.
func (s *orderService) VerifyPayment(ctx context.Context, actor Actor, cmd VerifyPaymentCommand) (result PlaceOrderResult, err error) {
	ctx, span := startSpan(ctx, "orders.VerifyPayment", attribute.String("gateway_order_id", cmd.GatewayOrderID))
	defer func() { endSpan(span, err) }()

	if err := requireUser(actor); err != nil {
		return PlaceOrderResult{}, err
	}
	if strings.TrimSpace(cmd.GatewayOrderID) == "" || strings.TrimSpace(cmd.GatewayPaymentID) == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: gateway order and payment ids are required", ErrInvalidInput)
	}

	if !s.gateway.VerifySignature(cmd.GatewayOrderID, cmd.GatewayPaymentID, cmd.Signature) {
		failed, recErr := s.RecordPaymentFailure(ctx, actor, PaymentFailureCommand{
			GatewayOrderID:   cmd.GatewayOrderID,
			GatewayPaymentID: cmd.GatewayPaymentID,
			AddressID:        cmd.AddressID,
			CouponCode:       cmd.CouponCode,
			Reason:           "signature_mismatch",
		})
		if recErr != nil {
			s.logger(ctx, "order.payment.failure_not_recorded", map[string]any{
				"gatewayOrderId": cmd.GatewayOrderID,
				"error":          recErr.Error(),
			})
		}
		return PlaceOrderResult{}, &PaymentVerificationError{OrderID: failed.ID, GatewayOrderID: cmd.GatewayOrderID}
	}

	var (
		order         domain.Order
		ineligible    []IneligibleLine
		replayed      bool
		failedOrderID string
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		replayed, failedOrderID, ineligible = false, "", nil
		checkout, err := s.loadPendingCheckout(ctx, tx, actor, cmd.GatewayOrderID, cmd.AddressID, cmd.CouponCode)
		if err != nil {
			return err
		}
		switch checkout.Status {
		case domain.PendingCheckoutPlaced:
			order, err = tx.GetOrder(ctx, checkout.OrderID)
			if err != nil {
				return translateRepoError(err, ErrOrderNotFound)
			}
			if order.GatewayPaymentID != cmd.GatewayPaymentID {
				return &PaymentVerificationError{OrderID: order.ID, GatewayOrderID: cmd.GatewayOrderID}
			}
			replayed = true
			return nil
		case domain.PendingCheckoutFailed:
			failedOrderID = checkout.OrderID
			return nil
		}

		quote, err := s.buildQuote(ctx, tx, actor.UserID, checkout.AddressID, checkout.CouponCode)
		if err != nil {
			return err
		}
		if total := quote.finalTotal(); total != checkout.Amount {
			return fmt.Errorf("%w: gateway order %s was issued for %d, checkout now totals %d",
				ErrPaymentAmountMismatch, checkout.GatewayOrderID, checkout.Amount, total)
		}
		ineligible = quote.ineligible
		if err := s.stock.Reserve(ctx, tx, quote.stockLines()); err != nil {
			return err
		}
		order = s.newOrder(actor.UserID, quote, domain.PaymentMethodRazorpay)
		order.PaymentStatus = domain.PaymentStatusPaid
		order.GatewayOrderID = cmd.GatewayOrderID
		order.GatewayPaymentID = cmd.GatewayPaymentID
		if err := s.commitPlacedOrder(ctx, tx, order, quote, domain.PaymentTransaction{Status: transactionStatusSuccess}); err != nil {
			return err
		}
		checkout.Status = domain.PendingCheckoutPlaced
		checkout.OrderID = order.ID
		checkout.UpdatedAt = order.CreatedAt
		return translateRepoError(tx.PutPendingCheckout(ctx, checkout), nil)
	})
	var verifyErr *PaymentVerificationError
	switch {
	case errors.As(err, &verifyErr):
		return PlaceOrderResult{}, err
	case err != nil:
		s.logger(ctx, "order.payment.commit_failed", map[string]any{
			"userId":           actor.UserID,
			"gatewayOrderId":   cmd.GatewayOrderID,
			"gatewayPaymentId": cmd.GatewayPaymentID,
			"error":            err.Error(),
		})
		return PlaceOrderResult{}, &PaymentCommitError{
			GatewayOrderID:   cmd.GatewayOrderID,
			GatewayPaymentID: cmd.GatewayPaymentID,
			Err:              err,
		}
	case replayed:
		return PlaceOrderResult{Order: order}, nil
	case failedOrderID != "":
		// The failure was recorded first; the order settles through the retry path.
		settled, err := s.VerifyRetryPayment(ctx, actor, VerifyRetryPaymentCommand{
			OrderID:          failedOrderID,
			GatewayOrderID:   cmd.GatewayOrderID,
			GatewayPaymentID: cmd.GatewayPaymentID,
			Signature:        cmd.Signature,
		})
		if err != nil {
			return PlaceOrderResult{}, err
		}
		return PlaceOrderResult{Order: settled}, nil
	}

	s.metrics.recordPlaced(ctx, string(order.PaymentMethod))
	s.logger(ctx, "order.placed", map[string]any{
		"orderId":        order.ID,
		"userId":         order.UserID,
		"paymentMethod":  string(order.PaymentMethod),
		"finalAmount":    order.FinalAmount,
		"gatewayOrderId": order.GatewayOrderID,
	})
	s.publish(ctx, OrderEvent{Type: orderEventPlaced, OrderID: order.ID, UserID: order.UserID, Status: string(order.Status), Amount: order.FinalAmount})
	return PlaceOrderResult{Order: order, Ineligible: ineligible}, nil
}

// RecordPaymentFailure persists a Payment Failed order for an open pending checkout so the
// customer can retry later. Stock, coupons and the cart are left untouched. Reporting the same
// failure again returns the order already recorded.
func (s *orderService) RecordPaymentFailure(ctx context.Context, actor Actor, cmd PaymentFailureCommand) (Order, error) {
	if err := requireUser(actor); err != nil {
		return Order{}, err
	}
	if strings.TrimSpace(cmd.GatewayOrderID) == "" {
		return Order{}, fmt.Errorf("%w: gateway order id is required", ErrInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "payment_failed"
	}

	var (
		order    domain.Order
		replayed bool
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		replayed = false
		checkout, err := s.loadPendingCheckout(ctx, tx, actor, cmd.GatewayOrderID, cmd.AddressID, cmd.CouponCode)
		if err != nil {
			return err
		}
		switch checkout.Status {
		case domain.PendingCheckoutFailed:
			order, err = tx.GetOrder(ctx, checkout.OrderID)
			replayed = err == nil
			return translateRepoError(err, ErrOrderNotFound)
		case domain.PendingCheckoutPlaced:
			return fmt.Errorf("%w: gateway order %s already settled as %s", ErrInvalidTransition, checkout.GatewayOrderID, checkout.OrderID)
		}

		quote, err := s.buildQuote(ctx, tx, actor.UserID, checkout.AddressID, checkout.CouponCode)
		var couponErr *CouponError
		if errors.As(err, &couponErr) {
			// The coupon is re-validated on retry; record the attempt without it.
			quote, err = s.buildQuote(ctx, tx, actor.UserID, checkout.AddressID, "")
		}
		if err != nil {
			return err
		}

		order = s.newOrder(actor.UserID, quote, domain.PaymentMethodRazorpay)
		order.Status = domain.OrderStatusPaymentFailed
		order.PaymentStatus = domain.PaymentStatusUnpaid
		order.GatewayOrderID = cmd.GatewayOrderID
		order.GatewayPaymentID = cmd.GatewayPaymentID
		if err := tx.CreateOrder(ctx, order); err != nil {
			return translateRepoError(err, nil)
		}
		if err := tx.CreatePaymentTransaction(ctx, domain.PaymentTransaction{
			ID:               transactionIDPrefix + s.newID(),
			UserID:           order.UserID,
			OrderID:          order.ID,
			Type:             domain.PaymentTransactionPayment,
			Method:           domain.PaymentMethodRazorpay,
			Amount:           order.FinalAmount,
			Status:           transactionStatusFailed,
			Reason:           reason,
			GatewayOrderID:   cmd.GatewayOrderID,
			GatewayPaymentID: cmd.GatewayPaymentID,
			CreatedAt:        order.CreatedAt,
		}); err != nil {
			return translateRepoError(err, nil)
		}
		checkout.Status = domain.PendingCheckoutFailed
		checkout.OrderID = order.ID
		checkout.UpdatedAt = order.CreatedAt
		return translateRepoError(tx.PutPendingCheckout(ctx, checkout), nil)
	})
	if err != nil {
		return Order{}, err
	}
	if replayed {
		return order, nil
	}

	s.metrics.recordPaymentFailed(ctx, reason)
	s.logger(ctx, "order.payment.failed", map[string]any{
		"orderId":        order.ID,
		"userId":         order.UserID,
		"gatewayOrderId": cmd.GatewayOrderID,
		"reason":         reason,
	})
	s.publish(ctx, OrderEvent{
		Type:     orderEventPaymentFailed,
		OrderID:  order.ID,
		UserID:   order.UserID,
		Status:   string(order.Status),
		Amount:   order.FinalAmount,
		Metadata: map[string]string{"reason": reason},
	})
	return order, nil
}

// loadPendingCheckout returns the checkout issued to actor for gatewayOrderID. Address and coupon,
// when the client echoes them, must match what the gateway order was issued for.
func (s *orderService) loadPendingCheckout(ctx context.Context, tx repositories.Tx, actor Actor, gatewayOrderID, addressID, couponCode string) (domain.PendingCheckout, error) {
	checkout, err := tx.GetPendingCheckout(ctx, gatewayOrderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.PendingCheckout{}, &PaymentVerificationError{GatewayOrderID: gatewayOrderID}
		}
		return domain.PendingCheckout{}, translateRepoError(err, nil)
	}
	if checkout.UserID != actor.UserID {
		return domain.PendingCheckout{}, &PaymentVerificationError{GatewayOrderID: gatewayOrderID}
	}
	if addressID = strings.TrimSpace(addressID); addressID != "" && addressID != checkout.AddressID {
		return domain.PendingCheckout{}, &PaymentVerificationError{OrderID: checkout.OrderID, GatewayOrderID: gatewayOrderID}
	}
	if couponCode = strings.TrimSpace(couponCode); couponCode != "" && !strings.EqualFold(couponCode, checkout.CouponCode) {
		return domain.PendingCheckout{}, &PaymentVerificationError{OrderID: checkout.OrderID, GatewayOrderID: gatewayOrderID}
	}
	return checkout, nil
}

// RetryPayment issues a fresh gateway order for a Payment Failed order after re-checking stock and
// the coupon. The stored gateway order id is replaced so callbacks for the old one are rejected.
func (s *orderService) RetryPayment(ctx context.Context, actor Actor, orderID string) (result GatewayCheckout, err error) {
	ctx, span := startSpan(ctx, "orders.RetryPayment", attribute.String("order_id", orderID))
	defer func() { endSpan(span, err) }()

	if err := requireUser(actor); err != nil {
		return GatewayCheckout{}, err
	}

	var order domain.Order
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		order, err = s.loadRetryableOrder(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		return s.checkRetry(ctx, tx, order)
	})
	if err != nil {
		return GatewayCheckout{}, err
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
		Amount:   order.FinalAmount,
		Currency: s.currency,
		Receipt:  order.ID,
		Notes:    map[string]string{"userId": order.UserID, "orderId": order.ID},
	})
	if err != nil {
		return GatewayCheckout{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		current, err := s.loadRetryableOrder(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		current.GatewayOrderID = gatewayOrder.ID
		current.GatewayPaymentID = ""
		current.UpdatedAt = s.now()
		return tx.PutOrder(ctx, current)
	})
	if err != nil {
		return GatewayCheckout{}, err
	}

	s.logger(ctx, "order.payment.retry", map[string]any{
		"orderId":        order.ID,
		"gatewayOrderId": gatewayOrder.ID,
	})
	return GatewayCheckout{
		OrderID:        order.ID,
		GatewayOrderID: gatewayOrder.ID,
		Amount:         order.FinalAmount,
		Currency:       s.currency,
		KeyID:          s.gateway.KeyID(),
	}, nil
}

// VerifyRetryPayment settles a retried payment. The callback must reference the gateway order most
// recently issued for the order. Replaying the callback of a settled order returns it unchanged.
func (s *orderService) VerifyRetryPayment(ctx context.Context, actor Actor, cmd VerifyRetryPaymentCommand) (result Order, err error) {
	ctx, span := startSpan(ctx, "orders.VerifyRetryPayment", attribute.String("order_id", cmd.OrderID))
	defer func() { endSpan(span, err) }()

	if err := requireUser(actor); err != nil {
		return Order{}, err
	}
	if strings.TrimSpace(cmd.GatewayOrderID) == "" || strings.TrimSpace(cmd.GatewayPaymentID) == "" {
		return Order{}, fmt.Errorf("%w: gateway order and payment ids are required", ErrInvalidInput)
	}

	var (
		order   domain.Order
		settled bool
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		order, err = loadOrder(ctx, tx, actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if order.GatewayOrderID != cmd.GatewayOrderID {
			return &PaymentVerificationError{OrderID: order.ID, GatewayOrderID: cmd.GatewayOrderID}
		}
		if order.Status == domain.OrderStatusPlaced && order.GatewayPaymentID == cmd.GatewayPaymentID {
			settled = true
			return nil
		}
		if order.Status != domain.OrderStatusPaymentFailed {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if settled {
		return order, nil
	}

	if !s.gateway.VerifySignature(cmd.GatewayOrderID, cmd.GatewayPaymentID, cmd.Signature) {
		s.metrics.recordPaymentFailed(ctx, "signature_mismatch")
		return Order{}, &PaymentVerificationError{OrderID: order.ID, GatewayOrderID: cmd.GatewayOrderID}
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		current, err := s.loadRetryableOrder(ctx, tx, actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if current.GatewayOrderID != cmd.GatewayOrderID {
			return &PaymentVerificationError{OrderID: current.ID, GatewayOrderID: cmd.GatewayOrderID}
		}
		if err := s.stock.Reserve(ctx, tx, orderStockLines(current)); err != nil {
			return err
		}
		if current.CouponCode != "" {
			validation, err := s.coupons.Validate(ctx, tx, current.CouponCode, current.UserID, current.TotalAmount)
			if err != nil {
				return err
			}
			if err := s.coupons.Redeem(ctx, tx, validation.Coupon, current.UserID, current.ID); err != nil {
				return err
			}
		}

		now := s.now()
		current.Status = domain.OrderStatusPlaced
		current.PaymentStatus = domain.PaymentStatusPaid
		current.GatewayPaymentID = cmd.GatewayPaymentID
		current.UpdatedAt = now
		if err := tx.PutOrder(ctx, current); err != nil {
			return translateRepoError(err, nil)
		}
		if err := tx.CreatePaymentTransaction(ctx, domain.PaymentTransaction{
			ID:               transactionIDPrefix + s.newID(),
			UserID:           current.UserID,
			OrderID:          current.ID,
			Type:             domain.PaymentTransactionPayment,
			Method:           domain.PaymentMethodRazorpay,
			Amount:           current.FinalAmount,
			Status:           transactionStatusSuccess,
			GatewayOrderID:   cmd.GatewayOrderID,
			GatewayPaymentID: cmd.GatewayPaymentID,
			CreatedAt:        now,
		}); err != nil {
			return translateRepoError(err, nil)
		}
		order = current
		return tx.DeleteCart(ctx, current.UserID)
	})
	if err != nil {
		s.logger(ctx, "order.payment.commit_failed", map[string]any{
			"orderId":          cmd.OrderID,
			"gatewayOrderId":   cmd.GatewayOrderID,
			"gatewayPaymentId": cmd.GatewayPaymentID,
			"error":            err.Error(),
		})
		return Order{}, &PaymentCommitError{
			GatewayOrderID:   cmd.GatewayOrderID,
			GatewayPaymentID: cmd.GatewayPaymentID,
			OrderID:          cmd.OrderID,
			Err:              err,
		}
	}

	s.metrics.recordPlaced(ctx, string(order.PaymentMethod))
	s.logger(ctx, "order.placed", map[string]any{
		"orderId":        order.ID,
		"userId":         order.UserID,
		"paymentMethod":  string(order.PaymentMethod),
		"finalAmount":    order.FinalAmount,
		"gatewayOrderId": order.GatewayOrderID,
		"retry":          true,
	})
	s.publish(ctx, OrderEvent{Type: orderEventPlaced, OrderID: order.ID, UserID: order.UserID, Status: string(order.Status), Amount: order.FinalAmount})
	return order, nil
}

func (s *orderService) loadRetryableOrder(ctx context.Context, tx repositories.Tx, actor Actor, orderID string) (domain.Order, error) {
	order, err := loadOrder(ctx, tx, actor, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != actor.UserID {
		return domain.Order{}, ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusPaymentFailed {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
	}
	if order.PaymentMethod != domain.PaymentMethodRazorpay {
		return domain.Order{}, fmt.Errorf("%w: order %s was not paid through the gateway", ErrInvalidTransition, order.ID)
	}
	return order, nil
}

// checkRetry verifies that the stored snapshot can still be fulfilled at the recorded prices.
func (s *orderService) checkRetry(ctx context.Context, tx repositories.Tx, order domain.Order) error {
	if err := s.stock.Check(ctx, tx, orderStockLines(order)); err != nil {
		return err
	}
	if order.CouponCode == "" {
		return nil
	}
	_, err := s.coupons.Validate(ctx, tx, order.CouponCode, order.UserID, order.TotalAmount)
	return err
}

func orderStockLines(order domain.Order) []StockLine {
	lines := make([]StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity})
	}
	return lines
}
