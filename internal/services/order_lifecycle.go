package services

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var shippingTransitions = map[domain.OrderStatus]domain.OrderStatus{
	domain.OrderStatusPlaced:     domain.OrderStatusProcessing,
	domain.OrderStatusProcessing: domain.OrderStatusShipped,
	domain.OrderStatusShipped:    domain.OrderStatusDelivered,
}

// CancelItem cancels a single line before shipment, returns its stock and credits prepaid money
// back to the wallet.
func (s *orderService) CancelItem(ctx context.Context, actor Actor, cmd CancelItemCommand) (result CancelItemResult, err error) {
	ctx, span := startSpan(ctx, "orders.CancelItem", attribute.String("order_id", cmd.OrderID), attribute.String("item_id", cmd.ItemID))
	defer func() { endSpan(span, err) }()

	if err := requireUser(actor); err != nil {
		return CancelItemResult{}, err
	}
	if strings.TrimSpace(cmd.ItemID) == "" {
		return CancelItemResult{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if strings.TrimSpace(cmd.OrderID) == "" {
		cmd.OrderID, err = s.store.FindOrderIDByItem(ctx, actor.UserID, cmd.ItemID)
		if err != nil {
			return CancelItemResult{}, translateRepoError(err, ErrOrderItemNotFound)
		}
		span.SetAttributes(attribute.String("order_id", cmd.OrderID))
	}

	var (
		order  domain.Order
		refund int64
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		order, err = loadOrder(ctx, tx, actor, cmd.OrderID)
		if err != nil {
			return err
		}
		item, ok := order.Item(cmd.ItemID)
		if !ok {
			return ErrOrderItemNotFound
		}
		if item.Status == domain.ItemStatusCancelled {
			return ErrItemAlreadyCancelled
		}
		if order.Status != domain.OrderStatusPlaced && order.Status != domain.OrderStatusProcessing {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
		}
		if item.Status != domain.ItemStatusPlaced {
			return fmt.Errorf("%w: item %s is %s", ErrInvalidTransition, item.ID, item.Status)
		}

		if err := s.stock.Release(ctx, tx, item.ProductID, item.Size, item.Quantity); err != nil {
			return err
		}

		now := s.now()
		refund = 0
		prepaid := order.PaymentMethod == domain.PaymentMethodRazorpay || order.PaymentMethod == domain.PaymentMethodWallet
		if prepaid && order.PaymentStatus == domain.PaymentStatusPaid {
			refund = itemRefund(*item)
		}
		if refund > 0 {
			if _, err := s.wallets.Credit(ctx, tx, WalletEntry{
				UserID:  order.UserID,
				Amount:  refund,
				Reason:  walletReasonCancellation,
				OrderID: order.ID,
			}); err != nil {
				return err
			}
			if err := tx.CreatePaymentTransaction(ctx, domain.PaymentTransaction{
				ID:        transactionIDPrefix + s.newID(),
				UserID:    order.UserID,
				OrderID:   order.ID,
				Type:      domain.PaymentTransactionRefund,
				Method:    domain.PaymentMethodWallet,
				Amount:    refund,
				Status:    transactionStatusSuccess,
				Reason:    walletReasonCancellation,
				CreatedAt: now,
			}); err != nil {
				return translateRepoError(err, nil)
			}
		}

		item.Status = domain.ItemStatusCancelled
		item.CancelReason = reason
		item.CancelledAt = &now
		item.RefundAmount = refund
		if order.AllItemsCancelled() {
			order.Status = domain.OrderStatusCancelled
			if order.PaymentStatus == domain.PaymentStatusPaid && prepaid {
				order.PaymentStatus = domain.PaymentStatusRefunded
			}
		}
		order.UpdatedAt = now
		return tx.PutOrder(ctx, order)
	})
	if err != nil {
		return CancelItemResult{}, err
	}

	s.metrics.recordRefund(ctx, walletReasonCancellation, refund)
	s.logger(ctx, "order.item.cancelled", map[string]any{
		"orderId": order.ID,
		"itemId":  cmd.ItemID,
		"refund":  refund,
		"status":  string(order.Status),
	})
	s.publish(ctx, OrderEvent{
		Type:    orderEventItemCancelled,
		OrderID: order.ID,
		UserID:  order.UserID,
		ItemID:  cmd.ItemID,
		Status:  string(order.Status),
		Amount:  refund,
	})
	return CancelItemResult{Order: order, RefundAmount: refund}, nil
}

// UpdateOrderStatus advances an order one step along Placed, Processing, Shipped, Delivered.
// Delivery marks every live line delivered and settles cash on delivery.
func (s *orderService) UpdateOrderStatus(ctx context.Context, actor Actor, cmd UpdateOrderStatusCommand) (Order, error) {
	if err := requireAdmin(actor); err != nil {
		return Order{}, err
	}

	var (
		order    domain.Order
		previous domain.OrderStatus
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		order, err = loadOrder(ctx, tx, actor, cmd.OrderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if next, ok := shippingTransitions[order.Status]; !ok || next != cmd.Status {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, cmd.Status)
		}

		now := s.now()
		order.Status = cmd.Status
		order.UpdatedAt = now
		if cmd.Status == domain.OrderStatusDelivered {
			order.DeliveredAt = &now
			for i := range order.Items {
				if order.Items[i].Status == domain.ItemStatusPlaced {
					order.Items[i].Status = domain.ItemStatusDelivered
				}
			}
			if order.PaymentMethod == domain.PaymentMethodCOD && order.PaymentStatus == domain.PaymentStatusUnpaid {
				order.PaymentStatus = domain.PaymentStatusPaid
				if err := tx.CreatePaymentTransaction(ctx, domain.PaymentTransaction{
					ID:        transactionIDPrefix + s.newID(),
					UserID:    order.UserID,
					OrderID:   order.ID,
					Type:      domain.PaymentTransactionPayment,
					Method:    domain.PaymentMethodCOD,
					Amount:    collectible(order),
					Status:    transactionStatusSuccess,
					Reason:    "collected_on_delivery",
					CreatedAt: now,
				}); err != nil {
					return translateRepoError(err, nil)
				}
			}
		}
		return tx.PutOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(order.Status),
	})
	s.publish(ctx, OrderEvent{
		Type:     orderEventStatusChanged,
		OrderID:  order.ID,
		UserID:   order.UserID,
		Status:   string(order.Status),
		Metadata: map[string]string{"from": string(previous)},
	})
	return order, nil
}

// collectible is what the courier collects for a cash on delivery order: the lines still live at
// delivery, net of their discount shares.
func collectible(order domain.Order) int64 {
	var total int64
	for _, item := range order.Items {
		if item.Status != domain.ItemStatusCancelled {
			total += itemRefund(item)
		}
	}
	return total
}
