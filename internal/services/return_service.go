package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	defaultReturnWindowDays = 7
	maxEvidenceBytes        = 5 << 20
	maxEvidenceFiles        = 5
)

var evidenceExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ReturnServiceDeps bundles collaborators required by the return workflow.
type ReturnServiceDeps struct {
	Store            repositories.Store
	Evidence         EvidenceUploader
	Events           OrderEventPublisher
	Meter            metric.Meter
	Clock            func() time.Time
	IDGenerator      func() string
	Logger           func(ctx context.Context, event string, fields map[string]any)
	ReturnWindowDays int
}

type returnService struct {
	store    repositories.Store
	evidence EvidenceUploader
	events   OrderEventPublisher
	metrics  orderMetrics
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	window   int

	stock   *StockLedger
	wallets *WalletLedger
}

// NewReturnService constructs the return workflow.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Store == nil {
		return nil, errors.New("return service: store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = newULID
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	window := deps.ReturnWindowDays
	if window <= 0 {
		window = defaultReturnWindowDays
	}
	return &returnService{
		store:    deps.Store,
		evidence: deps.Evidence,
		events:   deps.Events,
		metrics:  newOrderMetrics(deps.Meter),
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		window:   window,
		stock:    NewStockLedger(clock),
		wallets:  NewWalletLedger(clock, idGen),
	}, nil
}

// DaysSince counts whole days elapsed from then to now, rounding down.
func DaysSince(then, now time.Time) int {
	if now.Before(then) {
		return 0
	}
	return int(now.Sub(then) / (24 * time.Hour))
}

// RequestReturn opens a return for a delivered item within the return window.
func (s *returnService) RequestReturn(ctx context.Context, actor Actor, cmd RequestReturnCommand) (ReturnRequest, error) {
	if err := requireUser(actor); err != nil {
		return ReturnRequest{}, err
	}
	if strings.TrimSpace(cmd.ItemID) == "" {
		return ReturnRequest{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}

	var request domain.ReturnRequest
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		order, err := loadOrder(ctx, tx, Actor{UserID: actor.UserID}, cmd.OrderID)
		if err != nil {
			return err
		}
		item, ok := order.Item(cmd.ItemID)
		if !ok {
			return ErrOrderItemNotFound
		}
		if order.Status != domain.OrderStatusDelivered {
			return fmt.Errorf("%w: order %s is %s", ErrReturnNotAllowed, order.ID, order.Status)
		}
		if item.Status != domain.ItemStatusDelivered {
			return fmt.Errorf("%w: item %s is %s", ErrReturnNotAllowed, item.ID, item.Status)
		}

		now := s.now()
		deliveredAt := order.UpdatedAt
		if order.DeliveredAt != nil {
			deliveredAt = *order.DeliveredAt
		}
		if days := DaysSince(deliveredAt, now); days > s.window {
			return fmt.Errorf("%w: delivered %d days ago", ErrReturnWindowExpired, days)
		}

		request = domain.ReturnRequest{
			ID:           domain.ReturnRequestID(order.ID, item.ID),
			OrderID:      order.ID,
			ItemID:       item.ID,
			UserID:       order.UserID,
			Status:       domain.ReturnStatusRequested,
			RefundAmount: itemRefund(*item),
			Reason:       strings.TrimSpace(cmd.Reason),
			RequestedAt:  now,
		}
		if err := tx.CreateReturnRequest(ctx, request); err != nil {
			if repositories.IsConflict(err) {
				return ErrReturnExists
			}
			return translateRepoError(err, nil)
		}
		item.Status = domain.ItemStatusReturnRequested
		order.UpdatedAt = now
		return tx.PutOrder(ctx, order)
	})
	if err != nil {
		return ReturnRequest{}, err
	}

	s.logger(ctx, "order.return.requested", map[string]any{
		"returnId": request.ID,
		"orderId":  request.OrderID,
		"itemId":   request.ItemID,
		"amount":   request.RefundAmount,
	})
	s.publish(ctx, OrderEvent{
		Type:     orderEventReturnRequest,
		OrderID:  request.OrderID,
		UserID:   request.UserID,
		ItemID:   request.ItemID,
		ReturnID: request.ID,
		Status:   string(request.Status),
		Amount:   request.RefundAmount,
	})
	return request, nil
}

// AttachEvidence uploads a photo for an open return and records its URL.
func (s *returnService) AttachEvidence(ctx context.Context, actor Actor, cmd AttachEvidenceCommand) (ReturnRequest, error) {
	if err := requireUser(actor); err != nil {
		return ReturnRequest{}, err
	}
	if s.evidence == nil {
		return ReturnRequest{}, fmt.Errorf("%w: evidence storage is not configured", ErrUnavailable)
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	ext, ok := evidenceExtensions[contentType]
	if !ok {
		return ReturnRequest{}, fmt.Errorf("%w: unsupported evidence type %q", ErrInvalidInput, cmd.ContentType)
	}
	if len(cmd.Data) == 0 || len(cmd.Data) > maxEvidenceBytes {
		return ReturnRequest{}, fmt.Errorf("%w: evidence must be between 1 byte and %d bytes", ErrInvalidInput, maxEvidenceBytes)
	}

	var request domain.ReturnRequest
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		request, err = s.loadOwnedReturn(ctx, tx, actor, cmd.ReturnID)
		if err != nil {
			return err
		}
		return checkEvidenceSlot(request)
	})
	if err != nil {
		return ReturnRequest{}, err
	}

	object := path.Join("returns", request.ID, s.newID()+ext)
	url, err := s.evidence.Upload(ctx, object, contentType, cmd.Data)
	if err != nil {
		return ReturnRequest{}, fmt.Errorf("%w: upload evidence: %v", ErrUnavailable, err)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		request, err = s.loadOwnedReturn(ctx, tx, actor, cmd.ReturnID)
		if err != nil {
			return err
		}
		if err := checkEvidenceSlot(request); err != nil {
			return err
		}
		request.EvidenceURLs = append(request.EvidenceURLs, url)
		return tx.PutReturnRequest(ctx, request)
	})
	if err != nil {
		return ReturnRequest{}, err
	}

	s.logger(ctx, "order.return.evidence_attached", map[string]any{
		"returnId": request.ID,
		"object":   object,
		"bytes":    len(cmd.Data),
	})
	return request, nil
}

func checkEvidenceSlot(request domain.ReturnRequest) error {
	if request.Status != domain.ReturnStatusRequested {
		return ErrReturnAlreadyResolved
	}
	if len(request.EvidenceURLs) >= maxEvidenceFiles {
		return fmt.Errorf("%w: at most %d evidence files", ErrInvalidInput, maxEvidenceFiles)
	}
	return nil
}

func (s *returnService) loadOwnedReturn(ctx context.Context, tx repositories.Tx, actor Actor, returnID string) (domain.ReturnRequest, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return domain.ReturnRequest{}, fmt.Errorf("%w: return id is required", ErrInvalidInput)
	}
	request, err := tx.GetReturnRequest(ctx, returnID)
	if err != nil {
		return domain.ReturnRequest{}, translateRepoError(err, ErrReturnNotFound)
	}
	if !actor.IsAdmin && request.UserID != actor.UserID {
		return domain.ReturnRequest{}, ErrReturnNotFound
	}
	return request, nil
}

// ApproveReturn refunds the item's net amount to the wallet and puts its stock back.
func (s *returnService) ApproveReturn(ctx context.Context, actor Actor, cmd ResolveReturnCommand) (ReturnRequest, error) {
	return s.resolve(ctx, actor, cmd, true)
}

// RejectReturn closes the return without refund.
func (s *returnService) RejectReturn(ctx context.Context, actor Actor, cmd ResolveReturnCommand) (ReturnRequest, error) {
	return s.resolve(ctx, actor, cmd, false)
}

func (s *returnService) resolve(ctx context.Context, actor Actor, cmd ResolveReturnCommand, approve bool) (result ReturnRequest, err error) {
	name := "returns.Reject"
	if approve {
		name = "returns.Approve"
	}
	ctx, span := startSpan(ctx, name)
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return ReturnRequest{}, err
	}

	var request domain.ReturnRequest
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		request, err = s.loadOwnedReturn(ctx, tx, actor, cmd.ReturnID)
		if err != nil {
			return err
		}
		if request.Status != domain.ReturnStatusRequested {
			return ErrReturnAlreadyResolved
		}
		order, err := tx.GetOrder(ctx, request.OrderID)
		if err != nil {
			return translateRepoError(err, ErrOrderNotFound)
		}
		item, ok := order.Item(request.ItemID)
		if !ok {
			return ErrOrderItemNotFound
		}

		now := s.now()
		request.AdminNote = strings.TrimSpace(cmd.Note)
		request.ResolvedAt = &now
		if !approve {
			request.Status = domain.ReturnStatusRejected
			item.Status = domain.ItemStatusReturnRejected
		} else {
			request.Status = domain.ReturnStatusRefunded
			item.Status = domain.ItemStatusReturned
			item.RefundAmount = request.RefundAmount
			if err := s.stock.Release(ctx, tx, item.ProductID, item.Size, item.Quantity); err != nil {
				return err
			}
			if request.RefundAmount > 0 {
				if _, err := s.wallets.Credit(ctx, tx, WalletEntry{
					UserID:   request.UserID,
					Amount:   request.RefundAmount,
					Reason:   walletReasonReturn,
					OrderID:  request.OrderID,
					ReturnID: request.ID,
				}); err != nil {
					return err
				}
				if err := tx.CreatePaymentTransaction(ctx, domain.PaymentTransaction{
					ID:        transactionIDPrefix + s.newID(),
					UserID:    request.UserID,
					OrderID:   request.OrderID,
					Type:      domain.PaymentTransactionRefund,
					Method:    domain.PaymentMethodWallet,
					Amount:    request.RefundAmount,
					Status:    transactionStatusSuccess,
					Reason:    walletReasonReturn,
					CreatedAt: now,
				}); err != nil {
					return translateRepoError(err, nil)
				}
			}
		}
		order.UpdatedAt = now
		if err := tx.PutOrder(ctx, order); err != nil {
			return translateRepoError(err, nil)
		}
		return tx.PutReturnRequest(ctx, request)
	})
	if err != nil {
		return ReturnRequest{}, err
	}

	if approve {
		s.metrics.recordRefund(ctx, walletReasonReturn, request.RefundAmount)
	}
	s.logger(ctx, "order.return.resolved", map[string]any{
		"returnId": request.ID,
		"status":   string(request.Status),
		"amount":   request.RefundAmount,
		"adminId":  actor.UserID,
	})
	s.publish(ctx, OrderEvent{
		Type:     orderEventReturnResolved,
		OrderID:  request.OrderID,
		UserID:   request.UserID,
		ItemID:   request.ItemID,
		ReturnID: request.ID,
		Status:   string(request.Status),
		Amount:   request.RefundAmount,
	})
	return request, nil
}

// ListReturns lists return requests for admins, oldest first.
func (s *returnService) ListReturns(ctx context.Context, actor Actor, filter ReturnListFilter) (domain.CursorPage[ReturnRequest], error) {
	if err := requireAdmin(actor); err != nil {
		return domain.CursorPage[ReturnRequest]{}, err
	}
	switch filter.Status {
	case "", domain.ReturnStatusRequested, domain.ReturnStatusRefunded, domain.ReturnStatusRejected:
	default:
		return domain.CursorPage[ReturnRequest]{}, fmt.Errorf("%w: unknown return status %q", ErrInvalidInput, filter.Status)
	}
	page, err := s.store.ListReturnRequests(ctx, repositories.ReturnListFilter{Status: filter.Status, Pagination: filter.Pagination})
	if err != nil {
		return domain.CursorPage[ReturnRequest]{}, translateRepoError(err, nil)
	}
	return page, nil
}

func (s *returnService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.now()
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
	}
}
