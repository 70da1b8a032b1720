package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/text/currency"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	orderEventPlaced         = "order.placed"
	orderEventPaymentFailed  = "order.payment_failed"
	orderEventItemCancelled  = "order.item_cancelled"
	orderEventStatusChanged  = "order.status_changed"
	orderEventReturnRequest  = "order.return_requested"
	orderEventReturnResolved = "order.return_resolved"

	orderIDPrefix       = "ord_"
	orderItemIDPrefix   = "itm_"
	transactionIDPrefix = "txn_"

	transactionStatusSuccess = "success"
	transactionStatusPending = "pending"
	transactionStatusFailed  = "failed"

	defaultCurrency       = "INR"
	defaultCODLimit int64 = 100000
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Store       repositories.Store
	Gateway     payments.Gateway
	Events      OrderEventPublisher
	Meter       metric.Meter
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Currency    string
	CODLimit    int64
}

type orderService struct {
	store   repositories.Store
	gateway payments.Gateway
	events  OrderEventPublisher
	metrics orderMetrics
	now     func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)

	currency string
	codLimit int64

	coupons *CouponValidator
	stock   *StockLedger
	wallets *WalletLedger
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	return newOrderService(deps)
}

func newOrderService(deps OrderServiceDeps) (*orderService, error) {
	if deps.Store == nil {
		return nil, errors.New("order service: store is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("order service: payment gateway is required")
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
	code := strings.TrimSpace(deps.Currency)
	if code == "" {
		code = defaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("order service: invalid currency %q: %w", code, err)
	}
	codLimit := deps.CODLimit
	if codLimit <= 0 {
		codLimit = defaultCODLimit
	}

	return &orderService{
		store:    deps.Store,
		gateway:  deps.Gateway,
		events:   deps.Events,
		metrics:  newOrderMetrics(deps.Meter),
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		currency: unit.String(),
		codLimit: codLimit,
		coupons:  NewCouponValidator(clock, idGen),
		stock:    NewStockLedger(clock),
		wallets:  NewWalletLedger(clock, idGen),
	}, nil
}

// QuoteCheckout prices the cart and applies the coupon without mutating anything.
func (s *orderService) QuoteCheckout(ctx context.Context, actor Actor, cmd QuoteCheckoutCommand) (CheckoutQuote, error) {
	if err := requireUser(actor); err != nil {
		return CheckoutQuote{}, err
	}
	var quote checkoutQuote
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		quote, err = s.buildQuote(ctx, tx, actor.UserID, "", cmd.CouponCode)
		return err
	})
	if err != nil {
		return CheckoutQuote{}, err
	}
	return quote.public(), nil
}

// PlaceOrder commits a cash-on-delivery or wallet order in a single transaction.
func (s *orderService) PlaceOrder(ctx context.Context, actor Actor, cmd PlaceOrderCommand) (result PlaceOrderResult, err error) {
	ctx, span := startSpan(ctx, "orders.PlaceOrder", attribute.String("payment_method", string(cmd.PaymentMethod)))
	defer func() { endSpan(span, err) }()

	if err := requireUser(actor); err != nil {
		return PlaceOrderResult{}, err
	}
	if strings.TrimSpace(cmd.AddressID) == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: address id is required", ErrInvalidInput)
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD, domain.PaymentMethodWallet:
	case domain.PaymentMethodRazorpay:
		return PlaceOrderResult{}, fmt.Errorf("%w: gateway orders are placed by payment verification", ErrInvalidInput)
	default:
		return PlaceOrderResult{}, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, cmd.PaymentMethod)
	}

	var order domain.Order
	var ineligible []IneligibleLine
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		quote, err := s.buildQuote(ctx, tx, actor.UserID, cmd.AddressID, cmd.CouponCode)
		if err != nil {
			return err
		}
		ineligible = quote.ineligible

		if err := s.stock.Reserve(ctx, tx, quote.stockLines()); err != nil {
			return err
		}

		order = s.newOrder(actor.UserID, quote, cmd.PaymentMethod)
		txnStatus := transactionStatusPending
		switch cmd.PaymentMethod {
		case domain.PaymentMethodCOD:
			if order.FinalAmount > s.codLimit {
				return fmt.Errorf("%w: %d exceeds %d", ErrCODLimitExceeded, order.FinalAmount, s.codLimit)
			}
			order.PaymentStatus = domain.PaymentStatusUnpaid
		case domain.PaymentMethodWallet:
			if order.FinalAmount > 0 {
				if _, err := s.wallets.Debit(ctx, tx, WalletEntry{
					UserID:  actor.UserID,
					Amount:  order.FinalAmount,
					Reason:  walletReasonOrderPayment,
					OrderID: order.ID,
				}); err != nil {
					return err
				}
			}
			order.PaymentStatus = domain.PaymentStatusPaid
			txnStatus = transactionStatusSuccess
		}

		return s.commitPlacedOrder(ctx, tx, order, quote, domain.PaymentTransaction{Status: txnStatus})
	})
	if err != nil {
		return PlaceOrderResult{}, err
	}

	s.metrics.recordPlaced(ctx, string(order.PaymentMethod))
	s.logger(ctx, "order.placed", map[string]any{
		"orderId":       order.ID,
		"userId":        order.UserID,
		"paymentMethod": string(order.PaymentMethod),
		"finalAmount":   order.FinalAmount,
		"ineligible":    len(ineligible),
	})
	s.publish(ctx, OrderEvent{Type: orderEventPlaced, OrderID: order.ID, UserID: order.UserID, Status: string(order.Status), Amount: order.FinalAmount})
	return PlaceOrderResult{Order: order, Ineligible: ineligible}, nil
}

// commitPlacedOrder writes the order with its coupon redemption, audit record and cart removal.
func (s *orderService) commitPlacedOrder(ctx context.Context, tx repositories.Tx, order domain.Order, quote checkoutQuote, audit domain.PaymentTransaction) error {
	if err := tx.CreateOrder(ctx, order); err != nil {
		return translateRepoError(err, nil)
	}
	if quote.coupon != nil {
		if err := s.coupons.Redeem(ctx, tx, quote.coupon.Coupon, order.UserID, order.ID); err != nil {
			return err
		}
	}
	audit.ID = transactionIDPrefix + s.newID()
	audit.UserID = order.UserID
	audit.OrderID = order.ID
	audit.Type = domain.PaymentTransactionPayment
	audit.Method = order.PaymentMethod
	audit.Amount = order.FinalAmount
	audit.GatewayOrderID = order.GatewayOrderID
	audit.GatewayPaymentID = order.GatewayPaymentID
	audit.CreatedAt = s.now()
	if err := tx.CreatePaymentTransaction(ctx, audit); err != nil {
		return translateRepoError(err, nil)
	}
	return tx.DeleteCart(ctx, order.UserID)
}

// GetOrder returns an order visible to the actor.
func (s *orderService) GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	if err := requireUser(actor); err != nil {
		return Order{}, err
	}
	var order domain.Order
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		order, err = loadOrder(ctx, tx, actor, orderID)
		return err
	})
	return order, err
}

// ListOrders lists the actor's orders newest first.
func (s *orderService) ListOrders(ctx context.Context, actor Actor, page Pagination) (domain.CursorPage[Order], error) {
	if err := requireUser(actor); err != nil {
		return domain.CursorPage[Order]{}, err
	}
	result, err := s.store.ListOrders(ctx, repositories.OrderListFilter{UserID: actor.UserID, Pagination: page})
	if err != nil {
		return domain.CursorPage[Order]{}, translateRepoError(err, nil)
	}
	return result, nil
}

func (s *orderService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
	}
}

// checkoutQuote is the internal result of the eligibility and pricing pipeline.
type checkoutQuote struct {
	address    domain.Address
	lines      []PricedLine
	ineligible []IneligibleLine
	rawTotal   int64
	coupon     *CouponValidation
	discount   int64
}

func (q checkoutQuote) finalTotal() int64 {
	return q.rawTotal - q.discount
}

func (q checkoutQuote) stockLines() []StockLine {
	lines := make([]StockLine, 0, len(q.lines))
	for _, line := range q.lines {
		lines = append(lines, StockLine{ProductID: line.ProductID, Size: line.Size, Quantity: line.Quantity})
	}
	return lines
}

func (q checkoutQuote) public() CheckoutQuote {
	out := CheckoutQuote{
		Lines:      q.lines,
		Ineligible: q.ineligible,
		RawTotal:   q.rawTotal,
		Discount:   q.discount,
		FinalTotal: q.finalTotal(),
	}
	if q.coupon != nil {
		out.CouponCode = q.coupon.Coupon.Code
	}
	return out
}

// buildQuote re-reads the cart inside tx, drops ineligible lines, reprices the rest and validates
// the coupon against the fresh raw total. An empty addressID skips the address lookup.
func (s *orderService) buildQuote(ctx context.Context, tx repositories.Tx, userID, addressID, couponCode string) (checkoutQuote, error) {
	var quote checkoutQuote
	if addressID = strings.TrimSpace(addressID); addressID != "" {
		address, err := tx.GetAddress(ctx, userID, addressID)
		if err != nil {
			return checkoutQuote{}, translateRepoError(err, ErrAddressNotFound)
		}
		quote.address = address
	}

	cart, err := tx.GetCart(ctx, userID)
	if err != nil {
		return checkoutQuote{}, translateRepoError(err, ErrCartEmpty)
	}
	lines, ineligible, err := priceCart(ctx, tx, cart)
	if err != nil {
		return checkoutQuote{}, err
	}
	if len(lines) == 0 {
		return checkoutQuote{}, ErrCartEmpty
	}
	quote.lines = lines
	quote.ineligible = ineligible
	for _, line := range lines {
		quote.rawTotal += line.Subtotal
	}

	if code := NormalizeCouponCode(couponCode); code != "" {
		validation, err := s.coupons.Validate(ctx, tx, code, userID, quote.rawTotal)
		if err != nil {
			return checkoutQuote{}, err
		}
		quote.coupon = &validation
		quote.discount = validation.Discount
	}
	return quote, nil
}

// priceCart is the eligibility pipeline: each line is classified, and eligible lines are priced at
// the lower of the cart-time price and the current best offer.
func priceCart(ctx context.Context, tx repositories.Tx, cart domain.Cart) ([]PricedLine, []IneligibleLine, error) {
	var (
		lines      []PricedLine
		ineligible []IneligibleLine
	)
	categories := make(map[string]*domain.Category)
	for _, item := range cart.Items {
		product, category, reason, err := classifyProduct(ctx, tx, item.ProductID, categories)
		if err != nil {
			return nil, nil, err
		}
		if reason != "" {
			ineligible = append(ineligible, IneligibleLine{CartItemID: item.ID, ProductID: item.ProductID, Reason: reason})
			continue
		}
		offer := ResolveOffer(product, category)
		unit := EffectiveUnitPrice(item.UnitPrice, offer)
		lines = append(lines, PricedLine{
			CartItemID:  item.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Size:        item.Size,
			Quantity:    item.Quantity,
			CartPrice:   item.UnitPrice,
			UnitPrice:   unit,
			Subtotal:    unit * int64(item.Quantity),
			Offer:       offer,
		})
	}
	return lines, ineligible, nil
}

func classifyProduct(ctx context.Context, tx repositories.Tx, productID string, categories map[string]*domain.Category) (domain.Product, *domain.Category, IneligibleReason, error) {
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Product{}, nil, IneligibleProductMissing, nil
		}
		return domain.Product{}, nil, "", translateRepoError(err, nil)
	}
	switch {
	case product.Blocked:
		return product, nil, IneligibleBlocked, nil
	case !product.Active:
		return product, nil, IneligibleInactive, nil
	case strings.TrimSpace(product.CategoryID) == "":
		return product, nil, IneligibleCategoryMissing, nil
	}

	category, cached := categories[product.CategoryID]
	if !cached {
		c, err := tx.GetCategory(ctx, product.CategoryID)
		switch {
		case err == nil:
			category = &c
		case repositories.IsNotFound(err):
			category = nil
		default:
			return domain.Product{}, nil, "", translateRepoError(err, nil)
		}
		categories[product.CategoryID] = category
	}
	if category == nil {
		return product, nil, IneligibleCategoryMissing, nil
	}
	if !category.Active {
		return product, category, IneligibleCategoryInactive, nil
	}
	return product, category, "", nil
}

// newOrder snapshots the quote into an order with discount shares allocated per item.
func (s *orderService) newOrder(userID string, quote checkoutQuote, method domain.PaymentMethod) domain.Order {
	now := s.now()
	items := make([]domain.OrderItem, 0, len(quote.lines))
	subtotals := make([]int64, 0, len(quote.lines))
	for _, line := range quote.lines {
		items = append(items, domain.OrderItem{
			ID:        orderItemIDPrefix + s.newID(),
			ProductID: line.ProductID,
			Name:      line.ProductName,
			Size:      line.Size,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice,
			Subtotal:  line.Subtotal,
			Status:    domain.ItemStatusPlaced,
		})
		subtotals = append(subtotals, line.Subtotal)
	}
	for i, share := range AllocateDiscount(quote.discount, subtotals) {
		items[i].DiscountShare = share
	}

	order := domain.Order{
		ID:            orderIDPrefix + s.newID(),
		UserID:        userID,
		Address:       quote.address,
		Items:         items,
		TotalAmount:   quote.rawTotal,
		Discount:      quote.discount,
		FinalAmount:   quote.finalTotal(),
		PaymentMethod: method,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Status:        domain.OrderStatusPlaced,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if quote.coupon != nil {
		order.CouponID = quote.coupon.Coupon.ID
		order.CouponCode = quote.coupon.Coupon.Code
	}
	return order
}

// AllocateDiscount splits discount across subtotals in proportion to each subtotal using the
// largest remainder method. The shares always sum to discount, and each share is within one minor
// unit of discount*subtotal/total.
func AllocateDiscount(discount int64, subtotals []int64) []int64 {
	shares := make([]int64, len(subtotals))
	var total int64
	for _, st := range subtotals {
		if st > 0 {
			total += st
		}
	}
	if discount <= 0 || total <= 0 {
		return shares
	}
	if discount > total {
		discount = total
	}

	type remainder struct {
		index int
		rem   int64
	}
	rems := make([]remainder, 0, len(subtotals))
	var allocated int64
	for i, st := range subtotals {
		if st <= 0 {
			continue
		}
		shares[i] = discount * st / total
		allocated += shares[i]
		rems = append(rems, remainder{index: i, rem: discount * st % total})
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].rem > rems[b].rem })
	for i := 0; allocated < discount; i++ {
		shares[rems[i%len(rems)].index]++
		allocated++
	}
	return shares
}

// itemRefund is what a cancelled or returned line gives back: its subtotal minus the discount share
// fixed at order time, never negative.
func itemRefund(item domain.OrderItem) int64 {
	refund := item.Subtotal - item.DiscountShare
	if refund < 0 {
		return 0
	}
	return refund
}

// loadOrder reads an order the actor owns, or any order for admins.
func loadOrder(ctx context.Context, tx repositories.Tx, actor Actor, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, translateRepoError(err, ErrOrderNotFound)
	}
	if !actor.IsAdmin && order.UserID != actor.UserID {
		return domain.Order{}, ErrOrderNotFound
	}
	return order, nil
}

func requireUser(actor Actor) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return fmt.Errorf("%w: authenticated user required", ErrForbidden)
	}
	return nil
}

func requireAdmin(actor Actor) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	if !actor.IsAdmin {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}
