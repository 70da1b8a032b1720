package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Size enumerates the garment sizes tracked by the stock ledger.
type Size string

const (
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// Sizes lists every supported size in display order.
var Sizes = []Size{SizeS, SizeM, SizeL, SizeXL, SizeXXL}

// Valid reports whether the size is one of the supported sizes.
func (s Size) Valid() bool {
	switch s {
	case SizeS, SizeM, SizeL, SizeXL, SizeXXL:
		return true
	}
	return false
}

// Product is a catalog entry with per-size stock counters. Prices are minor currency units.
type Product struct {
	ID           string
	Name         string
	CategoryID   string
	RegularPrice int64
	OfferPercent float64
	Stock        map[Size]int
	Blocked      bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Available returns the stock on hand for the given size.
func (p Product) Available(size Size) int {
	if p.Stock == nil {
		return 0
	}
	return p.Stock[size]
}

// Category groups products and may carry a category-wide offer.
type Category struct {
	ID           string
	Name         string
	Active       bool
	OfferPercent float64
	UpdatedAt    time.Time
}

// MaxCartLineQuantity caps the quantity of a single cart line.
const MaxCartLineQuantity = 5

// Cart holds a user's pending line items. One cart exists per user.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem captures the unit price seen by the customer when the line was added.
type CartItem struct {
	ID        string
	ProductID string
	Size      Size
	Quantity  int
	UnitPrice int64
	AddedAt   time.Time
}

// CouponStatus toggles whether a coupon may be applied.
type CouponStatus string

const (
	CouponStatusActive   CouponStatus = "active"
	CouponStatusInactive CouponStatus = "inactive"
)

// CouponUsage distinguishes single-use-per-user coupons from reusable ones.
type CouponUsage string

const (
	CouponUsageOnce     CouponUsage = "once"
	CouponUsageMultiple CouponUsage = "multiple"
)

// Coupon is a flat-amount discount code.
type Coupon struct {
	ID              string
	Code            string
	Name            string
	Status          CouponStatus
	UsageType       CouponUsage
	ActiveFrom      time.Time
	ExpiresAt       time.Time
	Limit           int
	RedemptionCount int
	Discount        int64
	MinimumOrder    int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CouponRedemption is an append-only record of a coupon consumed by a committed order.
type CouponRedemption struct {
	ID         string
	CouponID   string
	UserID     string
	OrderID    string
	RedeemedAt time.Time
}

// PaymentMethod identifies how an order is settled.
type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "cod"
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	PaymentMethodWallet   PaymentMethod = "wallet"
)

// Valid reports whether the payment method is supported.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodRazorpay, PaymentMethodWallet:
		return true
	}
	return false
}

// PaymentStatus tracks whether money has been collected for an order.
type PaymentStatus string

const (
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderStatus is the order-level lifecycle state.
type OrderStatus string

const (
	OrderStatusPlaced        OrderStatus = "Placed"
	OrderStatusProcessing    OrderStatus = "Processing"
	OrderStatusShipped       OrderStatus = "Shipped"
	OrderStatusDelivered     OrderStatus = "Delivered"
	OrderStatusCancelled     OrderStatus = "Cancelled"
	OrderStatusPaymentFailed OrderStatus = "Payment Failed"
)

// ItemStatus is the per-line lifecycle state of an order item.
type ItemStatus string

const (
	ItemStatusPlaced          ItemStatus = "Placed"
	ItemStatusCancelled       ItemStatus = "Cancelled"
	ItemStatusDelivered       ItemStatus = "Delivered"
	ItemStatusReturnRequested ItemStatus = "Return Requested"
	ItemStatusReturned        ItemStatus = "Returned"
	ItemStatusReturnRejected  ItemStatus = "Return Rejected"
)

// Address is a shipping address. Orders embed a copy rather than a reference.
type Address struct {
	ID         string
	UserID     string
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Landmark   string
}

// Order is the immutable snapshot created at checkout; only statuses mutate afterwards.
type Order struct {
	ID               string
	UserID           string
	Address          Address
	Items            []OrderItem
	TotalAmount      int64
	Discount         int64
	FinalAmount      int64
	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	Status           OrderStatus
	CouponID         string
	CouponCode       string
	GatewayOrderID   string
	GatewayPaymentID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeliveredAt      *time.Time
}

// Item returns a pointer to the item with the given id.
func (o *Order) Item(itemID string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// AllItemsCancelled reports whether every line has been cancelled.
func (o Order) AllItemsCancelled() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, item := range o.Items {
		if item.Status != ItemStatusCancelled {
			return false
		}
	}
	return true
}

// OrderItem is a line snapshot. DiscountShare is the portion of the order discount
// allocated to this line at placement time and is used for every later refund.
type OrderItem struct {
	ID            string
	ProductID     string
	Name          string
	Size          Size
	Quantity      int
	Price         int64
	Subtotal      int64
	DiscountShare int64
	Status        ItemStatus
	CancelReason  string
	CancelledAt   *time.Time
	RefundAmount  int64
}

// Wallet is a per-user stored-value balance.
type Wallet struct {
	UserID           string
	Balance          int64
	TotalCredits     int64
	TotalDebits      int64
	TransactionCount int
	LastCreditAt     *time.Time
	LastDebitAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// WalletTransactionType is the direction of a wallet movement.
type WalletTransactionType string

const (
	WalletCredit WalletTransactionType = "credit"
	WalletDebit  WalletTransactionType = "debit"
)

// WalletTransaction is an immutable ledger entry.
type WalletTransaction struct {
	ID            string
	UserID        string
	Type          WalletTransactionType
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Reason        string
	OrderID       string
	ReturnID      string
	Status        string
	CreatedAt     time.Time
}

// ReturnStatus is the adjudication state of a return request.
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "requested"
	ReturnStatusRefunded  ReturnStatus = "refunded"
	ReturnStatusRejected  ReturnStatus = "rejected"
)

// ReturnRequest tracks a post-delivery return for a single order item.
type ReturnRequest struct {
	ID           string
	OrderID      string
	ItemID       string
	UserID       string
	Status       ReturnStatus
	RefundAmount int64
	Reason       string
	AdminNote    string
	EvidenceURLs []string
	RequestedAt  time.Time
	ResolvedAt   *time.Time
}

// ReturnRequestID derives the unique identifier for an (order, item) pair.
func ReturnRequestID(orderID, itemID string) string {
	return orderID + "_" + itemID
}

// PaymentTransactionType distinguishes payments from refunds in the audit trail.
type PaymentTransactionType string

const (
	PaymentTransactionPayment PaymentTransactionType = "payment"
	PaymentTransactionRefund  PaymentTransactionType = "refund"
)

// PaymentTransaction is an append-only audit record of money movement for an order.
type PaymentTransaction struct {
	ID               string
	UserID           string
	OrderID          string
	Type             PaymentTransactionType
	Method           PaymentMethod
	Amount           int64
	Status           string
	Reason           string
	GatewayOrderID   string
	GatewayPaymentID string
	CreatedAt        time.Time
}

// PendingCheckoutStatus tracks what became of a gateway order issued for a cart.
type PendingCheckoutStatus string

const (
	PendingCheckoutOpen   PendingCheckoutStatus = "open"
	PendingCheckoutPlaced PendingCheckoutStatus = "placed"
	PendingCheckoutFailed PendingCheckoutStatus = "failed"
)

// PendingCheckout binds a first-attempt gateway order to the user, address, coupon and amount it
// was issued for. It is keyed by the gateway order id and settles at most once.
type PendingCheckout struct {
	GatewayOrderID string
	UserID         string
	AddressID      string
	CouponCode     string
	Amount         int64
	Currency       string
	Status         PendingCheckoutStatus
	OrderID        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
