package services

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	Cart               = domain.Cart
	Coupon             = domain.Coupon
	Product            = domain.Product
	Wallet             = domain.Wallet
	WalletTransaction  = domain.WalletTransaction
	ReturnRequest      = domain.ReturnRequest
	PaymentTransaction = domain.PaymentTransaction
)

// Actor identifies who performs an operation. It is passed explicitly to every service call.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// OrderService drives checkout, payment settlement and the order lifecycle.
type OrderService interface {
	QuoteCheckout(ctx context.Context, actor Actor, cmd QuoteCheckoutCommand) (CheckoutQuote, error)
	PlaceOrder(ctx context.Context, actor Actor, cmd PlaceOrderCommand) (PlaceOrderResult, error)

	CreateGatewayOrder(ctx context.Context, actor Actor, cmd CreateGatewayOrderCommand) (GatewayCheckout, error)
	VerifyPayment(ctx context.Context, actor Actor, cmd VerifyPaymentCommand) (PlaceOrderResult, error)
	RecordPaymentFailure(ctx context.Context, actor Actor, cmd PaymentFailureCommand) (Order, error)
	RetryPayment(ctx context.Context, actor Actor, orderID string) (GatewayCheckout, error)
	VerifyRetryPayment(ctx context.Context, actor Actor, cmd VerifyRetryPaymentCommand) (Order, error)

	GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error)
	ListOrders(ctx context.Context, actor Actor, page Pagination) (domain.CursorPage[Order], error)
	CancelItem(ctx context.Context, actor Actor, cmd CancelItemCommand) (CancelItemResult, error)
	UpdateOrderStatus(ctx context.Context, actor Actor, cmd UpdateOrderStatusCommand) (Order, error)
}

// ReturnService handles post-delivery returns and their adjudication.
type ReturnService interface {
	RequestReturn(ctx context.Context, actor Actor, cmd RequestReturnCommand) (ReturnRequest, error)
	AttachEvidence(ctx context.Context, actor Actor, cmd AttachEvidenceCommand) (ReturnRequest, error)
	ApproveReturn(ctx context.Context, actor Actor, cmd ResolveReturnCommand) (ReturnRequest, error)
	RejectReturn(ctx context.Context, actor Actor, cmd ResolveReturnCommand) (ReturnRequest, error)
	ListReturns(ctx context.Context, actor Actor, filter ReturnListFilter) (domain.CursorPage[ReturnRequest], error)
}

// WalletService exposes a user's wallet balance and ledger.
type WalletService interface {
	GetWallet(ctx context.Context, actor Actor) (Wallet, error)
	ListTransactions(ctx context.Context, actor Actor, page Pagination) (domain.CursorPage[WalletTransaction], error)
}

// CartService manages the pre-checkout cart.
type CartService interface {
	GetCart(ctx context.Context, actor Actor) (CartView, error)
	AddItem(ctx context.Context, actor Actor, cmd AddCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, actor Actor, itemID string) (CartView, error)
}

// AdminService covers back-office coupon and stock maintenance.
type AdminService interface {
	CreateCoupon(ctx context.Context, actor Actor, cmd CreateCouponCommand) (Coupon, error)
	Restock(ctx context.Context, actor Actor, cmd RestockCommand) (Product, error)
}

// QuoteCheckoutCommand prices the current cart with an optional coupon.
type QuoteCheckoutCommand struct {
	CouponCode string
}

// CheckoutQuote is the priced cart shown before payment.
type CheckoutQuote struct {
	Lines      []PricedLine
	Ineligible []IneligibleLine
	RawTotal   int64
	Discount   int64
	FinalTotal int64
	CouponCode string
}

// PricedLine is an eligible cart line with its effective unit price.
type PricedLine struct {
	CartItemID  string
	ProductID   string
	ProductName string
	Size        domain.Size
	Quantity    int
	CartPrice   int64
	UnitPrice   int64
	Subtotal    int64
	Offer       OfferResolution
}

// IneligibleReason explains why a cart line was dropped at checkout.
type IneligibleReason string

const (
	IneligibleProductMissing   IneligibleReason = "product_missing"
	IneligibleBlocked          IneligibleReason = "blocked"
	IneligibleInactive         IneligibleReason = "inactive"
	IneligibleCategoryMissing  IneligibleReason = "category_missing"
	IneligibleCategoryInactive IneligibleReason = "category_inactive"
)

// IneligibleLine is a cart line skipped by the eligibility pipeline.
type IneligibleLine struct {
	CartItemID string
	ProductID  string
	Reason     IneligibleReason
}

// PlaceOrderCommand places an order paid by cash on delivery or wallet.
type PlaceOrderCommand struct {
	AddressID     string
	PaymentMethod domain.PaymentMethod
	CouponCode    string
}

// PlaceOrderResult returns the committed order and any cart lines dropped on the way.
type PlaceOrderResult struct {
	Order      Order
	Ineligible []IneligibleLine
}

// CreateGatewayOrderCommand requests a gateway order for the current cart.
type CreateGatewayOrderCommand struct {
	AddressID  string
	CouponCode string
}

// GatewayCheckout is what the client needs to open the gateway's payment widget.
type GatewayCheckout struct {
	OrderID        string
	GatewayOrderID string
	Amount         int64
	Currency       string
	KeyID          string
}

// VerifyPaymentCommand carries the gateway callback for a first payment attempt.
type VerifyPaymentCommand struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	AddressID        string
	CouponCode       string
}

// PaymentFailureCommand records a payment the client reported as failed.
type PaymentFailureCommand struct {
	GatewayOrderID   string
	GatewayPaymentID string
	AddressID        string
	CouponCode       string
	Reason           string
}

// VerifyRetryPaymentCommand carries the gateway callback for a retried payment.
type VerifyRetryPaymentCommand struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// CancelItemCommand cancels one order line.
type CancelItemCommand struct {
	OrderID string
	ItemID  string
	Reason  string
}

// CancelItemResult reports the updated order and the amount credited to the wallet.
type CancelItemResult struct {
	Order        Order
	RefundAmount int64
}

// UpdateOrderStatusCommand advances the shipping state of an order.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
}

// RequestReturnCommand opens a return for a delivered item.
type RequestReturnCommand struct {
	OrderID string
	ItemID  string
	Reason  string
}

// AttachEvidenceCommand uploads a photo supporting a return.
type AttachEvidenceCommand struct {
	ReturnID    string
	ContentType string
	Data        []byte
}

// ResolveReturnCommand approves or rejects a return.
type ResolveReturnCommand struct {
	ReturnID string
	Note     string
}

// ReturnListFilter scopes the admin return queue.
type ReturnListFilter struct {
	Status     domain.ReturnStatus
	Pagination Pagination
}

// CartView is the cart with live pricing.
type CartView struct {
	Cart       Cart
	Lines      []PricedLine
	Ineligible []IneligibleLine
	Total      int64
}

// AddCartItemCommand adds quantity of a product size to the cart.
type AddCartItemCommand struct {
	ProductID string
	Size      domain.Size
	Quantity  int
}

// CreateCouponCommand defines a new coupon.
type CreateCouponCommand struct {
	Code         string
	Name         string
	UsageType    domain.CouponUsage
	ActiveFrom   time.Time
	ExpiresAt    time.Time
	Limit        int
	Discount     int64
	MinimumOrder int64
}

// RestockCommand adds received stock to a product size.
type RestockCommand struct {
	ProductID string
	Size      domain.Size
	Quantity  int
}

// OrderEventPublisher publishes order domain events for downstream consumers such as mailers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type       string
	OrderID    string
	UserID     string
	ItemID     string
	ReturnID   string
	Status     string
	Amount     int64
	OccurredAt time.Time
	Metadata   map[string]string
}

// EvidenceUploader stores return evidence and returns its public URL.
type EvidenceUploader interface {
	Upload(ctx context.Context, object, contentType string, data []byte) (string, error)
}

func newULID() string {
	return ulid.Make().String()
}
