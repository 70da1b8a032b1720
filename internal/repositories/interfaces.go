package repositories

import (
	"context"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// Store is the single point of coordination for the checkout workflow. Every multi-document
// mutation runs through RunInTx; list queries are served outside transactions.
type Store interface {
	UnitOfWork
	Queries
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// UnitOfWork groups repository operations in one atomic boundary. fn may be invoked more than once
// when the backend retries on contention, so it must not carry side effects outside tx.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes typed document access inside a transaction. Getters return a RepositoryError with
// IsNotFound when the document is absent. Create* methods return IsConflict when it already exists.
// Reads always observe writes made earlier in the same transaction.
type Tx interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	PutProduct(ctx context.Context, product domain.Product) error
	GetCategory(ctx context.Context, categoryID string) (domain.Category, error)

	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	PutCart(ctx context.Context, cart domain.Cart) error
	DeleteCart(ctx context.Context, userID string) error

	GetAddress(ctx context.Context, userID, addressID string) (domain.Address, error)

	GetCoupon(ctx context.Context, code string) (domain.Coupon, error)
	CreateCoupon(ctx context.Context, coupon domain.Coupon) error
	PutCoupon(ctx context.Context, coupon domain.Coupon) error
	GetRedemption(ctx context.Context, redemptionID string) (domain.CouponRedemption, error)
	CreateRedemption(ctx context.Context, redemption domain.CouponRedemption) error

	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	PutOrder(ctx context.Context, order domain.Order) error

	GetWallet(ctx context.Context, userID string) (domain.Wallet, error)
	PutWallet(ctx context.Context, wallet domain.Wallet) error
	CreateWalletTransaction(ctx context.Context, txn domain.WalletTransaction) error

	GetReturnRequest(ctx context.Context, returnID string) (domain.ReturnRequest, error)
	CreateReturnRequest(ctx context.Context, request domain.ReturnRequest) error
	PutReturnRequest(ctx context.Context, request domain.ReturnRequest) error

	CreatePaymentTransaction(ctx context.Context, txn domain.PaymentTransaction) error

	GetPendingCheckout(ctx context.Context, gatewayOrderID string) (domain.PendingCheckout, error)
	CreatePendingCheckout(ctx context.Context, checkout domain.PendingCheckout) error
	PutPendingCheckout(ctx context.Context, checkout domain.PendingCheckout) error
}

// Queries lists documents outside of transactions.
type Queries interface {
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListWalletTransactions(ctx context.Context, filter WalletTransactionFilter) (domain.CursorPage[domain.WalletTransaction], error)
	ListReturnRequests(ctx context.Context, filter ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error)
	// FindOrderIDByItem resolves the order owning itemID among userID's orders.
	FindOrderIDByItem(ctx context.Context, userID, itemID string) (string, error)
}

// OrderListFilter scopes order listings to a user, newest first.
type OrderListFilter struct {
	UserID     string
	Pagination domain.Pagination
}

// WalletTransactionFilter scopes wallet ledger listings to a user, newest first.
type WalletTransactionFilter struct {
	UserID     string
	Pagination domain.Pagination
}

// ReturnListFilter filters return requests by status; empty status lists all. Oldest first.
type ReturnListFilter struct {
	Status     domain.ReturnStatus
	Pagination domain.Pagination
}
