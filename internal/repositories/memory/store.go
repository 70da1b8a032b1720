// Package memory provides an in-process Store used by tests and local development.
// Transactions are serialised with a mutex and applied atomically on success.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

// Store implements repositories.Store over plain maps.
type Store struct {
	mu   sync.Mutex
	data dataset
}

type dataset struct {
	products     map[string]domain.Product
	categories   map[string]domain.Category
	carts        map[string]domain.Cart
	addresses    map[string]domain.Address
	coupons      map[string]domain.Coupon
	couponNames  map[string]string
	redemptions  map[string]domain.CouponRedemption
	orders       map[string]domain.Order
	wallets      map[string]domain.Wallet
	walletTxns   map[string]domain.WalletTransaction
	returns      map[string]domain.ReturnRequest
	transactions map[string]domain.PaymentTransaction
	checkouts    map[string]domain.PendingCheckout
}

var _ repositories.Store = (*Store)(nil)

// NewStore constructs an empty memory store.
func NewStore() *Store {
	return &Store{data: dataset{
		products:     make(map[string]domain.Product),
		categories:   make(map[string]domain.Category),
		carts:        make(map[string]domain.Cart),
		addresses:    make(map[string]domain.Address),
		coupons:      make(map[string]domain.Coupon),
		couponNames:  make(map[string]string),
		redemptions:  make(map[string]domain.CouponRedemption),
		orders:       make(map[string]domain.Order),
		wallets:      make(map[string]domain.Wallet),
		walletTxns:   make(map[string]domain.WalletTransaction),
		returns:      make(map[string]domain.ReturnRequest),
		transactions: make(map[string]domain.PaymentTransaction),
		checkouts:    make(map[string]domain.PendingCheckout),
	}}
}

// RunInTx runs fn against a staged view of the data. Writes become visible only when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(&s.data)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// ListOrders implements repositories.Queries.
func (s *Store) ListOrders(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []domain.Order
	for _, order := range s.data.orders {
		if order.UserID == filter.UserID {
			rows = append(rows, cloneOrder(order))
		}
	}
	return paginate(rows, filter.Pagination, true, func(o domain.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
}

// ListWalletTransactions implements repositories.Queries.
func (s *Store) ListWalletTransactions(_ context.Context, filter repositories.WalletTransactionFilter) (domain.CursorPage[domain.WalletTransaction], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []domain.WalletTransaction
	for _, txn := range s.data.walletTxns {
		if txn.UserID == filter.UserID {
			rows = append(rows, txn)
		}
	}
	return paginate(rows, filter.Pagination, true, func(t domain.WalletTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
}

// FindOrderIDByItem implements repositories.Queries.
func (s *Store) FindOrderIDByItem(_ context.Context, userID, itemID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, order := range s.data.orders {
		if order.UserID != userID {
			continue
		}
		for _, item := range order.Items {
			if item.ID == itemID {
				return id, nil
			}
		}
	}
	return "", repositories.NewNotFoundError("orders.findByItem", "orders/items/"+itemID)
}

// ListReturnRequests implements repositories.Queries.
func (s *Store) ListReturnRequests(_ context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []domain.ReturnRequest
	for _, req := range s.data.returns {
		if filter.Status == "" || req.Status == filter.Status {
			rows = append(rows, cloneReturn(req))
		}
	}
	return paginate(rows, filter.Pagination, false, func(r domain.ReturnRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.RequestedAt, ID: r.ID}
	})
}

func paginate[T any](rows []T, page domain.Pagination, desc bool, key func(T) pagination.Cursor) (domain.CursorPage[T], error) {
	less := func(a, b pagination.Cursor) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	sort.Slice(rows, func(i, j int) bool {
		if desc {
			return less(key(rows[j]), key(rows[i]))
		}
		return less(key(rows[i]), key(rows[j]))
	})

	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	start := 0
	if !cursor.IsZero() {
		start = len(rows)
		for i, row := range rows {
			k := key(row)
			after := less(cursor, k)
			if desc {
				after = less(k, cursor)
			}
			if after {
				start = i
				break
			}
		}
	}

	size := pagination.Normalize(page.PageSize)
	end := start + size
	if end > len(rows) {
		end = len(rows)
	}
	result := domain.CursorPage[T]{Items: rows[start:end]}
	if end < len(rows) && end > start {
		token, err := pagination.EncodeToken(key(rows[end-1]))
		if err != nil {
			return domain.CursorPage[T]{}, err
		}
		result.NextPageToken = token
	}
	return result, nil
}

// SeedProduct stores a product directly, bypassing transactions.
func (s *Store) SeedProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[product.ID] = cloneProduct(product)
}

// SeedCategory stores a category directly.
func (s *Store) SeedCategory(category domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.categories[category.ID] = category
}

// SeedAddress stores an address directly.
func (s *Store) SeedAddress(address domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.addresses[addressKey(address.UserID, address.ID)] = address
}

// SeedCoupon stores a coupon directly.
func (s *Store) SeedCoupon(coupon domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.coupons[coupon.Code] = coupon
	s.data.couponNames[nameKey(coupon.Name)] = coupon.Code
}

// SeedCart stores a cart directly.
func (s *Store) SeedCart(cart domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.carts[cart.UserID] = cloneCart(cart)
}

// SeedWallet stores a wallet directly.
func (s *Store) SeedWallet(wallet domain.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.wallets[wallet.UserID] = wallet
}

// SeedOrder stores an order directly.
func (s *Store) SeedOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.orders[order.ID] = cloneOrder(order)
}

// PendingCheckout returns the stored checkout for a gateway order.
func (s *Store) PendingCheckout(gatewayOrderID string) (domain.PendingCheckout, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.checkouts[gatewayOrderID]
	return c, ok
}

// Product returns a copy of the stored product.
func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[id]
	return cloneProduct(p), ok
}

// Wallet returns a copy of the stored wallet.
func (s *Store) Wallet(userID string) (domain.Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.data.wallets[userID]
	return w, ok
}

// Cart returns a copy of the stored cart.
func (s *Store) Cart(userID string) (domain.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.carts[userID]
	return cloneCart(c), ok
}

// Order returns a copy of the stored order.
func (s *Store) Order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orders[id]
	return cloneOrder(o), ok
}

// Coupon returns a copy of the stored coupon.
func (s *Store) Coupon(code string) (domain.Coupon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.coupons[code]
	return c, ok
}

// Orders returns every stored order.
func (s *Store) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.data.orders))
	for _, o := range s.data.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WalletTransactions returns the user's ledger ordered by creation time.
func (s *Store) WalletTransactions(userID string) []domain.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WalletTransaction
	for _, txn := range s.data.walletTxns {
		if txn.UserID == userID {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PaymentTransactions returns audit records for an order.
func (s *Store) PaymentTransactions(orderID string) []domain.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentTransaction
	for _, txn := range s.data.transactions {
		if txn.OrderID == orderID {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Redemptions returns every redemption recorded for the coupon.
func (s *Store) Redemptions(couponID string) []domain.CouponRedemption {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CouponRedemption
	for _, r := range s.data.redemptions {
		if r.CouponID == couponID {
			out = append(out, r)
		}
	}
	return out
}

func addressKey(userID, addressID string) string {
	return userID + "/" + addressID
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
