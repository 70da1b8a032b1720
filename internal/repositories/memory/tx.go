package memory

import (
	"context"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// overlay stages writes on top of a committed table.
type overlay[T any] struct {
	base    map[string]T
	writes  map[string]T
	deletes map[string]struct{}
	clone   func(T) T
}

func newOverlay[T any](base map[string]T, clone func(T) T) *overlay[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &overlay[T]{
		base:    base,
		writes:  make(map[string]T),
		deletes: make(map[string]struct{}),
		clone:   clone,
	}
}

func (o *overlay[T]) get(key string) (T, bool) {
	if _, deleted := o.deletes[key]; deleted {
		var zero T
		return zero, false
	}
	if v, ok := o.writes[key]; ok {
		return o.clone(v), true
	}
	v, ok := o.base[key]
	if !ok {
		return v, false
	}
	return o.clone(v), true
}

func (o *overlay[T]) put(key string, value T) {
	delete(o.deletes, key)
	o.writes[key] = o.clone(value)
}

func (o *overlay[T]) del(key string) {
	delete(o.writes, key)
	o.deletes[key] = struct{}{}
}

func (o *overlay[T]) apply() {
	for key := range o.deletes {
		delete(o.base, key)
	}
	for key, value := range o.writes {
		o.base[key] = value
	}
}

type tx struct {
	products     *overlay[domain.Product]
	categories   *overlay[domain.Category]
	carts        *overlay[domain.Cart]
	addresses    *overlay[domain.Address]
	coupons      *overlay[domain.Coupon]
	couponNames  *overlay[string]
	redemptions  *overlay[domain.CouponRedemption]
	orders       *overlay[domain.Order]
	wallets      *overlay[domain.Wallet]
	walletTxns   *overlay[domain.WalletTransaction]
	returns      *overlay[domain.ReturnRequest]
	transactions *overlay[domain.PaymentTransaction]
	checkouts    *overlay[domain.PendingCheckout]
}

var _ repositories.Tx = (*tx)(nil)

func newTx(d *dataset) *tx {
	return &tx{
		products:     newOverlay(d.products, cloneProduct),
		categories:   newOverlay[domain.Category](d.categories, nil),
		carts:        newOverlay(d.carts, cloneCart),
		addresses:    newOverlay[domain.Address](d.addresses, nil),
		coupons:      newOverlay[domain.Coupon](d.coupons, nil),
		couponNames:  newOverlay[string](d.couponNames, nil),
		redemptions:  newOverlay[domain.CouponRedemption](d.redemptions, nil),
		orders:       newOverlay(d.orders, cloneOrder),
		wallets:      newOverlay[domain.Wallet](d.wallets, nil),
		walletTxns:   newOverlay[domain.WalletTransaction](d.walletTxns, nil),
		returns:      newOverlay(d.returns, cloneReturn),
		transactions: newOverlay[domain.PaymentTransaction](d.transactions, nil),
		checkouts:    newOverlay[domain.PendingCheckout](d.checkouts, nil),
	}
}

func (t *tx) commit() {
	t.products.apply()
	t.categories.apply()
	t.carts.apply()
	t.addresses.apply()
	t.coupons.apply()
	t.couponNames.apply()
	t.redemptions.apply()
	t.orders.apply()
	t.wallets.apply()
	t.walletTxns.apply()
	t.returns.apply()
	t.transactions.apply()
	t.checkouts.apply()
}

func lookup[T any](o *overlay[T], op, path, key string) (T, error) {
	v, ok := o.get(key)
	if !ok {
		var zero T
		return zero, repositories.NewNotFoundError(op, path+"/"+key)
	}
	return v, nil
}

func create[T any](o *overlay[T], op, path, key string, value T) error {
	if _, exists := o.get(key); exists {
		return repositories.NewConflictError(op, path+"/"+key)
	}
	o.put(key, value)
	return nil
}

func (t *tx) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	return lookup(t.products, "products.get", "products", productID)
}

func (t *tx) PutProduct(_ context.Context, product domain.Product) error {
	t.products.put(product.ID, product)
	return nil
}

func (t *tx) GetCategory(_ context.Context, categoryID string) (domain.Category, error) {
	return lookup(t.categories, "categories.get", "categories", categoryID)
}

func (t *tx) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	return lookup(t.carts, "carts.get", "carts", userID)
}

func (t *tx) PutCart(_ context.Context, cart domain.Cart) error {
	t.carts.put(cart.UserID, cart)
	return nil
}

func (t *tx) DeleteCart(_ context.Context, userID string) error {
	t.carts.del(userID)
	return nil
}

func (t *tx) GetAddress(_ context.Context, userID, addressID string) (domain.Address, error) {
	return lookup(t.addresses, "addresses.get", "users/"+userID+"/addresses", addressKey(userID, addressID))
}

func (t *tx) GetCoupon(_ context.Context, code string) (domain.Coupon, error) {
	return lookup(t.coupons, "coupons.get", "coupons", code)
}

func (t *tx) CreateCoupon(_ context.Context, coupon domain.Coupon) error {
	if err := create(t.couponNames, "coupons.create", "couponNames", nameKey(coupon.Name), coupon.Code); err != nil {
		return err
	}
	return create(t.coupons, "coupons.create", "coupons", coupon.Code, coupon)
}

func (t *tx) PutCoupon(_ context.Context, coupon domain.Coupon) error {
	t.coupons.put(coupon.Code, coupon)
	return nil
}

func (t *tx) GetRedemption(_ context.Context, redemptionID string) (domain.CouponRedemption, error) {
	return lookup(t.redemptions, "redemptions.get", "couponRedemptions", redemptionID)
}

func (t *tx) CreateRedemption(_ context.Context, redemption domain.CouponRedemption) error {
	return create(t.redemptions, "redemptions.create", "couponRedemptions", redemption.ID, redemption)
}

func (t *tx) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	return lookup(t.orders, "orders.get", "orders", orderID)
}

func (t *tx) CreateOrder(_ context.Context, order domain.Order) error {
	return create(t.orders, "orders.create", "orders", order.ID, order)
}

func (t *tx) PutOrder(_ context.Context, order domain.Order) error {
	t.orders.put(order.ID, order)
	return nil
}

func (t *tx) GetWallet(_ context.Context, userID string) (domain.Wallet, error) {
	return lookup(t.wallets, "wallets.get", "wallets", userID)
}

func (t *tx) PutWallet(_ context.Context, wallet domain.Wallet) error {
	t.wallets.put(wallet.UserID, wallet)
	return nil
}

func (t *tx) CreateWalletTransaction(_ context.Context, txn domain.WalletTransaction) error {
	return create(t.walletTxns, "walletTransactions.create", "walletTransactions", txn.ID, txn)
}

func (t *tx) GetReturnRequest(_ context.Context, returnID string) (domain.ReturnRequest, error) {
	return lookup(t.returns, "returns.get", "returns", returnID)
}

func (t *tx) CreateReturnRequest(_ context.Context, request domain.ReturnRequest) error {
	return create(t.returns, "returns.create", "returns", request.ID, request)
}

func (t *tx) PutReturnRequest(_ context.Context, request domain.ReturnRequest) error {
	t.returns.put(request.ID, request)
	return nil
}

func (t *tx) CreatePaymentTransaction(_ context.Context, txn domain.PaymentTransaction) error {
	return create(t.transactions, "transactions.create", "transactions", txn.ID, txn)
}

func (t *tx) GetPendingCheckout(_ context.Context, gatewayOrderID string) (domain.PendingCheckout, error) {
	return lookup(t.checkouts, "pendingCheckouts.get", "pendingCheckouts", gatewayOrderID)
}

func (t *tx) CreatePendingCheckout(_ context.Context, checkout domain.PendingCheckout) error {
	return create(t.checkouts, "pendingCheckouts.create", "pendingCheckouts", checkout.GatewayOrderID, checkout)
}

func (t *tx) PutPendingCheckout(_ context.Context, checkout domain.PendingCheckout) error {
	t.checkouts.put(checkout.GatewayOrderID, checkout)
	return nil
}

func cloneProduct(p domain.Product) domain.Product {
	if p.Stock != nil {
		stock := make(map[domain.Size]int, len(p.Stock))
		for size, qty := range p.Stock {
			stock[size] = qty
		}
		p.Stock = stock
	}
	return p
}

func cloneCart(c domain.Cart) domain.Cart {
	c.Items = append([]domain.CartItem(nil), c.Items...)
	return c
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func cloneReturn(r domain.ReturnRequest) domain.ReturnRequest {
	r.EvidenceURLs = append([]string(nil), r.EvidenceURLs...)
	return r
}
