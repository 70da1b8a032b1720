package firestore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

type writeKind int

const (
	writeCreate writeKind = iota + 1
	writeSet
	writeDelete
)

type pendingWrite struct {
	ref  *firestore.DocumentRef
	kind writeKind
	data any
}

// cachedDoc remembers what the transaction knows about a document path: the snapshot read from
// Firestore, or the document struct written earlier in the same attempt.
type cachedDoc struct {
	exists bool
	snap   *firestore.DocumentSnapshot
	data   any
}

// tx buffers writes until the callback returns because Firestore rejects reads issued after a write
// inside one transaction.
type tx struct {
	client *firestore.Client
	txn    *firestore.Transaction

	cache  map[string]*cachedDoc
	writes map[string]*pendingWrite
	order  []string
}

var _ repositories.Tx = (*tx)(nil)

func newTx(client *firestore.Client, txn *firestore.Transaction) *tx {
	return &tx{
		client: client,
		txn:    txn,
		cache:  make(map[string]*cachedDoc),
		writes: make(map[string]*pendingWrite),
	}
}

func (t *tx) load(op string, ref *firestore.DocumentRef) (*cachedDoc, error) {
	if entry, ok := t.cache[ref.Path]; ok {
		return entry, nil
	}
	snap, err := t.txn.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			entry := &cachedDoc{}
			t.cache[ref.Path] = entry
			return entry, nil
		}
		return nil, pfirestore.WrapError(op, err)
	}
	entry := &cachedDoc{exists: snap.Exists(), snap: snap}
	t.cache[ref.Path] = entry
	return entry, nil
}

func getDocument[D any](t *tx, op string, ref *firestore.DocumentRef) (D, error) {
	var doc D
	entry, err := t.load(op, ref)
	if err != nil {
		return doc, err
	}
	if !entry.exists {
		return doc, pfirestore.NotFound(op, ref.Path)
	}
	if entry.data != nil {
		if cached, ok := entry.data.(D); ok {
			return cached, nil
		}
	}
	if entry.snap == nil {
		return doc, pfirestore.WrapError(op, fmt.Errorf("document %s cached with unexpected type %T", ref.Path, entry.data))
	}
	if err := entry.snap.DataTo(&doc); err != nil {
		return doc, pfirestore.WrapError(op, err)
	}
	entry.data = doc
	return doc, nil
}

func (t *tx) set(ref *firestore.DocumentRef, data any) {
	t.cache[ref.Path] = &cachedDoc{exists: true, data: data}
	if pending, ok := t.writes[ref.Path]; ok {
		pending.data = data
		if pending.kind != writeCreate {
			pending.kind = writeSet
		}
		return
	}
	t.enqueue(&pendingWrite{ref: ref, kind: writeSet, data: data})
}

func (t *tx) create(op string, ref *firestore.DocumentRef, data any) error {
	entry, err := t.load(op, ref)
	if err != nil {
		return err
	}
	if entry.exists {
		return pfirestore.Conflict(op, ref.Path)
	}
	t.cache[ref.Path] = &cachedDoc{exists: true, data: data}
	if pending, ok := t.writes[ref.Path]; ok {
		// Recreating a document deleted earlier in this attempt.
		pending.kind = writeSet
		pending.data = data
		return nil
	}
	t.enqueue(&pendingWrite{ref: ref, kind: writeCreate, data: data})
	return nil
}

func (t *tx) remove(ref *firestore.DocumentRef) {
	t.cache[ref.Path] = &cachedDoc{}
	if pending, ok := t.writes[ref.Path]; ok {
		if pending.kind == writeCreate {
			pending.kind = 0
			return
		}
		pending.kind = writeDelete
		pending.data = nil
		return
	}
	t.enqueue(&pendingWrite{ref: ref, kind: writeDelete})
}

func (t *tx) enqueue(w *pendingWrite) {
	t.writes[w.ref.Path] = w
	t.order = append(t.order, w.ref.Path)
}

func (t *tx) flush() error {
	for _, path := range t.order {
		w := t.writes[path]
		var err error
		switch w.kind {
		case writeCreate:
			err = t.txn.Create(w.ref, w.data)
		case writeSet:
			err = t.txn.Set(w.ref, w.data)
		case writeDelete:
			err = t.txn.Delete(w.ref)
		default:
			continue
		}
		if err != nil {
			return pfirestore.WrapError("transaction.flush", err)
		}
	}
	return nil
}

func (t *tx) doc(collection, id string) *firestore.DocumentRef {
	return t.client.Collection(collection).Doc(id)
}

func (t *tx) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	doc, err := getDocument[productDocument](t, "products.get", t.doc(productsCollection, productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(productID), nil
}

func (t *tx) PutProduct(_ context.Context, product domain.Product) error {
	t.set(t.doc(productsCollection, product.ID), newProductDocument(product))
	return nil
}

func (t *tx) GetCategory(_ context.Context, categoryID string) (domain.Category, error) {
	doc, err := getDocument[categoryDocument](t, "categories.get", t.doc(categoriesCollection, categoryID))
	if err != nil {
		return domain.Category{}, err
	}
	return doc.toDomain(categoryID), nil
}

func (t *tx) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	doc, err := getDocument[cartDocument](t, "carts.get", t.doc(cartsCollection, userID))
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(userID), nil
}

func (t *tx) PutCart(_ context.Context, cart domain.Cart) error {
	t.set(t.doc(cartsCollection, cart.UserID), newCartDocument(cart))
	return nil
}

func (t *tx) DeleteCart(_ context.Context, userID string) error {
	t.remove(t.doc(cartsCollection, userID))
	return nil
}

func (t *tx) GetAddress(_ context.Context, userID, addressID string) (domain.Address, error) {
	ref := t.client.Collection(usersCollection).Doc(userID).Collection(addressesCollection).Doc(addressID)
	doc, err := getDocument[addressDocument](t, "addresses.get", ref)
	if err != nil {
		return domain.Address{}, err
	}
	return doc.toDomain(userID, addressID), nil
}

func (t *tx) GetCoupon(_ context.Context, code string) (domain.Coupon, error) {
	doc, err := getDocument[couponDocument](t, "coupons.get", t.doc(couponsCollection, code))
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.toDomain(code), nil
}

func (t *tx) CreateCoupon(_ context.Context, coupon domain.Coupon) error {
	nameRef := t.doc(couponNamesCollection, strings.ToLower(strings.TrimSpace(coupon.Name)))
	if err := t.create("coupons.create", nameRef, couponNameDocument{Code: coupon.Code}); err != nil {
		return err
	}
	return t.create("coupons.create", t.doc(couponsCollection, coupon.Code), newCouponDocument(coupon))
}

func (t *tx) PutCoupon(_ context.Context, coupon domain.Coupon) error {
	t.set(t.doc(couponsCollection, coupon.Code), newCouponDocument(coupon))
	return nil
}

func (t *tx) GetRedemption(_ context.Context, redemptionID string) (domain.CouponRedemption, error) {
	doc, err := getDocument[redemptionDocument](t, "redemptions.get", t.doc(redemptionsCollection, redemptionID))
	if err != nil {
		return domain.CouponRedemption{}, err
	}
	return doc.toDomain(redemptionID), nil
}

func (t *tx) CreateRedemption(_ context.Context, redemption domain.CouponRedemption) error {
	return t.create("redemptions.create", t.doc(redemptionsCollection, redemption.ID), redemptionDocument{
		CouponID:   redemption.CouponID,
		UserID:     redemption.UserID,
		OrderID:    redemption.OrderID,
		RedeemedAt: redemption.RedeemedAt,
	})
}

func (t *tx) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	doc, err := getDocument[orderDocument](t, "orders.get", t.doc(ordersCollection, orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

func (t *tx) CreateOrder(_ context.Context, order domain.Order) error {
	return t.create("orders.create", t.doc(ordersCollection, order.ID), newOrderDocument(order))
}

func (t *tx) PutOrder(_ context.Context, order domain.Order) error {
	t.set(t.doc(ordersCollection, order.ID), newOrderDocument(order))
	return nil
}

func (t *tx) GetWallet(_ context.Context, userID string) (domain.Wallet, error) {
	doc, err := getDocument[walletDocument](t, "wallets.get", t.doc(walletsCollection, userID))
	if err != nil {
		return domain.Wallet{}, err
	}
	return doc.toDomain(userID), nil
}

func (t *tx) PutWallet(_ context.Context, wallet domain.Wallet) error {
	t.set(t.doc(walletsCollection, wallet.UserID), newWalletDocument(wallet))
	return nil
}

func (t *tx) CreateWalletTransaction(_ context.Context, txn domain.WalletTransaction) error {
	return t.create("walletTransactions.create", t.doc(walletTransactionsCollection, txn.ID), newWalletTransactionDocument(txn))
}

func (t *tx) GetReturnRequest(_ context.Context, returnID string) (domain.ReturnRequest, error) {
	doc, err := getDocument[returnDocument](t, "returns.get", t.doc(returnsCollection, returnID))
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	return doc.toDomain(returnID), nil
}

func (t *tx) CreateReturnRequest(_ context.Context, request domain.ReturnRequest) error {
	return t.create("returns.create", t.doc(returnsCollection, request.ID), newReturnDocument(request))
}

func (t *tx) PutReturnRequest(_ context.Context, request domain.ReturnRequest) error {
	t.set(t.doc(returnsCollection, request.ID), newReturnDocument(request))
	return nil
}

func (t *tx) CreatePaymentTransaction(_ context.Context, txn domain.PaymentTransaction) error {
	return t.create("transactions.create", t.doc(transactionsCollection, txn.ID), newPaymentTransactionDocument(txn))
}

func (t *tx) GetPendingCheckout(_ context.Context, gatewayOrderID string) (domain.PendingCheckout, error) {
	doc, err := getDocument[pendingCheckoutDocument](t, "pendingCheckouts.get", t.doc(pendingCheckoutsCollection, gatewayOrderID))
	if err != nil {
		return domain.PendingCheckout{}, err
	}
	return doc.toDomain(gatewayOrderID), nil
}

func (t *tx) CreatePendingCheckout(_ context.Context, checkout domain.PendingCheckout) error {
	return t.create("pendingCheckouts.create", t.doc(pendingCheckoutsCollection, checkout.GatewayOrderID), newPendingCheckoutDocument(checkout))
}

func (t *tx) PutPendingCheckout(_ context.Context, checkout domain.PendingCheckout) error {
	t.set(t.doc(pendingCheckoutsCollection, checkout.GatewayOrderID), newPendingCheckoutDocument(checkout))
	return nil
}
