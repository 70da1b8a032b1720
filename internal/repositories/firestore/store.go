// Package firestore implements repositories.Store on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

// Store persists the checkout workflow in Firestore. All mutations run in optimistic transactions.
type Store struct {
	provider *pfirestore.Provider
	txOpts   []pfirestore.TxOption
}

var _ repositories.Store = (*Store)(nil)

// NewStore constructs a Store backed by the provider's client.
func NewStore(provider *pfirestore.Provider, txOpts ...pfirestore.TxOption) (*Store, error) {
	if provider == nil {
		return nil, errors.New("firestore store requires firestore provider")
	}
	return &Store{provider: provider, txOpts: txOpts}, nil
}

// RunInTx executes fn inside a Firestore transaction. Buffered writes are flushed once fn returns
// nil; the callback may be re-run when Firestore aborts on contention.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx) error) error {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, txn *firestore.Transaction) error {
		t := newTx(client, txn)
		if err := fn(ctx, t); err != nil {
			return err
		}
		return t.flush()
	}, s.txOpts...)
}

// Ping checks that Firestore answers a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	iter := client.Collection(ordersCollection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return pfirestore.WrapError("ping", err)
	}
	return nil
}

// Close releases the Firestore client.
func (s *Store) Close(ctx context.Context) error {
	return s.provider.Close(ctx)
}

// ListOrders returns the user's orders newest first.
func (s *Store) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	col := client.Collection(ordersCollection)
	query := col.Where("userId", "==", filter.UserID).Query
	return listPage(ctx, "orders.list", col, query, "createdAt", firestore.Desc, filter.Pagination,
		func(id string, doc orderDocument) (domain.Order, pagination.Cursor) {
			order := doc.toDomain(id)
			return order, pagination.Cursor{CreatedAt: order.CreatedAt, ID: id}
		})
}

// ListWalletTransactions returns the user's wallet ledger newest first.
func (s *Store) ListWalletTransactions(ctx context.Context, filter repositories.WalletTransactionFilter) (domain.CursorPage[domain.WalletTransaction], error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.WalletTransaction]{}, err
	}
	col := client.Collection(walletTransactionsCollection)
	query := col.Where("userId", "==", filter.UserID).Query
	return listPage(ctx, "walletTransactions.list", col, query, "createdAt", firestore.Desc, filter.Pagination,
		func(id string, doc walletTransactionDocument) (domain.WalletTransaction, pagination.Cursor) {
			txn := doc.toDomain(id)
			return txn, pagination.Cursor{CreatedAt: txn.CreatedAt, ID: id}
		})
}

// FindOrderIDByItem looks the item up through the order's itemIds array.
func (s *Store) FindOrderIDByItem(ctx context.Context, userID, itemID string) (string, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return "", err
	}
	iter := client.Collection(ordersCollection).
		Where("userId", "==", userID).
		Where("itemIds", "array-contains", itemID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", pfirestore.NotFound("orders.findByItem", ordersCollection+"/items/"+itemID)
	}
	if err != nil {
		return "", pfirestore.WrapError("orders.findByItem", err)
	}
	return snap.Ref.ID, nil
}

// ListReturnRequests returns return requests oldest first, optionally filtered by status.
func (s *Store) ListReturnRequests(ctx context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.ReturnRequest]{}, err
	}
	col := client.Collection(returnsCollection)
	query := col.Query
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}
	return listPage(ctx, "returns.list", col, query, "requestedAt", firestore.Asc, filter.Pagination,
		func(id string, doc returnDocument) (domain.ReturnRequest, pagination.Cursor) {
			req := doc.toDomain(id)
			return req, pagination.Cursor{CreatedAt: req.RequestedAt, ID: id}
		})
}

func listPage[D any, T any](
	ctx context.Context,
	op string,
	col *firestore.CollectionRef,
	query firestore.Query,
	orderField string,
	dir firestore.Direction,
	page domain.Pagination,
	decode func(id string, doc D) (T, pagination.Cursor),
) (domain.CursorPage[T], error) {
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	size := pagination.Normalize(page.PageSize)

	query = query.OrderBy(orderField, dir).OrderBy(firestore.DocumentID, dir)
	if !cursor.IsZero() {
		query = query.StartAfter(cursor.CreatedAt.UTC().Truncate(time.Microsecond), col.Doc(cursor.ID))
	}
	iter := query.Limit(size + 1).Documents(ctx)
	defer iter.Stop()

	var (
		items   []T
		cursors []pagination.Cursor
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[T]{}, pfirestore.WrapError(op, err)
		}
		var doc D
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[T]{}, pfirestore.WrapError(op, err)
		}
		item, key := decode(snap.Ref.ID, doc)
		items = append(items, item)
		cursors = append(cursors, key)
	}

	result := domain.CursorPage[T]{Items: items}
	if len(items) > size {
		result.Items = items[:size]
		token, err := pagination.EncodeToken(cursors[size-1])
		if err != nil {
			return domain.CursorPage[T]{}, err
		}
		result.NextPageToken = token
	}
	return result, nil
}
