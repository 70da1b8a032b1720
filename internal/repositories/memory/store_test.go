package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

func TestRunInTxCommitsOnSuccess(t *testing.T) {
	store := NewStore()
	store.SeedProduct(domain.Product{ID: "p1", Stock: map[domain.Size]int{domain.SizeM: 4}})

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		product, err := tx.GetProduct(ctx, "p1")
		if err != nil {
			return err
		}
		product.Stock[domain.SizeM] = 1
		return tx.PutProduct(ctx, product)
	})
	require.NoError(t, err)

	product, ok := store.Product("p1")
	require.True(t, ok)
	assert.Equal(t, 1, product.Stock[domain.SizeM])
}

func TestRunInTxDiscardsWritesOnError(t *testing.T) {
	store := NewStore()
	store.SeedProduct(domain.Product{ID: "p1", Stock: map[domain.Size]int{domain.SizeM: 4}})
	boom := errors.New("boom")

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		product, err := tx.GetProduct(ctx, "p1")
		require.NoError(t, err)
		product.Stock[domain.SizeM] = 0
		require.NoError(t, tx.PutProduct(ctx, product))
		require.NoError(t, tx.CreateOrder(ctx, domain.Order{ID: "o1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	product, _ := store.Product("p1")
	assert.Equal(t, 4, product.Stock[domain.SizeM])
	assert.Empty(t, store.Orders())
}

func TestReadsObserveEarlierWritesAndCopiesAreIsolated(t *testing.T) {
	store := NewStore()
	store.SeedProduct(domain.Product{ID: "p1", Stock: map[domain.Size]int{domain.SizeL: 2}})

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		product, _ := tx.GetProduct(ctx, "p1")
		product.Stock[domain.SizeL] = 9
		again, _ := tx.GetProduct(ctx, "p1")
		assert.Equal(t, 2, again.Stock[domain.SizeL], "unsaved mutation must not leak")

		require.NoError(t, tx.PutProduct(ctx, product))
		again, _ = tx.GetProduct(ctx, "p1")
		assert.Equal(t, 9, again.Stock[domain.SizeL])
		return nil
	})
	require.NoError(t, err)
}

func TestCreateConflictsAndNotFound(t *testing.T) {
	store := NewStore()
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		_, err := tx.GetWallet(ctx, "missing")
		assert.True(t, repositories.IsNotFound(err))

		require.NoError(t, tx.CreateReturnRequest(ctx, domain.ReturnRequest{ID: "o1_i1"}))
		err = tx.CreateReturnRequest(ctx, domain.ReturnRequest{ID: "o1_i1"})
		assert.True(t, repositories.IsConflict(err))

		require.NoError(t, tx.CreateCoupon(ctx, domain.Coupon{Code: "SAVE", Name: "Save"}))
		err = tx.CreateCoupon(ctx, domain.Coupon{Code: "OTHER", Name: " save "})
		assert.True(t, repositories.IsConflict(err), "coupon names are unique ignoring case")
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteCart(t *testing.T) {
	store := NewStore()
	store.SeedCart(domain.Cart{UserID: "u1", Items: []domain.CartItem{{ID: "c1"}}})
	require.NoError(t, store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		require.NoError(t, tx.DeleteCart(ctx, "u1"))
		_, err := tx.GetCart(ctx, "u1")
		assert.True(t, repositories.IsNotFound(err))
		return nil
	}))
	_, ok := store.Cart("u1")
	assert.False(t, ok)
}

func TestListOrdersPaginatesNewestFirst(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"o1", "o2", "o3"} {
		store.SeedOrder(domain.Order{ID: id, UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	store.SeedOrder(domain.Order{ID: "other", UserID: "u2", CreatedAt: base})

	ctx := context.Background()
	page, err := store.ListOrders(ctx, repositories.OrderListFilter{UserID: "u1", Pagination: domain.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "o3", page.Items[0].ID)
	assert.Equal(t, "o2", page.Items[1].ID)
	require.NotEmpty(t, page.NextPageToken)

	page, err = store.ListOrders(ctx, repositories.OrderListFilter{UserID: "u1", Pagination: domain.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "o1", page.Items[0].ID)
	assert.Empty(t, page.NextPageToken)
}

func TestListReturnRequestsFiltersByStatus(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	require.NoError(t, store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		require.NoError(t, tx.CreateReturnRequest(ctx, domain.ReturnRequest{ID: "a", Status: domain.ReturnStatusRequested, RequestedAt: now}))
		return tx.CreateReturnRequest(ctx, domain.ReturnRequest{ID: "b", Status: domain.ReturnStatusRejected, RequestedAt: now})
	}))

	page, err := store.ListReturnRequests(context.Background(), repositories.ReturnListFilter{Status: domain.ReturnStatusRequested})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ID)
}
