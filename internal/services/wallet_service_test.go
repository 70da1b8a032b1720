package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func TestWalletServiceGetWalletDefaultsToEmpty(t *testing.T) {
	svc, err := NewWalletService(WalletServiceDeps{Store: memory.NewStore()})
	require.NoError(t, err)

	wallet, err := svc.GetWallet(context.Background(), user1)
	require.NoError(t, err)
	require.Equal(t, "user-1", wallet.UserID)
	require.Zero(t, wallet.Balance)

	_, err = svc.GetWallet(context.Background(), Actor{})
	require.True(t, errors.Is(err, ErrForbidden), "anonymous actors must be rejected, got %v", err)
}

func TestWalletServiceListsTransactionsNewestFirst(t *testing.T) {
	store := memory.NewStore()
	now := fixtureNow
	ledger := NewWalletLedger(func() time.Time { return now }, sequenceIDs())
	for _, amount := range []int64{10, 20, 30} {
		err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
			_, err := ledger.Credit(ctx, tx, WalletEntry{UserID: "user-1", Amount: amount})
			return err
		})
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}
	// another user's ledger stays invisible
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		_, err := ledger.Credit(ctx, tx, WalletEntry{UserID: "user-2", Amount: 99})
		return err
	})
	require.NoError(t, err)

	svc, err := NewWalletService(WalletServiceDeps{Store: store})
	require.NoError(t, err)

	first, err := svc.ListTransactions(context.Background(), user1, Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.Equal(t, int64(30), first.Items[0].Amount)
	require.Equal(t, int64(20), first.Items[1].Amount)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.ListTransactions(context.Background(), user1, Pagination{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	require.Equal(t, int64(10), second.Items[0].Amount)
	require.Equal(t, int64(10), second.Items[0].BalanceAfter)
	require.Empty(t, second.NextPageToken)
}
