package services

import (
	"context"
	"errors"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// WalletServiceDeps wires the store for wallet queries.
type WalletServiceDeps struct {
	Store repositories.Store
}

type walletService struct {
	store repositories.Store
}

// NewWalletService constructs the read side of the wallet ledger.
func NewWalletService(deps WalletServiceDeps) (WalletService, error) {
	if deps.Store == nil {
		return nil, errors.New("wallet service: store is required")
	}
	return &walletService{store: deps.Store}, nil
}

// GetWallet returns the actor's wallet. Users who were never credited see an empty wallet.
func (s *walletService) GetWallet(ctx context.Context, actor Actor) (Wallet, error) {
	if err := requireUser(actor); err != nil {
		return Wallet{}, err
	}
	var wallet domain.Wallet
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		wallet, err = tx.GetWallet(ctx, actor.UserID)
		if repositories.IsNotFound(err) {
			wallet = domain.Wallet{UserID: actor.UserID}
			return nil
		}
		return translateRepoError(err, nil)
	})
	return wallet, err
}

func (s *walletService) ListTransactions(ctx context.Context, actor Actor, page Pagination) (domain.CursorPage[WalletTransaction], error) {
	if err := requireUser(actor); err != nil {
		return domain.CursorPage[WalletTransaction]{}, err
	}
	result, err := s.store.ListWalletTransactions(ctx, repositories.WalletTransactionFilter{UserID: actor.UserID, Pagination: page})
	if err != nil {
		return domain.CursorPage[WalletTransaction]{}, translateRepoError(err, nil)
	}
	return result, nil
}
