package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	walletTransactionIDPrefix = "wtx_"
	walletTransactionComplete = "completed"

	walletReasonOrderPayment = "order_payment"
	walletReasonCancellation = "cancellation"
	walletReasonReturn       = "return"
)

// WalletEntry describes one balance movement.
type WalletEntry struct {
	UserID   string
	Amount   int64
	Reason   string
	OrderID  string
	ReturnID string
}

// WalletLedger keeps per-user balances and their append-only transaction history. Every call runs
// in the caller's transaction so the balance moves together with the business event.
type WalletLedger struct {
	now   func() time.Time
	newID func() string
}

// NewWalletLedger builds a ledger using the supplied clock and id generator.
func NewWalletLedger(clock func() time.Time, idGen func() string) *WalletLedger {
	if clock == nil {
		clock = time.Now
	}
	if idGen == nil {
		idGen = newULID
	}
	return &WalletLedger{
		now:   func() time.Time { return clock().UTC() },
		newID: idGen,
	}
}

// Credit adds entry.Amount, creating the wallet when absent.
func (l *WalletLedger) Credit(ctx context.Context, tx repositories.Tx, entry WalletEntry) (domain.WalletTransaction, error) {
	return l.apply(ctx, tx, domain.WalletCredit, entry)
}

// Debit removes entry.Amount. It fails with InsufficientFundsError and writes nothing when the
// balance is lower than the amount.
func (l *WalletLedger) Debit(ctx context.Context, tx repositories.Tx, entry WalletEntry) (domain.WalletTransaction, error) {
	return l.apply(ctx, tx, domain.WalletDebit, entry)
}

func (l *WalletLedger) apply(ctx context.Context, tx repositories.Tx, kind domain.WalletTransactionType, entry WalletEntry) (domain.WalletTransaction, error) {
	if entry.UserID == "" {
		return domain.WalletTransaction{}, fmt.Errorf("%w: wallet user id is required", ErrInvalidInput)
	}
	if entry.Amount <= 0 {
		return domain.WalletTransaction{}, fmt.Errorf("%w: wallet amount must be positive", ErrInvalidInput)
	}

	now := l.now()
	wallet, err := tx.GetWallet(ctx, entry.UserID)
	if err != nil {
		if !repositories.IsNotFound(err) {
			return domain.WalletTransaction{}, translateRepoError(err, nil)
		}
		wallet = domain.Wallet{UserID: entry.UserID, CreatedAt: now}
	}

	before := wallet.Balance
	after := before
	switch kind {
	case domain.WalletCredit:
		after = before + entry.Amount
		wallet.TotalCredits += entry.Amount
		wallet.LastCreditAt = &now
	case domain.WalletDebit:
		if entry.Amount > before {
			return domain.WalletTransaction{}, &InsufficientFundsError{Required: entry.Amount, Available: before}
		}
		after = before - entry.Amount
		wallet.TotalDebits += entry.Amount
		wallet.LastDebitAt = &now
	}
	wallet.Balance = after
	wallet.TransactionCount++
	wallet.UpdatedAt = now

	txn := domain.WalletTransaction{
		ID:            walletTransactionIDPrefix + l.newID(),
		UserID:        entry.UserID,
		Type:          kind,
		Amount:        entry.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reason:        entry.Reason,
		OrderID:       entry.OrderID,
		ReturnID:      entry.ReturnID,
		Status:        walletTransactionComplete,
		CreatedAt:     now,
	}
	if err := tx.PutWallet(ctx, wallet); err != nil {
		return domain.WalletTransaction{}, translateRepoError(err, nil)
	}
	if err := tx.CreateWalletTransaction(ctx, txn); err != nil {
		return domain.WalletTransaction{}, translateRepoError(err, nil)
	}
	return txn, nil
}
