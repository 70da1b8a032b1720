package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	txAttempts       = 5
	defaultTxTimeout = 15 * time.Second
)

// TxFunc runs inside a Firestore transaction and is re-run when Firestore aborts on contention.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes RunTransaction.
type TxOption func(*txSettings)

type txSettings struct {
	timeout time.Duration
	onRetry func(ctx context.Context, attempt int)
}

// WithTxTimeout bounds the whole transaction, retries included. Defaults to 15s.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(s *txSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithTxRetryHook is called before every re-run of the callback with the 2-based attempt number.
// Stock and wallet documents are the usual contention points during checkout.
func WithTxRetryHook(hook func(ctx context.Context, attempt int)) TxOption {
	return func(s *txSettings) {
		s.onRetry = hook
	}
}

// RunTransaction executes fn on client with the configured attempt budget and deadline.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	switch {
	case client == nil:
		return WrapError("transaction", errors.New("firestore: client is nil"))
	case fn == nil:
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	settings := txSettings{timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > settings.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	attempt := 0
	counted := func(ctx context.Context, txn *firestore.Transaction) error {
		attempt++
		if attempt > 1 && settings.onRetry != nil {
			settings.onRetry(ctx, attempt)
		}
		return fn(ctx, txn)
	}
	return WrapError("transaction", client.RunTransaction(ctx, counted, firestore.MaxAttempts(txAttempts)))
}
