package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// WalletHandlers exposes the shopper's wallet balance and ledger.
type WalletHandlers struct {
	wallets services.WalletService
}

// NewWalletHandlers constructs wallet handlers.
func NewWalletHandlers(wallets services.WalletService) *WalletHandlers {
	return &WalletHandlers{wallets: wallets}
}

// Routes registers wallet endpoints.
func (h *WalletHandlers) Routes(r chi.Router) {
	r.Get("/", h.getWallet)
	r.Get("/transactions", h.listTransactions)
}

func (h *WalletHandlers) getWallet(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallets.GetWallet(r.Context(), actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"balance":          wallet.Balance,
		"totalCredits":     wallet.TotalCredits,
		"totalDebits":      wallet.TotalDebits,
		"transactionCount": wallet.TransactionCount,
		"lastCreditAt":     formatTimePtr(wallet.LastCreditAt),
		"lastDebitAt":      formatTimePtr(wallet.LastDebitAt),
	})
}

func (h *WalletHandlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, ok := pageFromRequest(w, r)
	if !ok {
		return
	}
	result, err := h.wallets.ListTransactions(r.Context(), actor, page)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]walletTransactionPayload, 0, len(result.Items))
	for _, txn := range result.Items {
		items = append(items, newWalletTransactionPayload(txn))
	}
	payload := map[string]any{"items": items}
	if result.NextPageToken != "" {
		payload["nextPageToken"] = result.NextPageToken
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}
