package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func TestCartHandlers(t *testing.T) {
	updated := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	carts := &stubCartService{view: services.CartView{
		Cart: services.Cart{UserID: "user-1", UpdatedAt: updated},
		Lines: []services.PricedLine{{
			CartItemID: "cit-1", ProductID: "p-tee", ProductName: "Tee", Size: domain.SizeM,
			Quantity: 2, CartPrice: 100, UnitPrice: 90, Subtotal: 180,
		}},
		Ineligible: []services.IneligibleLine{{CartItemID: "cit-2", ProductID: "p-old", Reason: services.IneligibleBlocked}},
		Total:      180,
	}}
	router := chi.NewRouter()
	router.Route("/cart", NewCartHandlers(carts).Routes)

	rr := do(t, router, http.MethodGet, "/cart", "", shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["total"] != float64(180) || body["updatedAt"] != "2025-03-02T08:00:00Z" {
		t.Fatalf("unexpected cart %v", body)
	}
	if items := body["items"].([]any); len(items) != 1 || items[0].(map[string]any)["unitPrice"] != float64(90) {
		t.Fatalf("unexpected items %v", body["items"])
	}
	if unavailable := body["unavailableItems"].([]any); len(unavailable) != 1 {
		t.Fatalf("unexpected unavailable items %v", unavailable)
	}

	rr = do(t, router, http.MethodPost, "/cart/items", `{"productId":" p-tee ","size":"M","quantity":2}`, shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(carts.added) != 1 || carts.added[0].ProductID != "p-tee" || carts.added[0].Size != domain.SizeM {
		t.Fatalf("unexpected add commands %+v", carts.added)
	}

	for _, payload := range []string{
		`{"productId":"p-tee","size":"M","quantity":6}`,
		`{"productId":"p-tee","size":"XXXL","quantity":1}`,
		`{"productId":"p-tee","size":"M"}`,
	} {
		rr = do(t, router, http.MethodPost, "/cart/items", payload, shopper)
		expectError(t, rr, http.StatusBadRequest, "invalid_request")
	}
	if len(carts.added) != 1 {
		t.Fatalf("invalid payloads must not reach the service")
	}

	rr = do(t, router, http.MethodDelete, "/cart/items/cit-1", "", shopper)
	if rr.Code != http.StatusOK || len(carts.removed) != 1 || carts.removed[0] != "cit-1" {
		t.Fatalf("unexpected remove result %d %v", rr.Code, carts.removed)
	}

	carts.err = services.ErrCartItemNotFound
	rr = do(t, router, http.MethodDelete, "/cart/items/cit-9", "", shopper)
	expectError(t, rr, http.StatusNotFound, "cart_item_not_found")

	rr = do(t, router, http.MethodGet, "/cart", "", nil)
	expectError(t, rr, http.StatusUnauthorized, "unauthenticated")
}

func TestWalletHandlers(t *testing.T) {
	credit := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	wallets := &stubWalletService{
		wallet: services.Wallet{UserID: "user-1", Balance: 250, TotalCredits: 400, TotalDebits: 150, TransactionCount: 3, LastCreditAt: &credit},
		page: domain.CursorPage[services.WalletTransaction]{
			Items: []services.WalletTransaction{{
				ID: "wtx-1", Type: domain.WalletCredit, Amount: 83, BalanceBefore: 167, BalanceAfter: 250,
				Reason: "Refund for returned item", ReturnID: "ord-1_itm-1", Status: "completed", CreatedAt: credit,
			}},
			NextPageToken: "tok",
		},
	}
	router := chi.NewRouter()
	router.Route("/wallet", NewWalletHandlers(wallets).Routes)

	rr := do(t, router, http.MethodGet, "/wallet", "", shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["balance"] != float64(250) || body["lastCreditAt"] != "2025-03-03T09:30:00Z" || body["lastDebitAt"] != nil {
		t.Fatalf("unexpected wallet %v", body)
	}

	rr = do(t, router, http.MethodGet, "/wallet/transactions?pageSize=10", "", shopper)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if wallets.gotPg.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", wallets.gotPg.PageSize)
	}
	body = decodeMap(t, rr)
	items := body["items"].([]any)
	if len(items) != 1 || body["nextPageToken"] != "tok" {
		t.Fatalf("unexpected transactions %v", body)
	}
	if txn := items[0].(map[string]any); txn["type"] != "credit" || txn["balanceAfter"] != float64(250) {
		t.Fatalf("unexpected transaction %v", txn)
	}

	rr = do(t, router, http.MethodGet, "/wallet/transactions?pageToken=!!bad!!", "", shopper)
	expectError(t, rr, http.StatusBadRequest, "invalid_request")
}
