package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func TestStockLedgerAggregatesLinesOfTheSameSize(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct(domain.Product{ID: "p1", Name: "Tee", Stock: map[domain.Size]int{domain.SizeM: 3, domain.SizeL: 1}})
	ledger := NewStockLedger(fixedClock(fixtureNow))

	lines := []StockLine{
		{ProductID: "p1", Size: domain.SizeM, Quantity: 2},
		{ProductID: "p1", Size: domain.SizeM, Quantity: 2},
		{ProductID: "p1", Size: domain.SizeL, Quantity: 1},
	}
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		return ledger.Reserve(ctx, tx, lines)
	})
	var shortage *StockShortageError
	if !errors.As(err, &shortage) || len(shortage.Lines) != 1 || shortage.Lines[0].Requested != 4 {
		t.Fatalf("expected aggregated shortage, got %v", err)
	}

	lines[1].Quantity = 1
	err = store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		return ledger.Reserve(ctx, tx, lines)
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	product, _ := store.Product("p1")
	if product.Available(domain.SizeM) != 0 || product.Available(domain.SizeL) != 0 {
		t.Fatalf("unexpected stock %+v", product.Stock)
	}
}

func TestStockLedgerCheckNeverWrites(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct(domain.Product{ID: "p1", Stock: map[domain.Size]int{domain.SizeS: 2}})
	ledger := NewStockLedger(fixedClock(fixtureNow))

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		return ledger.Check(ctx, tx, []StockLine{{ProductID: "p1", Size: domain.SizeS, Quantity: 2}})
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if product, _ := store.Product("p1"); product.Available(domain.SizeS) != 2 {
		t.Fatalf("check must not decrement stock")
	}

	err = store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		return ledger.Check(ctx, tx, []StockLine{{ProductID: "p1", Size: domain.SizeXL, Quantity: 1}})
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected shortage for an unstocked size, got %v", err)
	}
}

func TestStockLedgerRestock(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct(domain.Product{ID: "p1"})
	ledger := NewStockLedger(fixedClock(fixtureNow))

	var product domain.Product
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		var err error
		product, err = ledger.Restock(ctx, tx, "p1", domain.SizeXXL, 4)
		return err
	})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if product.Available(domain.SizeXXL) != 4 || !product.UpdatedAt.Equal(fixtureNow) {
		t.Fatalf("unexpected product %+v", product)
	}

	err = store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		_, err := ledger.Restock(ctx, tx, "missing", domain.SizeM, 1)
		return err
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}
