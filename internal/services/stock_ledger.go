package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// StockLine is a quantity of one product size to reserve.
type StockLine struct {
	ProductID string
	Size      domain.Size
	Quantity  int
}

// StockLedger mutates per-size product stock inside the caller's transaction.
type StockLedger struct {
	now func() time.Time
}

// NewStockLedger builds a ledger using the supplied clock.
func NewStockLedger(clock func() time.Time) *StockLedger {
	if clock == nil {
		clock = time.Now
	}
	return &StockLedger{now: func() time.Time { return clock().UTC() }}
}

type stockKey struct {
	productID string
	size      domain.Size
}

// stockPlan is the aggregated demand of a set of lines against freshly read products.
type stockPlan struct {
	order     []stockKey
	requested map[stockKey]int
	products  map[string]domain.Product
	shortages []StockShortage
}

func (l *StockLedger) plan(ctx context.Context, tx repositories.Tx, lines []StockLine) (stockPlan, error) {
	p := stockPlan{
		requested: make(map[stockKey]int),
		products:  make(map[string]domain.Product),
	}
	for _, line := range lines {
		if line.Quantity <= 0 || !line.Size.Valid() {
			return stockPlan{}, fmt.Errorf("%w: invalid stock line %s/%s x%d", ErrInvalidInput, line.ProductID, line.Size, line.Quantity)
		}
		k := stockKey{line.ProductID, line.Size}
		if _, seen := p.requested[k]; !seen {
			p.order = append(p.order, k)
		}
		p.requested[k] += line.Quantity
	}

	for _, k := range p.order {
		product, ok := p.products[k.productID]
		if !ok {
			fetched, err := tx.GetProduct(ctx, k.productID)
			if err != nil {
				return stockPlan{}, translateRepoError(err, fmt.Errorf("%w: %s", ErrProductNotFound, k.productID))
			}
			product = fetched
			p.products[k.productID] = product
		}
		if available := product.Available(k.size); available < p.requested[k] {
			p.shortages = append(p.shortages, StockShortage{
				ProductID:   product.ID,
				ProductName: product.Name,
				Size:        string(k.size),
				Requested:   p.requested[k],
				Available:   available,
			})
		}
	}
	return p, nil
}

// Check reports a StockShortageError when any line exceeds stock on hand. It never writes.
func (l *StockLedger) Check(ctx context.Context, tx repositories.Tx, lines []StockLine) error {
	p, err := l.plan(ctx, tx, lines)
	if err != nil {
		return err
	}
	if len(p.shortages) > 0 {
		return &StockShortageError{Lines: p.shortages}
	}
	return nil
}

// Reserve re-reads every product and decrements stock only when every line fits. Quantities for
// the same product and size are aggregated before the check. On shortage nothing is written and a
// StockShortageError lists each short line.
func (l *StockLedger) Reserve(ctx context.Context, tx repositories.Tx, lines []StockLine) error {
	p, err := l.plan(ctx, tx, lines)
	if err != nil {
		return err
	}
	if len(p.shortages) > 0 {
		return &StockShortageError{Lines: p.shortages}
	}

	now := l.now()
	written := make(map[string]bool, len(p.products))
	for _, k := range p.order {
		product := p.products[k.productID]
		stock := make(map[domain.Size]int, len(product.Stock))
		for size, qty := range product.Stock {
			stock[size] = qty
		}
		stock[k.size] -= p.requested[k]
		product.Stock = stock
		product.UpdatedAt = now
		p.products[k.productID] = product
	}
	for _, k := range p.order {
		if written[k.productID] {
			continue
		}
		written[k.productID] = true
		if err := tx.PutProduct(ctx, p.products[k.productID]); err != nil {
			return translateRepoError(err, nil)
		}
	}
	return nil
}

// Release adds stock back after a cancellation or return.
func (l *StockLedger) Release(ctx context.Context, tx repositories.Tx, productID string, size domain.Size, quantity int) error {
	return l.add(ctx, tx, productID, size, quantity)
}

// Restock adds stock received outside of the order flow.
func (l *StockLedger) Restock(ctx context.Context, tx repositories.Tx, productID string, size domain.Size, quantity int) (domain.Product, error) {
	if err := l.add(ctx, tx, productID, size, quantity); err != nil {
		return domain.Product{}, err
	}
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, translateRepoError(err, ErrProductNotFound)
	}
	return product, nil
}

func (l *StockLedger) add(ctx context.Context, tx repositories.Tx, productID string, size domain.Size, quantity int) error {
	if quantity <= 0 || !size.Valid() {
		return fmt.Errorf("%w: invalid stock quantity %s x%d", ErrInvalidInput, size, quantity)
	}
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return translateRepoError(err, fmt.Errorf("%w: %s", ErrProductNotFound, productID))
	}
	if product.Stock == nil {
		product.Stock = make(map[domain.Size]int)
	}
	product.Stock[size] += quantity
	product.UpdatedAt = l.now()
	return tx.PutProduct(ctx, product)
}
