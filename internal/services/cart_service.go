package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const cartItemIDPrefix = "cit_"

var errCartStoreRequired = errors.New("cart service: store is required")

// CartServiceDeps wires the store for cart operations.
type CartServiceDeps struct {
	Store       repositories.Store
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type cartService struct {
	store  repositories.Store
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Store == nil {
		return nil, errCartStoreRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = newULID
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		store:  deps.Store,
		now:    func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, actor Actor) (CartView, error) {
	if err := requireUser(actor); err != nil {
		return CartView{}, err
	}
	var view CartView
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		cart, err := loadCart(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		view, err = buildCartView(ctx, tx, cart)
		return err
	})
	return view, err
}

// AddItem adds quantity of a product size at the current best price. Lines for the same product
// and size merge and keep the price captured first.
func (s *cartService) AddItem(ctx context.Context, actor Actor, cmd AddCartItemCommand) (CartView, error) {
	if err := requireUser(actor); err != nil {
		return CartView{}, err
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if !cmd.Size.Valid() {
		return CartView{}, fmt.Errorf("%w: unsupported size %q", ErrInvalidInput, cmd.Size)
	}
	if cmd.Quantity < 1 || cmd.Quantity > domain.MaxCartLineQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidInput, domain.MaxCartLineQuantity)
	}

	var view CartView
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		product, category, reason, err := classifyProduct(ctx, tx, productID, map[string]*domain.Category{})
		if err != nil {
			return err
		}
		if reason == IneligibleProductMissing {
			return ErrProductNotFound
		}
		if reason != "" {
			return fmt.Errorf("%w: product %s is not available (%s)", ErrInvalidInput, productID, reason)
		}

		cart, err := loadCart(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}

		now := s.now()
		index := -1
		for i, item := range cart.Items {
			if item.ProductID == productID && item.Size == cmd.Size {
				index = i
				break
			}
		}
		quantity := cmd.Quantity
		if index >= 0 {
			quantity += cart.Items[index].Quantity
		}
		if quantity > domain.MaxCartLineQuantity {
			return fmt.Errorf("%w: at most %d per line", ErrCartLineLimit, domain.MaxCartLineQuantity)
		}
		if available := product.Available(cmd.Size); quantity > available {
			return fmt.Errorf("%w: only %d left in size %s", ErrCartLineLimit, available, cmd.Size)
		}

		if index >= 0 {
			cart.Items[index].Quantity = quantity
		} else {
			cart.Items = append(cart.Items, domain.CartItem{
				ID:        cartItemIDPrefix + s.newID(),
				ProductID: productID,
				Size:      cmd.Size,
				Quantity:  quantity,
				UnitPrice: ResolveOffer(product, category).FinalPrice,
				AddedAt:   now,
			})
		}
		cart.UpdatedAt = now
		if err := tx.PutCart(ctx, cart); err != nil {
			return translateRepoError(err, nil)
		}
		view, err = buildCartView(ctx, tx, cart)
		return err
	})
	if err != nil {
		return CartView{}, err
	}
	s.logger(ctx, "cart.item.added", map[string]any{
		"userId":    actor.UserID,
		"productId": productID,
		"size":      string(cmd.Size),
		"quantity":  cmd.Quantity,
	})
	return view, nil
}

func (s *cartService) RemoveItem(ctx context.Context, actor Actor, itemID string) (CartView, error) {
	if err := requireUser(actor); err != nil {
		return CartView{}, err
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return CartView{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}

	var view CartView
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		cart, err := loadCart(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		kept := cart.Items[:0:0]
		for _, item := range cart.Items {
			if item.ID != itemID {
				kept = append(kept, item)
			}
		}
		if len(kept) == len(cart.Items) {
			return ErrCartItemNotFound
		}
		cart.Items = kept
		cart.UpdatedAt = s.now()
		if err := tx.PutCart(ctx, cart); err != nil {
			return translateRepoError(err, nil)
		}
		view, err = buildCartView(ctx, tx, cart)
		return err
	})
	return view, err
}

func loadCart(ctx context.Context, tx repositories.Tx, userID string) (domain.Cart, error) {
	cart, err := tx.GetCart(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, translateRepoError(err, nil)
	}
	return cart, nil
}

func buildCartView(ctx context.Context, tx repositories.Tx, cart domain.Cart) (CartView, error) {
	lines, ineligible, err := priceCart(ctx, tx, cart)
	if err != nil {
		return CartView{}, err
	}
	view := CartView{Cart: cart, Lines: lines, Ineligible: ineligible}
	for _, line := range lines {
		view.Total += line.Subtotal
	}
	return view, nil
}
