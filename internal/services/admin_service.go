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

const couponIDPrefix = "cpn_"

// AdminServiceDeps wires collaborators for back-office maintenance.
type AdminServiceDeps struct {
	Store       repositories.Store
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type adminService struct {
	store  repositories.Store
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
	stock  *StockLedger
}

// NewAdminService constructs the back-office service.
func NewAdminService(deps AdminServiceDeps) (AdminService, error) {
	if deps.Store == nil {
		return nil, errors.New("admin service: store is required")
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
	return &adminService{
		store:  deps.Store,
		now:    func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
		stock:  NewStockLedger(clock),
	}, nil
}

// CreateCoupon stores a new active coupon. Codes are unique case-insensitively, as are names.
func (s *adminService) CreateCoupon(ctx context.Context, actor Actor, cmd CreateCouponCommand) (Coupon, error) {
	if err := requireAdmin(actor); err != nil {
		return Coupon{}, err
	}
	code := NormalizeCouponCode(cmd.Code)
	name := strings.TrimSpace(cmd.Name)
	switch {
	case code == "":
		return Coupon{}, fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	case name == "":
		return Coupon{}, fmt.Errorf("%w: coupon name is required", ErrInvalidInput)
	case cmd.UsageType != domain.CouponUsageOnce && cmd.UsageType != domain.CouponUsageMultiple:
		return Coupon{}, fmt.Errorf("%w: usage type must be once or multiple", ErrInvalidInput)
	case cmd.Discount <= 0:
		return Coupon{}, fmt.Errorf("%w: discount must be positive", ErrInvalidInput)
	case cmd.MinimumOrder < 0:
		return Coupon{}, fmt.Errorf("%w: minimum order must not be negative", ErrInvalidInput)
	case cmd.Limit <= 0:
		return Coupon{}, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	case !cmd.ExpiresAt.IsZero() && !cmd.ExpiresAt.After(cmd.ActiveFrom):
		return Coupon{}, fmt.Errorf("%w: expiry must be after activation", ErrInvalidInput)
	}

	now := s.now()
	coupon := domain.Coupon{
		ID:           couponIDPrefix + s.newID(),
		Code:         code,
		Name:         name,
		Status:       domain.CouponStatusActive,
		UsageType:    cmd.UsageType,
		ActiveFrom:   cmd.ActiveFrom.UTC(),
		ExpiresAt:    cmd.ExpiresAt.UTC(),
		Limit:        cmd.Limit,
		Discount:     cmd.Discount,
		MinimumOrder: cmd.MinimumOrder,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := tx.CreateCoupon(ctx, coupon); err != nil {
			if repositories.IsConflict(err) {
				return ErrCouponExists
			}
			return translateRepoError(err, nil)
		}
		return nil
	})
	if err != nil {
		return Coupon{}, err
	}
	s.logger(ctx, "coupon.created", map[string]any{
		"couponId": coupon.ID,
		"code":     coupon.Code,
		"adminId":  actor.UserID,
	})
	return coupon, nil
}

// Restock adds received units to a product size.
func (s *adminService) Restock(ctx context.Context, actor Actor, cmd RestockCommand) (Product, error) {
	if err := requireAdmin(actor); err != nil {
		return Product{}, err
	}
	var product domain.Product
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		product, err = s.stock.Restock(ctx, tx, strings.TrimSpace(cmd.ProductID), cmd.Size, cmd.Quantity)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.logger(ctx, "product.restocked", map[string]any{
		"productId": product.ID,
		"size":      string(cmd.Size),
		"quantity":  cmd.Quantity,
		"available": product.Available(cmd.Size),
	})
	return product, nil
}
