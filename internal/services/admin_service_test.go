package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func TestAdminCreateCoupon(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, err := NewAdminService(AdminServiceDeps{Store: store, Clock: fixedClock(fixtureNow), IDGenerator: sequenceIDs()})
	if err != nil {
		t.Fatalf("new admin service: %v", err)
	}

	cmd := CreateCouponCommand{
		Code:       " diwali ",
		Name:       "Diwali",
		UsageType:  domain.CouponUsageOnce,
		ActiveFrom: fixtureNow,
		ExpiresAt:  fixtureNow.Add(7 * 24 * time.Hour),
		Limit:      100,
		Discount:   150,
	}
	if _, err := svc.CreateCoupon(ctx, user1, cmd); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected customers to be forbidden, got %v", err)
	}

	coupon, err := svc.CreateCoupon(ctx, admin, cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if coupon.Code != "DIWALI" || coupon.Status != domain.CouponStatusActive || coupon.ID != "cpn_0001" {
		t.Fatalf("unexpected coupon %+v", coupon)
	}
	if _, ok := store.Coupon("DIWALI"); !ok {
		t.Fatalf("coupon not stored")
	}

	if _, err := svc.CreateCoupon(ctx, admin, cmd); !errors.Is(err, ErrCouponExists) {
		t.Fatalf("expected duplicate code, got %v", err)
	}
	renamed := cmd
	renamed.Code = "OTHER"
	renamed.Name = "  diwali"
	if _, err := svc.CreateCoupon(ctx, admin, renamed); !errors.Is(err, ErrCouponExists) {
		t.Fatalf("expected duplicate name, got %v", err)
	}

	invalid := cmd
	invalid.Code = "BAD"
	invalid.Name = "Bad"
	invalid.ExpiresAt = fixtureNow.Add(-time.Hour)
	if _, err := svc.CreateCoupon(ctx, admin, invalid); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected expiry validation, got %v", err)
	}
}

func TestAdminRestock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.SeedProduct(domain.Product{ID: "p1", Stock: map[domain.Size]int{domain.SizeL: 1}})
	svc, err := NewAdminService(AdminServiceDeps{Store: store, Clock: fixedClock(fixtureNow)})
	if err != nil {
		t.Fatalf("new admin service: %v", err)
	}

	product, err := svc.Restock(ctx, admin, RestockCommand{ProductID: "p1", Size: domain.SizeL, Quantity: 5})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if product.Available(domain.SizeL) != 6 {
		t.Fatalf("expected 6 on hand, got %d", product.Available(domain.SizeL))
	}
	if _, err := svc.Restock(ctx, admin, RestockCommand{ProductID: "p1", Size: domain.SizeL, Quantity: 0}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}
