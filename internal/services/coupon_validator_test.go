package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func TestCouponValidatorReasons(t *testing.T) {
	base := domain.Coupon{
		ID:           "cpn-1",
		Code:         "SAVE",
		Name:         "Save",
		Status:       domain.CouponStatusActive,
		UsageType:    domain.CouponUsageOnce,
		ActiveFrom:   fixtureNow.Add(-24 * time.Hour),
		ExpiresAt:    fixtureNow.Add(24 * time.Hour),
		Limit:        3,
		Discount:     80,
		MinimumOrder: 200,
	}

	tests := []struct {
		name     string
		code     string
		mutate   func(*domain.Coupon)
		redeemed bool
		total    int64
		want     CouponReason
		discount int64
	}{
		{name: "valid", code: "save", total: 300, discount: 80},
		{name: "discount capped at total", code: "SAVE", total: 60, mutate: func(c *domain.Coupon) { c.MinimumOrder = 0 }, discount: 60},
		{name: "unknown code", code: "NOPE", total: 300, want: CouponReasonNotFound},
		{name: "inactive", code: "SAVE", total: 300, mutate: func(c *domain.Coupon) { c.Status = domain.CouponStatusInactive }, want: CouponReasonInactive},
		{name: "not started", code: "SAVE", total: 300, mutate: func(c *domain.Coupon) { c.ActiveFrom = fixtureNow.Add(time.Hour) }, want: CouponReasonNotStarted},
		{name: "expired", code: "SAVE", total: 300, mutate: func(c *domain.Coupon) { c.ExpiresAt = fixtureNow.Add(-time.Hour) }, want: CouponReasonExpired},
		{name: "limit reached", code: "SAVE", total: 300, mutate: func(c *domain.Coupon) { c.RedemptionCount = 3 }, want: CouponReasonLimitReached},
		{name: "already used", code: "SAVE", total: 300, redeemed: true, want: CouponReasonAlreadyUsed},
		{name: "minimum not met", code: "SAVE", total: 199, want: CouponReasonMinimumNotMet},
		{name: "expiry checked before minimum", code: "SAVE", total: 10, mutate: func(c *domain.Coupon) { c.ExpiresAt = fixtureNow.Add(-time.Hour) }, want: CouponReasonExpired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore()
			coupon := base
			if tc.mutate != nil {
				tc.mutate(&coupon)
			}
			store.SeedCoupon(coupon)
			validator := NewCouponValidator(fixedClock(fixtureNow), sequenceIDs())
			if tc.redeemed {
				err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
					return validator.Redeem(ctx, tx, coupon, "user-1", "ord-0")
				})
				if err != nil {
					t.Fatalf("seed redemption: %v", err)
				}
			}

			var got CouponValidation
			err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
				var err error
				got, err = validator.Validate(ctx, tx, tc.code, "user-1", tc.total)
				return err
			})

			if tc.want == "" {
				if err != nil {
					t.Fatalf("expected valid coupon, got %v", err)
				}
				if got.Discount != tc.discount {
					t.Fatalf("expected discount %d, got %d", tc.discount, got.Discount)
				}
				return
			}
			var couponErr *CouponError
			if !errors.As(err, &couponErr) || couponErr.Reason != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrCouponInvalid) {
				t.Fatalf("expected ErrCouponInvalid in chain")
			}
		})
	}
}

func TestCouponRedeemMultipleUseCountsEachOrder(t *testing.T) {
	store := memory.NewStore()
	coupon := domain.Coupon{ID: "cpn-2", Code: "MANY", Name: "Many", Status: domain.CouponStatusActive, UsageType: domain.CouponUsageMultiple, Limit: 5, Discount: 10}
	store.SeedCoupon(coupon)
	validator := NewCouponValidator(fixedClock(fixtureNow), sequenceIDs())

	for i := 0; i < 2; i++ {
		err := store.RunInTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
			v, err := validator.Validate(ctx, tx, "MANY", "user-1", 100)
			if err != nil {
				return err
			}
			return validator.Redeem(ctx, tx, v.Coupon, "user-1", "ord")
		})
		if err != nil {
			t.Fatalf("redeem %d: %v", i, err)
		}
	}
	got, _ := store.Coupon("MANY")
	if got.RedemptionCount != 2 || len(store.Redemptions("cpn-2")) != 2 {
		t.Fatalf("expected two redemptions, got count %d", got.RedemptionCount)
	}
}
