package services

import (
	"context"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const redemptionIDPrefix = "red_"

// CouponValidation is the outcome of a successful coupon check.
type CouponValidation struct {
	Coupon   domain.Coupon
	Discount int64
}

// CouponValidator checks coupon eligibility and records redemptions inside the caller's transaction.
type CouponValidator struct {
	now   func() time.Time
	newID func() string
}

// NewCouponValidator builds a validator using the supplied clock and id generator.
func NewCouponValidator(clock func() time.Time, idGen func() string) *CouponValidator {
	if clock == nil {
		clock = time.Now
	}
	if idGen == nil {
		idGen = newULID
	}
	return &CouponValidator{
		now:   func() time.Time { return clock().UTC() },
		newID: idGen,
	}
}

// NormalizeCouponCode canonicalises user input to the stored upper-case form.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate runs the coupon checks in order and stops at the first failure. rawTotal is the order
// total before any coupon. The discount never exceeds rawTotal.
func (v *CouponValidator) Validate(ctx context.Context, tx repositories.Tx, code, userID string, rawTotal int64) (CouponValidation, error) {
	code = NormalizeCouponCode(code)
	if code == "" {
		return CouponValidation{}, &CouponError{Code: code, Reason: CouponReasonNotFound}
	}

	coupon, err := tx.GetCoupon(ctx, code)
	if err != nil {
		if repositories.IsNotFound(err) {
			return CouponValidation{}, &CouponError{Code: code, Reason: CouponReasonNotFound}
		}
		return CouponValidation{}, translateRepoError(err, nil)
	}
	if coupon.Status != domain.CouponStatusActive {
		return CouponValidation{}, &CouponError{Code: code, Reason: CouponReasonInactive}
	}

	now := v.now()
	if !coupon.ActiveFrom.IsZero() && now.Before(coupon.ActiveFrom) {
		return CouponValidation{}, &CouponError{Code: code, Reason: CouponReasonNotStarted}
	}
	if !coupon.ExpiresAt.IsZero() && now.After(coupon.ExpiresAt) {
		return CouponValidation{}, &CouponError{Code: code, Reason: CouponReasonExpired}
	}
	if coupon.RedemptionCount >= coupon.Limit {
		return CouponValidation{}, &CouponError{Code: code, Reason: CouponReasonLimitReached}
	}

	if coupon.UsageType == domain.CouponUsageOnce {
		_, err := tx.GetRedemption(ctx, onceRedemptionID(coupon.ID, userID))
		switch {
		case err == nil:
			return CouponValidation{}, &CouponError{Code: code, Reason: CouponReasonAlreadyUsed}
		case !repositories.IsNotFound(err):
			return CouponValidation{}, translateRepoError(err, nil)
		}
	}

	if rawTotal < coupon.MinimumOrder {
		return CouponValidation{}, &CouponError{Code: code, Reason: CouponReasonMinimumNotMet}
	}

	discount := coupon.Discount
	if discount > rawTotal {
		discount = rawTotal
	}
	if discount < 0 {
		discount = 0
	}
	return CouponValidation{Coupon: coupon, Discount: discount}, nil
}

// Redeem appends a redemption for a committed order and bumps the coupon's redemption count.
// Once-coupons use a deterministic id so a second redemption by the same user conflicts.
func (v *CouponValidator) Redeem(ctx context.Context, tx repositories.Tx, coupon domain.Coupon, userID, orderID string) error {
	id := redemptionIDPrefix + v.newID()
	if coupon.UsageType == domain.CouponUsageOnce {
		id = onceRedemptionID(coupon.ID, userID)
	}
	err := tx.CreateRedemption(ctx, domain.CouponRedemption{
		ID:         id,
		CouponID:   coupon.ID,
		UserID:     userID,
		OrderID:    orderID,
		RedeemedAt: v.now(),
	})
	if err != nil {
		if repositories.IsConflict(err) {
			return &CouponError{Code: coupon.Code, Reason: CouponReasonAlreadyUsed}
		}
		return translateRepoError(err, nil)
	}

	coupon.RedemptionCount++
	coupon.UpdatedAt = v.now()
	return tx.PutCoupon(ctx, coupon)
}

func onceRedemptionID(couponID, userID string) string {
	return couponID + "_" + userID
}
