package services

import (
	"math"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// OfferSource records which offer produced the discount.
type OfferSource string

const (
	OfferSourceNone     OfferSource = "none"
	OfferSourceProduct  OfferSource = "product"
	OfferSourceCategory OfferSource = "category"
)

// OfferResolution is the best current price of a product.
type OfferResolution struct {
	HasOffer        bool
	DiscountPercent float64
	Source          OfferSource
	FinalPrice      int64
}

// ResolveOffer picks the larger of the product and category offers. Offers never stack; an equal
// non-zero pair is attributed to the category. Percentages outside 0..100 count as no offer.
func ResolveOffer(product domain.Product, category *domain.Category) OfferResolution {
	none := OfferResolution{Source: OfferSourceNone, FinalPrice: product.RegularPrice}
	if product.RegularPrice <= 0 {
		return none
	}

	productPct := sanePercent(product.OfferPercent)
	categoryPct := 0.0
	if category != nil {
		categoryPct = sanePercent(category.OfferPercent)
	}

	pct, source := productPct, OfferSourceProduct
	if categoryPct >= productPct {
		pct, source = categoryPct, OfferSourceCategory
	}
	if pct == 0 {
		return none
	}

	final := int64(math.Round(float64(product.RegularPrice) * (1 - pct/100)))
	if final < 0 || final > product.RegularPrice {
		return none
	}
	return OfferResolution{
		HasOffer:        true,
		DiscountPercent: pct,
		Source:          source,
		FinalPrice:      final,
	}
}

// EffectiveUnitPrice charges the lower of the price captured in the cart and the current best price.
func EffectiveUnitPrice(cartPrice int64, resolution OfferResolution) int64 {
	if cartPrice <= 0 {
		return resolution.FinalPrice
	}
	if resolution.FinalPrice < cartPrice {
		return resolution.FinalPrice
	}
	return cartPrice
}

func sanePercent(pct float64) float64 {
	if math.IsNaN(pct) || pct <= 0 || pct > 100 {
		return 0
	}
	return pct
}
