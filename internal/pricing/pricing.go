// Package pricing resolves the effective unit price of a product at sale time.
package pricing

import (
	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type Resolution struct {
	FinalPrice      decimal.Decimal
	DiscountApplied decimal.Decimal
	OriginalPrice   decimal.Decimal
	AppliedRule     domain.DiscountRule
}

// Resolve applies the product's own discount when it has one, otherwise the
// first matching category discount. Category names match case-insensitively.
func Resolve(product domain.Product, discounts []domain.CategoryDiscount) Resolution {
	original := product.SalePrice
	res := Resolution{FinalPrice: original, DiscountApplied: decimal.Zero, OriginalPrice: original, AppliedRule: domain.RuleNone}

	if product.DiscountValue.IsPositive() {
		return apply(res, product.DiscountType, product.DiscountValue, domain.RuleProduct)
	}

	category := domain.CategoryKey(product.Category)
	if category == "" {
		return res
	}
	for _, d := range discounts {
		if !d.DiscountValue.IsPositive() {
			continue
		}
		if domain.CategoryKey(d.Category) == category {
			return apply(res, d.DiscountType, d.DiscountValue, domain.RuleCategory)
		}
	}
	return res
}

func apply(res Resolution, kind domain.DiscountType, value decimal.Decimal, rule domain.DiscountRule) Resolution {
	var amount decimal.Decimal
	switch kind {
	case domain.DiscountPercentage:
		amount = res.OriginalPrice.Mul(value).Div(hundred)
	case domain.DiscountFixed:
		amount = value
	default:
		return res
	}
	final := res.OriginalPrice.Sub(amount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	res.FinalPrice = final
	res.DiscountApplied = res.OriginalPrice.Sub(final)
	res.AppliedRule = rule
	return res
}

func LineTotal(res Resolution, qty int) decimal.Decimal {
	return res.FinalPrice.Mul(decimal.NewFromInt(int64(qty)))
}
