package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestProductRuleBeatsCategoryRule(t *testing.T) {
	p := domain.Product{SalePrice: d("100"), Category: "İçecek", DiscountValue: d("5"), DiscountType: domain.DiscountFixed}
	discounts := []domain.CategoryDiscount{{Category: "İçecek", DiscountValue: d("50"), DiscountType: domain.DiscountPercentage}}

	res := Resolve(p, discounts)
	if res.AppliedRule != domain.RuleProduct {
		t.Fatalf("expected product rule, got %q", res.AppliedRule)
	}
	if !res.FinalPrice.Equal(d("95")) || !res.DiscountApplied.Equal(d("5")) {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestCategoryRuleMatchesCaseInsensitively(t *testing.T) {
	p := domain.Product{SalePrice: d("80"), Category: " içecek "}
	discounts := []domain.CategoryDiscount{
		{Category: "Gıda", DiscountValue: d("20"), DiscountType: domain.DiscountPercentage},
		{Category: "İÇECEK", DiscountValue: d("0"), DiscountType: domain.DiscountPercentage},
		{Category: "içecek", DiscountValue: d("25"), DiscountType: domain.DiscountPercentage},
	}

	res := Resolve(p, discounts)
	if res.AppliedRule != domain.RuleCategory {
		t.Fatalf("expected category rule, got %q", res.AppliedRule)
	}
	if !res.FinalPrice.Equal(d("60")) {
		t.Fatalf("expected 60, got %s", res.FinalPrice)
	}
}

func TestFixedDiscountClampsAtZero(t *testing.T) {
	p := domain.Product{SalePrice: d("30"), DiscountValue: d("45"), DiscountType: domain.DiscountFixed}

	res := Resolve(p, nil)
	if !res.FinalPrice.IsZero() {
		t.Fatalf("expected final price 0, got %s", res.FinalPrice)
	}
	if !res.DiscountApplied.Equal(d("30")) {
		t.Fatalf("expected discount 30, got %s", res.DiscountApplied)
	}
}

func TestNoRuleLeavesPriceUntouched(t *testing.T) {
	p := domain.Product{SalePrice: d("12.5"), Category: "Temizlik"}
	discounts := []domain.CategoryDiscount{{Category: "İçecek", DiscountValue: d("10"), DiscountType: domain.DiscountPercentage}}

	res := Resolve(p, discounts)
	if res.AppliedRule != domain.RuleNone || !res.FinalPrice.Equal(d("12.5")) || !res.DiscountApplied.IsZero() {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if !LineTotal(res, 4).Equal(d("50")) {
		t.Fatalf("expected line total 50, got %s", LineTotal(res, 4))
	}
}

func TestUnknownDiscountTypeAppliesNothing(t *testing.T) {
	p := domain.Product{SalePrice: d("40"), DiscountValue: d("10"), DiscountType: "bogus"}

	res := Resolve(p, nil)
	if !res.FinalPrice.Equal(d("40")) || res.AppliedRule != domain.RuleNone {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}
