// Package pricing computes order line and order totals. All functions are pure.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// DiscountType selects how Discount.Value is applied.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Discount is an optional line discount. Percent values are in [0, 100];
// fixed values are an absolute amount off the line gross.
type Discount struct {
	Type  DiscountType    `json:"type" validate:"required,oneof=percent fixed"`
	Value decimal.Decimal `json:"value" validate:"gte=0"`
}

// Line is the minimal view of an order line needed for the order total.
type Line struct {
	LineTotal *decimal.Decimal
}

var (
	ErrInvalidUnitPrice = shared.Validation("INVALID_UNIT_PRICE", "unit price must be greater than zero")
	ErrInvalidDiscount  = shared.Validation("INVALID_DISCOUNT", "discount value must be zero or positive")
	ErrDiscountTooLarge = shared.Validation("INVALID_DISCOUNT", "percent discount cannot exceed 100")
	ErrDiscountType     = shared.Validation("INVALID_DISCOUNT", "discount type must be percent or fixed")
)

var hundred = decimal.NewFromInt(100)

// CalculateLineTotal returns round2(max(0, qty*unitPrice adjusted by discount)).
func CalculateLineTotal(qty, unitPrice decimal.Decimal, discount *Discount) decimal.Decimal {
	gross := qty.Mul(unitPrice)
	if discount == nil {
		return gross.Round(2)
	}
	var net decimal.Decimal
	switch discount.Type {
	case DiscountPercent:
		net = gross.Mul(decimal.NewFromInt(1).Sub(discount.Value.Div(hundred)))
	case DiscountFixed:
		net = gross.Sub(discount.Value)
	default:
		net = gross
	}
	if net.IsNegative() {
		net = decimal.Zero
	}
	return net.Round(2)
}

// CalculateOrderTotal sums line totals, treating missing totals as zero.
func CalculateOrderTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.LineTotal == nil {
			continue
		}
		total = total.Add(*l.LineTotal)
	}
	return total.Round(2)
}

// ValidateUnitPrice requires price > 0.
func ValidateUnitPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return ErrInvalidUnitPrice
	}
	return nil
}

// ValidateDiscount requires value >= 0, and value <= 100 for percent discounts.
// Fixed discounts have no upper bound; the line total clamps at zero instead.
func ValidateDiscount(d *Discount) error {
	if d == nil {
		return nil
	}
	if d.Type != DiscountPercent && d.Type != DiscountFixed {
		return ErrDiscountType
	}
	if d.Value.IsNegative() {
		return ErrInvalidDiscount
	}
	if d.Type == DiscountPercent && d.Value.GreaterThan(hundred) {
		return ErrDiscountTooLarge
	}
	return nil
}

// ErrInvalidQuantity rejects non positive line quantities.
var ErrInvalidQuantity = shared.Validation("INVALID_QUANTITY", "line quantity must be greater than zero")

// PriceLine validates one line and returns its total.
func PriceLine(qty, unitPrice decimal.Decimal, discount *Discount) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	if err := ValidateUnitPrice(unitPrice); err != nil {
		return decimal.Zero, err
	}
	if err := ValidateDiscount(discount); err != nil {
		return decimal.Zero, err
	}
	return CalculateLineTotal(qty, unitPrice, discount), nil
}
