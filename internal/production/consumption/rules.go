// Package consumption records material drawn from license plates into work
// orders.
package consumption

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

// WarningExceedsRequired is returned with a successful consumption that takes
// the line past its required quantity.
const WarningExceedsRequired = "EXCEEDS_REQUIRED_QUANTITY"

var (
	ErrLPQAHold            = shared.Conflict("LP_QA_HOLD", "license plate is on QA hold")
	ErrLPExpired           = shared.Conflict("LP_EXPIRED", "license plate is expired")
	ErrProductMismatch     = shared.Validation("PRODUCT_MISMATCH", "license plate product does not match the material")
	ErrUoMMismatch         = shared.Validation("UOM_MISMATCH", "license plate unit does not match the material")
	ErrOverConsumption     = shared.Conflict("OVER_CONSUMPTION_BLOCKED", "consumption would exceed the required quantity")
	ErrFullLPRequired      = shared.Validation("FULL_LP_REQUIRED", "this material must consume the whole license plate")
	ErrByProductMaterial   = shared.Validation("MATERIAL_IS_BY_PRODUCT", "by-product lines cannot be consumed")
	errQuantityNotPositive = licenseplates.ErrInvalidQuantity.WithMessage("quantity must be greater than zero")
)

// ValidateLP checks that lp can feed material m. reservedForLine is true when
// lp holds an active reservation for m, which makes a reserved plate usable.
// Checks run in a fixed order and the first failure wins.
func ValidateLP(lp *licenseplates.LicensePlate, m workorders.Material, reservedForLine bool, now time.Time) error {
	if lp == nil {
		return licenseplates.ErrLPNotFound
	}
	if lp.OnQAHold() {
		return ErrLPQAHold.WithMessage("license plate %s is in %s", lp.LPNumber, lp.QAStatus)
	}
	if lp.IsExpired(now) {
		return ErrLPExpired.WithMessage("license plate %s expired on %s", lp.LPNumber, lp.ExpiryDate.Format(time.DateOnly))
	}
	usable := lp.Status == licenseplates.StatusAvailable ||
		(lp.Status == licenseplates.StatusReserved && reservedForLine)
	if !usable {
		return licenseplates.ErrLPNotAvailable.WithMessage("license plate %s is %s", lp.LPNumber, lp.Status)
	}
	if lp.ProductID != m.ProductID {
		return ErrProductMismatch
	}
	if lp.UoM != m.UoM {
		return ErrUoMMismatch.WithMessage("license plate is in %s, material expects %s", lp.UoM, m.UoM)
	}
	return nil
}

// ValidateQuantity rejects non-positive quantities and quantities above the
// plate's balance.
func ValidateQuantity(lp licenseplates.LicensePlate, q decimal.Decimal) error {
	if !q.IsPositive() {
		return errQuantityNotPositive
	}
	if q.GreaterThan(lp.Quantity) {
		return licenseplates.ErrInsufficientQuantity.WithMessage("plate %s holds %s", lp.LPNumber, lp.Quantity)
	}
	return nil
}

// ValidateConsumptionLimit compares consumed+q with the required quantity.
// Exceeding it is an error when allowOver is false and a warning otherwise.
func ValidateConsumptionLimit(m workorders.Material, q decimal.Decimal, allowOver bool) (string, error) {
	if m.ConsumedQty.Add(q).LessThanOrEqual(m.RequiredQty) {
		return "", nil
	}
	if !allowOver {
		return "", ErrOverConsumption.WithMessage("consumed %s + %s exceeds required %s", m.ConsumedQty, q, m.RequiredQty)
	}
	return WarningExceedsRequired, nil
}

// ValidateWholeLP enforces consume_whole_lp lines.
func ValidateWholeLP(lp licenseplates.LicensePlate, m workorders.Material, q decimal.Decimal) error {
	if m.ConsumeWholeLP && !q.Equal(lp.Quantity) {
		return ErrFullLPRequired.WithMessage("quantity must equal the plate quantity %s", lp.Quantity)
	}
	return nil
}

// Check runs every rule in order and returns the warning of a valid request.
func Check(lp *licenseplates.LicensePlate, m workorders.Material, reservedForLine bool, q decimal.Decimal, allowOver bool, now time.Time) (string, error) {
	if m.IsByProduct {
		return "", ErrByProductMaterial
	}
	if err := ValidateLP(lp, m, reservedForLine, now); err != nil {
		return "", err
	}
	if err := ValidateQuantity(*lp, q); err != nil {
		return "", err
	}
	warning, err := ValidateConsumptionLimit(m, q, allowOver)
	if err != nil {
		return "", err
	}
	if err := ValidateWholeLP(*lp, m, q); err != nil {
		return "", err
	}
	return warning, nil
}
