// Package boms manages alternative components on bill of material items.
package boms

import (
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

var (
	ErrSameAsPrimary        = shared.Validation("SAME_AS_PRIMARY", "alternative cannot be the item's primary product")
	ErrCircularReference    = shared.Validation("CIRCULAR_REFERENCE", "alternative cannot be the BOM's output product")
	ErrDuplicateAlternative = shared.Conflict("DUPLICATE_ALTERNATIVE", "product is already an alternative for this item")
	ErrTypeMismatch         = shared.Validation("TYPE_MISMATCH", "alternative product type must match the primary product type")
	ErrDuplicatePreference  = shared.Conflict("DUPLICATE_PREFERENCE_ORDER", "preference order is already used by another alternative")
)

// WarningUoMMismatch is returned when the alternative's unit belongs to a
// different unit class than the primary's.
const WarningUoMMismatch = "UOM_MISMATCH"

// UoM classes.
const (
	UoMClassWeight = "weight"
	UoMClassVolume = "volume"
	UoMClassCount  = "count"
)

var uomClasses = map[string]string{
	"kg": UoMClassWeight, "g": UoMClassWeight, "mg": UoMClassWeight, "t": UoMClassWeight,
	"ton": UoMClassWeight, "lb": UoMClassWeight, "lbs": UoMClassWeight, "oz": UoMClassWeight,
	"l": UoMClassVolume, "ml": UoMClassVolume, "cl": UoMClassVolume, "dl": UoMClassVolume,
	"m3": UoMClassVolume, "gal": UoMClassVolume, "fl_oz": UoMClassVolume,
	"pcs": UoMClassCount, "pc": UoMClassCount, "ea": UoMClassCount, "each": UoMClassCount,
	"unit": UoMClassCount, "units": UoMClassCount, "box": UoMClassCount, "pack": UoMClassCount,
	"dozen": UoMClassCount,
}

// UoMClass returns the class of unit. Units missing from the table form a
// class of their own.
func UoMClass(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if class, ok := uomClasses[u]; ok {
		return class
	}
	return "unit:" + u
}

// RuleResult is the outcome of ValidateAlternativeRules. Error holds a code
// when Valid is false; Warning may be set on a valid result.
type RuleResult struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Err maps an invalid result to its sentinel error.
func (r RuleResult) Err() error {
	if r.Valid {
		return nil
	}
	switch r.Error {
	case ErrSameAsPrimary.Code:
		return ErrSameAsPrimary
	case ErrCircularReference.Code:
		return ErrCircularReference
	case ErrDuplicateAlternative.Code:
		return ErrDuplicateAlternative
	default:
		return ErrTypeMismatch
	}
}

func invalid(code string) RuleResult { return RuleResult{Valid: false, Error: code} }

// ValidateAlternativeRules checks a proposed alternative for primary. The
// checks run in a fixed order and the first failure wins. altProduct may be
// nil, in which case the type and unit checks are skipped.
//
// The BOM's own output product is always reported as CIRCULAR_REFERENCE, even
// on a malformed item whose primary product is that same output.
func ValidateAlternativeRules(primary Item, altProductID uuid.UUID, existing []Alternative, bomProductID uuid.UUID, altProduct *Product) RuleResult {
	if altProductID == bomProductID {
		return invalid(ErrCircularReference.Code)
	}
	if altProductID == primary.ProductID {
		return invalid(ErrSameAsPrimary.Code)
	}
	for _, alt := range existing {
		if alt.AlternativeProductID == altProductID {
			return invalid(ErrDuplicateAlternative.Code)
		}
	}
	if altProduct == nil {
		return RuleResult{Valid: true}
	}
	if primary.ProductType != "" && altProduct.ProductType != primary.ProductType {
		return invalid(ErrTypeMismatch.Code)
	}
	if UoMClass(altProduct.UoM) != UoMClass(primary.UoM) {
		return RuleResult{Valid: true, Warning: WarningUoMMismatch}
	}
	return RuleResult{Valid: true}
}

// NextPreferenceOrder returns max(existing)+1, never less than 2. Slot 1 is
// the primary product.
func NextPreferenceOrder(existing []Alternative) int {
	next := 2
	for _, alt := range existing {
		if alt.PreferenceOrder+1 > next {
			next = alt.PreferenceOrder + 1
		}
	}
	return next
}
