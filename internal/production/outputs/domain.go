// Package outputs registers what a work order produces: the main output plates
// and the by-products recorded against by-product material lines.
package outputs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

var (
	ErrNotAByProduct       = shared.Validation("NOT_A_BY_PRODUCT", "material line is not a by-product")
	ErrZeroQtyConfirmation = shared.Conflict("ZERO_QTY_CONFIRMATION_REQUIRED", "registering a zero quantity requires confirm_zero_qty")
	ErrMainOutputRequired  = shared.Conflict("MAIN_OUTPUT_REQUIRED", "register the main output before its by-products")
	ErrOutputNotFound      = shared.NotFound("OUTPUT_NOT_FOUND", "production output not found")
	errNegativeQuantity    = licenseplates.ErrInvalidQuantity.WithMessage("quantity cannot be negative")
	errQuantityNotPositive = licenseplates.ErrInvalidQuantity.WithMessage("quantity must be greater than zero")
)

// Output is one production_outputs row. LPID is nil for a confirmed zero
// by-product.
type Output struct {
	ID             uuid.UUID       `json:"id"`
	OrgID          uuid.UUID       `json:"-"`
	WOID           uuid.UUID       `json:"wo_id"`
	MaterialID     *uuid.UUID      `json:"material_id,omitempty"`
	LPID           *uuid.UUID      `json:"lp_id,omitempty"`
	LPNumber       string          `json:"lp_number,omitempty"`
	BatchNumber    string          `json:"batch_number,omitempty"`
	ProductID      uuid.UUID       `json:"product_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	IsByProduct    bool            `json:"is_by_product"`
	ParentOutputID *uuid.UUID      `json:"parent_output_id,omitempty"`
	RegisteredBy   *uuid.UUID      `json:"registered_by,omitempty"`
	RegisteredAt   time.Time       `json:"registered_at"`
	Notes          string          `json:"notes,omitempty"`
}

// ExpectedQty is the by-product quantity a line should yield from mainQty.
func ExpectedQty(m workorders.Material, mainQty decimal.Decimal) decimal.Decimal {
	return mainQty.Mul(m.YieldPercent).Div(decimal.NewFromInt(100)).Round(4)
}

// ByProductBatch derives the batch number of a by-product plate.
func ByProductBatch(mainBatch, productCode string) string {
	return fmt.Sprintf("%s-BP-%s", mainBatch, productCode)
}

// ValidateByProductQuantity accepts positive quantities and zero when the
// caller confirmed it.
func ValidateByProductQuantity(q decimal.Decimal, confirmZero bool) error {
	switch {
	case q.IsNegative():
		return errNegativeQuantity
	case q.IsZero() && !confirmZero:
		return ErrZeroQtyConfirmation
	}
	return nil
}

// MainOutputInput is the POST body of a main output registration.
type MainOutputInput struct {
	Quantity    decimal.Decimal `json:"quantity"`
	BatchNumber string          `json:"batch_number" validate:"max=60"`
	QAStatus    string          `json:"qa_status" validate:"omitempty,oneof=pending passed failed quarantine"`
	ExpiryDate  *time.Time      `json:"expiry_date"`
	LocationID  *uuid.UUID      `json:"location_id"`
	WarehouseID *uuid.UUID      `json:"warehouse_id"`
	Notes       string          `json:"notes" validate:"max=500"`
}

// ByProductInput is the POST body of a by-product registration. MainOutputID
// defaults to the latest main output of the work order.
type ByProductInput struct {
	MaterialID     uuid.UUID       `json:"material_id" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	ConfirmZeroQty bool            `json:"confirm_zero_qty"`
	MainOutputID   *uuid.UUID      `json:"main_output_id"`
	LocationID     *uuid.UUID      `json:"location_id"`
	Notes          string          `json:"notes" validate:"max=500"`
}

// MainResult describes a registered main output.
type MainResult struct {
	Output    Output                     `json:"output"`
	LP        licenseplates.LicensePlate `json:"license_plate"`
	WorkOrder workorders.WorkOrder       `json:"work_order"`
}

// ByProductResult describes a registered by-product. LP is nil for a
// confirmed zero quantity.
type ByProductResult struct {
	Output      Output                      `json:"output"`
	LP          *licenseplates.LicensePlate `json:"license_plate,omitempty"`
	Material    workorders.Material         `json:"material"`
	ExpectedQty decimal.Decimal             `json:"expected_qty"`
}

// ByProductLine is one by-product material with its registrations.
type ByProductLine struct {
	Material      workorders.Material `json:"material"`
	ExpectedQty   decimal.Decimal     `json:"expected_qty"`
	RegisteredQty decimal.Decimal     `json:"registered_qty"`
	Outputs       []Output            `json:"outputs"`
}
