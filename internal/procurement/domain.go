// Package procurement holds suppliers and purchase orders. Purchase order
// status changes go through the status engine like work orders do.
package procurement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Default purchase order status codes.
const (
	POStatusDraft     = "draft"
	POStatusSubmitted = "submitted"
	POStatusApproved  = "approved"
	POStatusCancelled = "cancelled"
)

var (
	ErrPONotFound        = shared.NotFound("PO_NOT_FOUND", "purchase order not found")
	ErrSupplierNotFound  = shared.NotFound("SUPPLIER_NOT_FOUND", "supplier not found")
	ErrSupplierInactive  = shared.Validation("SUPPLIER_INACTIVE", "supplier is inactive")
	ErrSupplierInUse     = shared.Conflict("SUPPLIER_IN_USE", "supplier is referenced by purchase orders; deactivate it instead")
	ErrDuplicateSupplier = shared.Conflict("DUPLICATE_SUPPLIER_CODE", "supplier code already exists")
	ErrProductNotFound   = shared.NotFound("PRODUCT_NOT_FOUND", "product not found")
)

// Supplier is a vendor purchase orders are placed with.
type Supplier struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"-"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// PurchaseOrder is a PO header with priced lines.
type PurchaseOrder struct {
	ID           uuid.UUID       `json:"id"`
	OrgID        uuid.UUID       `json:"-"`
	PONumber     string          `json:"po_number"`
	SupplierID   uuid.UUID       `json:"supplier_id"`
	SupplierName string          `json:"supplier_name,omitempty"`
	Status       string          `json:"status"`
	Currency     string          `json:"currency"`
	ExpectedDate *time.Time      `json:"expected_date,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Notes        string          `json:"notes,omitempty"`
	CreatedBy    *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Lines        []POLine        `json:"lines"`
}

// POLine is one priced purchase order line.
type POLine struct {
	ID        uuid.UUID         `json:"id"`
	LineNo    int               `json:"line_no"`
	ProductID uuid.UUID         `json:"product_id"`
	Quantity  decimal.Decimal   `json:"quantity"`
	UoM       string            `json:"uom"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Discount  *pricing.Discount `json:"discount,omitempty"`
	LineTotal decimal.Decimal   `json:"line_total"`
}

// SupplierInput creates a supplier.
type SupplierInput struct {
	Code string `json:"code" validate:"required,max=40"`
	Name string `json:"name" validate:"required,max=200"`
}

// CreatePOInput creates a draft purchase order.
type CreatePOInput struct {
	SupplierID   uuid.UUID     `json:"supplier_id" validate:"required"`
	Currency     string        `json:"currency" validate:"required,len=3"`
	ExpectedDate *time.Time    `json:"expected_date"`
	Notes        string        `json:"notes" validate:"max=1000"`
	Lines        []POLineInput `json:"lines" validate:"omitempty,dive"`
}

// POLineInput is one requested PO line. Lines are optional on creation; the
// submit transition is guarded on having at least one.
type POLineInput struct {
	ProductID uuid.UUID         `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal   `json:"quantity"`
	UoM       string            `json:"uom" validate:"required,max=20"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Discount  *pricing.Discount `json:"discount" validate:"omitempty"`
}

// StatusInput requests a purchase order transition.
type StatusInput struct {
	Status string `json:"status" validate:"required,max=40"`
	Reason string `json:"reason" validate:"max=500"`
}
