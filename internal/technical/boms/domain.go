package boms

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

var (
	ErrBOMItemNotFound     = shared.NotFound("BOM_ITEM_NOT_FOUND", "BOM item not found")
	ErrProductNotFound     = shared.NotFound("PRODUCT_NOT_FOUND", "alternative product not found")
	ErrAlternativeNotFound = shared.NotFound("ALTERNATIVE_NOT_FOUND", "alternative not found")
)

// Product is the subset of product master data the rules need.
type Product struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	ProductType string    `json:"product_type"`
	UoM         string    `json:"uom"`
}

// Item is a BOM line together with its primary product attributes and the
// BOM's output product.
type Item struct {
	ID           uuid.UUID       `json:"id"`
	BOMID        uuid.UUID       `json:"bom_id"`
	BOMProductID uuid.UUID       `json:"bom_product_id"`
	ProductID    uuid.UUID       `json:"product_id"`
	ProductType  string          `json:"product_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	UoM          string          `json:"uom"`
}

// Alternative is a substitute product for a BOM item.
type Alternative struct {
	ID                   uuid.UUID       `json:"id"`
	BOMItemID            uuid.UUID       `json:"bom_item_id"`
	AlternativeProductID uuid.UUID       `json:"alternative_product_id"`
	ProductCode          string          `json:"product_code,omitempty"`
	ProductName          string          `json:"product_name,omitempty"`
	Quantity             decimal.Decimal `json:"quantity"`
	UoM                  string          `json:"uom"`
	PreferenceOrder      int             `json:"preference_order"`
	Notes                string          `json:"notes,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// CreateAlternativeInput is the POST body for a new alternative.
type CreateAlternativeInput struct {
	AlternativeProductID uuid.UUID       `json:"alternative_product_id" validate:"required"`
	Quantity             decimal.Decimal `json:"quantity" validate:"gt=0"`
	UoM                  string          `json:"uom" validate:"omitempty,max=20"`
	PreferenceOrder      *int            `json:"preference_order" validate:"omitempty,gte=2"`
	Notes                string          `json:"notes" validate:"max=500"`
}

// CreateResult is returned after creating an alternative.
type CreateResult struct {
	Alternative Alternative `json:"alternative"`
	Warning     string      `json:"warning,omitempty"`
}
