package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/sales/pricing"
)

// CreateRequest is the POST body of a sales order.
type CreateRequest struct {
	CustomerID uuid.UUID     `json:"customer_id" validate:"required"`
	Currency   string        `json:"currency" validate:"required,len=3"`
	OrderDate  *time.Time    `json:"order_date"`
	ShipDate   *time.Time    `json:"ship_date"`
	Notes      string        `json:"notes" validate:"max=1000"`
	Lines      []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// LineRequest is one requested line. The line total is always computed.
type LineRequest struct {
	ProductID uuid.UUID         `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal   `json:"quantity"`
	UoM       string            `json:"uom" validate:"required,max=20"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Discount  *pricing.Discount `json:"discount" validate:"omitempty"`
}
