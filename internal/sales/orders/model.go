// Package orders holds shipping sales orders whose lines are priced with the
// pricing package.
package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Status codes.
const (
	StatusDraft     = "draft"
	StatusConfirmed = "confirmed"
	StatusShipped   = "shipped"
	StatusCancelled = "cancelled"
)

var (
	ErrOrderNotFound    = shared.NotFound("SALES_ORDER_NOT_FOUND", "sales order not found")
	ErrCustomerNotFound = shared.NotFound("CUSTOMER_NOT_FOUND", "customer not found")
	ErrProductNotFound  = shared.NotFound("PRODUCT_NOT_FOUND", "product not found")
)

// SalesOrder is an order header with its priced lines.
type SalesOrder struct {
	ID           uuid.UUID       `json:"id"`
	OrgID        uuid.UUID       `json:"-"`
	SONumber     string          `json:"so_number"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerName string          `json:"customer_name,omitempty"`
	Status       string          `json:"status"`
	Currency     string          `json:"currency"`
	OrderDate    time.Time       `json:"order_date"`
	ShipDate     *time.Time      `json:"ship_date,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Notes        string          `json:"notes,omitempty"`
	CreatedBy    *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Lines        []Line          `json:"lines"`
}

// Line is one priced order line.
type Line struct {
	ID        uuid.UUID         `json:"id"`
	LineNo    int               `json:"line_no"`
	ProductID uuid.UUID         `json:"product_id"`
	Quantity  decimal.Decimal   `json:"quantity"`
	UoM       string            `json:"uom"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Discount  *pricing.Discount `json:"discount,omitempty"`
	LineTotal decimal.Decimal   `json:"line_total"`
}

// ListFilter narrows List.
type ListFilter struct {
	Status     string
	CustomerID *uuid.UUID
	Page       shared.Page
}
