// Package workorders holds work order state: header, material lines and the
// status lifecycle driven by the status engine.
package workorders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Default status codes. Organisations may add custom statuses between them.
const (
	StatusDraft      = "draft"
	StatusReleased   = "released"
	StatusInProgress = "in_progress"
	StatusPaused     = "paused"
	StatusCompleted  = "completed"
	StatusClosed     = "closed"
	StatusCancelled  = "cancelled"
)

var (
	ErrWONotFound       = shared.NotFound("WO_NOT_FOUND", "work order not found")
	ErrMaterialNotFound = shared.NotFound("MATERIAL_NOT_FOUND", "work order material not found")
	ErrWONotInProgress  = shared.Conflict("WO_NOT_IN_PROGRESS", "work order is not in progress")
)

// WorkOrder is a production order for one product.
type WorkOrder struct {
	ID           uuid.UUID       `json:"id"`
	OrgID        uuid.UUID       `json:"-"`
	WONumber     string          `json:"wo_number"`
	ProductID    uuid.UUID       `json:"product_id"`
	ProductCode  string          `json:"product_code"`
	PlannedQty   decimal.Decimal `json:"planned_qty"`
	ProducedQty  decimal.Decimal `json:"produced_qty"`
	UoM          string          `json:"uom"`
	Status       string          `json:"status"`
	PlannedStart *time.Time      `json:"planned_start,omitempty"`
	PlannedEnd   *time.Time      `json:"planned_end,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RequireInProgress returns ErrWONotInProgress unless the order is running.
func (w WorkOrder) RequireInProgress() error {
	if w.Status != StatusInProgress {
		return ErrWONotInProgress.WithMessage("work order %s is %s", w.WONumber, w.Status)
	}
	return nil
}

// ProgressPercent is produced/planned as a percentage with one decimal.
func (w WorkOrder) ProgressPercent() decimal.Decimal {
	if !w.PlannedQty.IsPositive() {
		return decimal.Zero
	}
	return w.ProducedQty.Div(w.PlannedQty).Mul(decimal.NewFromInt(100)).Round(1)
}

// Overdue reports whether the planned end has passed without completion.
func (w WorkOrder) Overdue(now time.Time) bool {
	if w.PlannedEnd == nil || w.CompletedAt != nil {
		return false
	}
	switch w.Status {
	case StatusCompleted, StatusClosed, StatusCancelled:
		return false
	}
	return w.PlannedEnd.Before(now)
}

// Material is one input or by-product line of a work order.
type Material struct {
	ID                     uuid.UUID       `json:"id"`
	OrgID                  uuid.UUID       `json:"-"`
	WOID                   uuid.UUID       `json:"wo_id"`
	ProductID              uuid.UUID       `json:"product_id"`
	ProductCode            string          `json:"product_code"`
	UoM                    string          `json:"uom"`
	RequiredQty            decimal.Decimal `json:"required_qty"`
	ConsumedQty            decimal.Decimal `json:"consumed_qty"`
	ReservedQty            decimal.Decimal `json:"reserved_qty"`
	IsByProduct            bool            `json:"is_by_product"`
	YieldPercent           decimal.Decimal `json:"yield_percent"`
	ByProductRegisteredQty decimal.Decimal `json:"by_product_registered_qty"`
	ConsumeWholeLP         bool            `json:"consume_whole_lp"`
}

// Remaining is required minus consumed, never negative.
func (m Material) Remaining() decimal.Decimal {
	r := m.RequiredQty.Sub(m.ConsumedQty)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Facts counts used by transition guards.
type Facts struct {
	MaterialCount int
	OutputCount   int
}

// ListFilter narrows List.
type ListFilter struct {
	Status string
	Search string
	Page   shared.Page
}

// StatusInput is the POST body of a status change.
type StatusInput struct {
	Status string `json:"status" validate:"required,max=40"`
	Reason string `json:"reason" validate:"max=500"`
}
