package consumption

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

// Reservation statuses.
const (
	ReservationActive   = "active"
	ReservationConsumed = "consumed"
	ReservationReleased = "released"
)

// Reservation earmarks part of a plate for one work order line.
type Reservation struct {
	ID          uuid.UUID       `json:"id"`
	OrgID       uuid.UUID       `json:"-"`
	LPID        uuid.UUID       `json:"lp_id"`
	WOID        uuid.UUID       `json:"wo_id"`
	MaterialID  uuid.UUID       `json:"material_id"`
	ReservedQty decimal.Decimal `json:"reserved_qty"`
	Status      string          `json:"status"`
}

// Draw takes up to q from the reservation and returns the amount taken.
func (r *Reservation) Draw(q decimal.Decimal) decimal.Decimal {
	taken := decimal.Min(q, r.ReservedQty)
	r.ReservedQty = r.ReservedQty.Sub(taken)
	if r.ReservedQty.IsZero() {
		r.Status = ReservationConsumed
	}
	return taken
}

// Record is the audit row of one consumption.
type Record struct {
	ID              uuid.UUID       `json:"id"`
	OrgID           uuid.UUID       `json:"-"`
	WOID            uuid.UUID       `json:"wo_id"`
	MaterialID      uuid.UUID       `json:"material_id"`
	LPID            uuid.UUID       `json:"lp_id"`
	LPNumber        string          `json:"lp_number,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	ConsumedBy      *uuid.UUID      `json:"consumed_by,omitempty"`
	ConsumedAt      time.Time       `json:"consumed_at"`
	OverConsumption bool            `json:"over_consumption"`
	Notes           string          `json:"notes,omitempty"`
}

// ConsumeInput is the POST body of a consumption.
type ConsumeInput struct {
	MaterialID uuid.UUID       `json:"material_id" validate:"required"`
	LPID       uuid.UUID       `json:"lp_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	Notes      string          `json:"notes" validate:"max=500"`
}

// ValidateInput is the body of a validate-lp dry run. A zero quantity skips
// the quantity rules.
type ValidateInput struct {
	LPID     uuid.UUID       `json:"lp_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Result describes an applied consumption.
type Result struct {
	Record   Record                     `json:"consumption"`
	LP       licenseplates.LicensePlate `json:"license_plate"`
	Material workorders.Material        `json:"material"`
	Warning  string                     `json:"warning,omitempty"`
}

// Verdict is the outcome of a dry run.
type Verdict struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Warning string `json:"warning,omitempty"`
}
