// Package licenseplates is the license plate (LP) ledger: lots of one product
// with a quantity, a lifecycle status and a QA status.
package licenseplates

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Lifecycle statuses.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusConsumed  = "consumed"
	StatusBlocked   = "blocked"
)

// QA statuses. QAOnHold is accepted from older clients and treated like
// quarantine.
const (
	QAPending    = "pending"
	QAPassed     = "passed"
	QAFailed     = "failed"
	QAQuarantine = "quarantine"
	QAOnHold     = "on_hold"
)

// Movement types.
const (
	MovementSplitOut    = "split_out"
	MovementSplitIn     = "split_in"
	MovementConsumption = "consumption"
	MovementOutput      = "output"
	MovementByProduct   = "by_product"
	MovementBlock       = "block"
	MovementUnblock     = "unblock"
	MovementAdjustment  = "adjustment"
)

var (
	ErrLPNotFound           = shared.NotFound("LP_NOT_FOUND", "license plate not found")
	ErrLPNotAvailable       = shared.Conflict("LP_NOT_AVAILABLE", "license plate is not available")
	ErrInvalidQuantity      = shared.Validation("INVALID_QUANTITY", "quantity must be greater than zero and less than the plate quantity")
	ErrInsufficientQuantity = shared.Validation("INSUFFICIENT_QUANTITY", "quantity exceeds the plate quantity")
	ErrLPLocked             = shared.Conflict("LP_LOCKED", "license plate is being modified by another request")
	ErrLPConsumed           = shared.Conflict("LP_CONSUMED", "consumed license plates cannot be edited")
)

// LicensePlate is one physical lot or container.
type LicensePlate struct {
	ID             uuid.UUID       `json:"id"`
	OrgID          uuid.UUID       `json:"-"`
	LPNumber       string          `json:"lp_number"`
	ProductID      uuid.UUID       `json:"product_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	UoM            string          `json:"uom"`
	Status         string          `json:"status"`
	QAStatus       string          `json:"qa_status"`
	BatchNumber    string          `json:"batch_number,omitempty"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	LocationID     *uuid.UUID      `json:"location_id,omitempty"`
	WarehouseID    *uuid.UUID      `json:"warehouse_id,omitempty"`
	ParentLPID     *uuid.UUID      `json:"parent_lp_id,omitempty"`
	ConsumedByWOID *uuid.UUID      `json:"consumed_by_wo_id,omitempty"`
	IsByProduct    bool            `json:"is_by_product"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OnQAHold reports whether QA currently forbids using the plate.
func (lp LicensePlate) OnQAHold() bool {
	return lp.QAStatus == QAQuarantine || lp.QAStatus == QAOnHold
}

// IsExpired compares the expiry date with today's date. A plate expiring
// today is still usable.
func (lp LicensePlate) IsExpired(now time.Time) bool {
	if lp.ExpiryDate == nil {
		return false
	}
	today := truncateDay(now)
	return truncateDay(*lp.ExpiryDate).Before(today)
}

// ExpiresWithin reports whether the plate expires in [today, today+days].
func (lp LicensePlate) ExpiresWithin(now time.Time, days int) bool {
	if lp.ExpiryDate == nil || lp.IsExpired(now) {
		return false
	}
	limit := truncateDay(now).AddDate(0, 0, days)
	return !truncateDay(*lp.ExpiryDate).After(limit)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Draw removes q from the plate. A plate drawn to zero becomes consumed and
// remembers the consuming work order.
func (lp *LicensePlate) Draw(q decimal.Decimal, woID *uuid.UUID) error {
	if !q.IsPositive() {
		return ErrInvalidQuantity
	}
	if q.GreaterThan(lp.Quantity) {
		return ErrInsufficientQuantity
	}
	lp.Quantity = lp.Quantity.Sub(q)
	if lp.Quantity.IsZero() {
		lp.Status = StatusConsumed
		lp.ConsumedByWOID = woID
	}
	return nil
}

// Movement is one ledger entry of a plate.
type Movement struct {
	ID           uuid.UUID       `json:"id"`
	OrgID        uuid.UUID       `json:"-"`
	LPID         uuid.UUID       `json:"lp_id"`
	MovementType string          `json:"movement_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	WOID         *uuid.UUID      `json:"wo_id,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedBy    *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ListFilter narrows List.
type ListFilter struct {
	Status      string
	QAStatus    string
	ProductID   *uuid.UUID
	WarehouseID *uuid.UUID
	LocationID  *uuid.UUID
	Search      string
	Page        shared.Page
}

// SplitInput is the POST body of a split.
type SplitInput struct {
	Quantity   decimal.Decimal `json:"quantity"`
	LocationID *uuid.UUID      `json:"location_id"`
	Notes      string          `json:"notes" validate:"max=500"`
}

// SplitResult holds both plates after a split.
type SplitResult struct {
	Source LicensePlate `json:"source"`
	Child  LicensePlate `json:"child"`
}

// UpdateInput is the PUT body; nil fields are left unchanged.
type UpdateInput struct {
	LocationID  *uuid.UUID `json:"location_id"`
	QAStatus    *string    `json:"qa_status" validate:"omitempty,oneof=pending passed failed quarantine on_hold"`
	BatchNumber *string    `json:"batch_number" validate:"omitempty,max=60"`
	ExpiryDate  *time.Time `json:"expiry_date"`
}

// BlockInput carries the reason for block and unblock.
type BlockInput struct {
	Reason string `json:"reason" validate:"max=500"`
}
