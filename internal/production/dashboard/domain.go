// Package dashboard serves the production dashboard read model: KPIs, the
// active work order board and alerts, cached per organisation.
package dashboard

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Alert types.
const (
	AlertMaterialShortage = "material_shortage"
	AlertLPExpired        = "lp_expired"
	AlertLPExpiring       = "lp_expiring"
	AlertLPQAHold         = "lp_qa_hold"
	AlertWOOverdue        = "wo_overdue"
)

// Severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var ErrUnsupportedFormat = shared.Validation("UNSUPPORTED_FORMAT", "format must be csv or xlsx")

// KPIs summarise today's production for one organisation.
type KPIs struct {
	InProgress       int             `json:"in_progress"`
	CompletedToday   int             `json:"completed_today"`
	OutputToday      decimal.Decimal `json:"output_today"`
	ConsumptionToday decimal.Decimal `json:"consumption_today"`
	OpenAlerts       int             `json:"open_alerts"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// ActiveWO is one row of the work order board.
type ActiveWO struct {
	ID              uuid.UUID       `json:"id"`
	WONumber        string          `json:"wo_number"`
	ProductCode     string          `json:"product_code"`
	Status          string          `json:"status"`
	PlannedQty      decimal.Decimal `json:"planned_qty"`
	ProducedQty     decimal.Decimal `json:"produced_qty"`
	UoM             string          `json:"uom"`
	ProgressPercent decimal.Decimal `json:"progress_percent"`
	PlannedEnd      *time.Time      `json:"planned_end,omitempty"`
	Overdue         bool            `json:"overdue"`
}

func newActiveWO(wo workorders.WorkOrder, now time.Time) ActiveWO {
	return ActiveWO{
		ID:              wo.ID,
		WONumber:        wo.WONumber,
		ProductCode:     wo.ProductCode,
		Status:          wo.Status,
		PlannedQty:      wo.PlannedQty,
		ProducedQty:     wo.ProducedQty,
		UoM:             wo.UoM,
		ProgressPercent: wo.ProgressPercent(),
		PlannedEnd:      wo.PlannedEnd,
		Overdue:         wo.Overdue(now),
	}
}

// ActivePage is a page of the work order board.
type ActivePage struct {
	Items []ActiveWO `json:"items"`
	Total int        `json:"total"`
}

// Shortage is a material line whose remaining requirement exceeds usable stock.
type Shortage struct {
	WOID        uuid.UUID       `json:"wo_id"`
	WONumber    string          `json:"wo_number"`
	MaterialID  uuid.UUID       `json:"material_id"`
	ProductCode string          `json:"product_code"`
	Remaining   decimal.Decimal `json:"remaining"`
	Available   decimal.Decimal `json:"available"`
}

// Alert is one dashboard alert.
type Alert struct {
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Reference  string    `json:"reference"`
	Message    string    `json:"message"`
}

// Alerts groups the open alerts with a count per type.
type Alerts struct {
	Items  []Alert        `json:"items"`
	Counts map[string]int `json:"counts"`
}
