// Package statuses implements the per-organisation status catalogue and
// transition allow-list shared by purchase orders, work orders and license
// plates.
package statuses

import (
	"time"

	"github.com/google/uuid"
)

// EntityType names a status-bearing entity.
type EntityType string

const (
	EntityPurchaseOrder EntityType = "purchase_order"
	EntityWorkOrder     EntityType = "work_order"
	EntityLicensePlate  EntityType = "license_plate"
)

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	switch e {
	case EntityPurchaseOrder, EntityWorkOrder, EntityLicensePlate:
		return true
	}
	return false
}

// AllowsCustomStatuses reports whether organisations may add statuses. The
// license plate lifecycle is fixed because ledger code branches on it.
func (e EntityType) AllowsCustomStatuses() bool {
	return e != EntityLicensePlate
}

// Status is one named state of an entity type.
type Status struct {
	ID         uuid.UUID  `json:"id"`
	OrgID      uuid.UUID  `json:"org_id"`
	EntityType EntityType `json:"entity_type"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	IsSystem   bool       `json:"is_system"`
	SortOrder  int        `json:"sort_order"`
}

// Transition is an allowed edge between two statuses.
type Transition struct {
	ID               uuid.UUID  `json:"id"`
	OrgID            uuid.UUID  `json:"org_id"`
	EntityType       EntityType `json:"entity_type"`
	FromStatusID     uuid.UUID  `json:"from_status_id"`
	ToStatusID       uuid.UUID  `json:"to_status_id"`
	FromCode         string     `json:"from_code"`
	ToCode           string     `json:"to_code"`
	IsSystem         bool       `json:"is_system"`
	RequiresApproval bool       `json:"requires_approval"`
	RequiresReason   bool       `json:"requires_reason"`
	Guard            string     `json:"guard,omitempty"`
}

// HistoryRecord is an immutable entry of an executed transition.
// ChangedBy is nil for system triggered changes.
type HistoryRecord struct {
	ID         uuid.UUID  `json:"id"`
	OrgID      uuid.UUID  `json:"-"`
	EntityType EntityType `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	FromStatus string     `json:"from_status"`
	ToStatus   string     `json:"to_status"`
	ChangedBy  *uuid.UUID `json:"changed_by"`
	ChangedAt  time.Time  `json:"changed_at"`
	Notes      string     `json:"notes,omitempty"`
}

// Request asks to move one entity from its current status to another.
type Request struct {
	EntityID uuid.UUID
	From     string
	To       string
	Reason   string
	// Approved is set by the caller only when the actor holds the approval permission.
	Approved bool
	// Facts carries entity counters consulted by guards, e.g. "line_count".
	Facts map[string]int
}

// Fact returns the named counter, zero when absent.
func (r Request) Fact(name string) int {
	if r.Facts == nil {
		return 0
	}
	return r.Facts[name]
}
