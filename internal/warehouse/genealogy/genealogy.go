// Package genealogy records parent/child links between license plates and
// walks them for traceability.
package genealogy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Relation types.
const (
	RelationSplit       = "split"
	RelationByProduct   = "by_product"
	RelationMerge       = "merge"
	RelationConsumption = "consumption"
)

// Direction of a trace.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

const (
	DefaultDepth = 10
	MaxDepth     = 25
)

var (
	ErrInvalidDirection = shared.Validation("INVALID_DIRECTION", "direction must be forward or backward")
	ErrLPNotFound       = shared.NotFound("LP_NOT_FOUND", "license plate not found")
)

// Edge is one append-only genealogy row. Consumption edges link the consumed
// plate to a work order and have no child.
type Edge struct {
	ID           uuid.UUID
	OrgID        uuid.UUID
	ParentLPID   uuid.UUID
	ChildLPID    *uuid.UUID
	RelationType string
	WOID         *uuid.UUID
	Quantity     decimal.Decimal
	CreatedAt    time.Time
}

// Insert appends e using q. Edges are never updated.
func Insert(ctx context.Context, q db.DBTX, e Edge) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var at *time.Time
	if !e.CreatedAt.IsZero() {
		at = &e.CreatedAt
	}
	_, err := q.Exec(ctx, `INSERT INTO lp_genealogy (id, org_id, parent_lp_id, child_lp_id, relation_type, wo_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		e.ID, e.OrgID, e.ParentLPID, e.ChildLPID, e.RelationType, e.WOID, e.Quantity, at)
	if err != nil {
		return fmt.Errorf("genealogy: insert %s edge: %w", e.RelationType, err)
	}
	return nil
}

// ParentEdges returns the edges whose child is lpID, used to copy a main
// output's ancestry onto its by-products.
func ParentEdges(ctx context.Context, q db.DBTX, orgID, lpID uuid.UUID) ([]Edge, error) {
	rows, err := q.Query(ctx, `SELECT id, org_id, parent_lp_id, child_lp_id, relation_type, wo_id, quantity, created_at
		FROM lp_genealogy WHERE org_id = $1 AND child_lp_id = $2 ORDER BY created_at`, orgID, lpID)
	if err != nil {
		return nil, fmt.Errorf("genealogy: parent edges: %w", err)
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.OrgID, &e.ParentLPID, &e.ChildLPID, &e.RelationType, &e.WOID, &e.Quantity, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
