package workorders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
)

// Helpers in this file take a db.DBTX so consumption and output registration
// can run them inside their own transactions.

const woColumns = `w.id, w.org_id, w.wo_number, w.product_id, p.code, w.planned_qty, w.produced_qty, w.uom, w.status,
	w.planned_start, w.planned_end, w.started_at, w.completed_at, w.created_at, w.updated_at`

const woFrom = ` FROM work_orders w JOIN products p ON p.id = w.product_id AND p.org_id = w.org_id`

func scanWO(row pgx.Row) (WorkOrder, error) {
	var w WorkOrder
	err := row.Scan(&w.ID, &w.OrgID, &w.WONumber, &w.ProductID, &w.ProductCode, &w.PlannedQty, &w.ProducedQty, &w.UoM,
		&w.Status, &w.PlannedStart, &w.PlannedEnd, &w.StartedAt, &w.CompletedAt, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkOrder{}, ErrWONotFound
	}
	return w, err
}

// Get loads one work order.
func Get(ctx context.Context, q db.DBTX, orgID, id uuid.UUID) (WorkOrder, error) {
	return scanWO(q.QueryRow(ctx, `SELECT `+woColumns+woFrom+` WHERE w.org_id = $1 AND w.id = $2`, orgID, id))
}

// GetForUpdate loads one work order and row-locks it.
func GetForUpdate(ctx context.Context, q db.DBTX, orgID, id uuid.UUID) (WorkOrder, error) {
	return scanWO(q.QueryRow(ctx, `SELECT `+woColumns+woFrom+` WHERE w.org_id = $1 AND w.id = $2 FOR UPDATE OF w`, orgID, id))
}

// Save writes status, progress and timestamps.
func Save(ctx context.Context, q db.DBTX, w WorkOrder) error {
	tag, err := q.Exec(ctx, `UPDATE work_orders SET status = $3, produced_qty = $4, started_at = $5, completed_at = $6, updated_at = NOW()
		WHERE org_id = $1 AND id = $2`, w.OrgID, w.ID, w.Status, w.ProducedQty, w.StartedAt, w.CompletedAt)
	if err != nil {
		return fmt.Errorf("workorders: save %s: %w", w.WONumber, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWONotFound
	}
	return nil
}

const materialColumns = `m.id, m.org_id, m.wo_id, m.product_id, p.code, m.uom, m.required_qty, m.consumed_qty, m.reserved_qty,
	m.is_by_product, m.yield_percent, m.by_product_registered_qty, m.consume_whole_lp`

const materialFrom = ` FROM wo_materials m JOIN products p ON p.id = m.product_id AND p.org_id = m.org_id`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.OrgID, &m.WOID, &m.ProductID, &m.ProductCode, &m.UoM, &m.RequiredQty, &m.ConsumedQty,
		&m.ReservedQty, &m.IsByProduct, &m.YieldPercent, &m.ByProductRegisteredQty, &m.ConsumeWholeLP)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, ErrMaterialNotFound
	}
	return m, err
}

// Materials lists the lines of a work order, inputs first.
func Materials(ctx context.Context, q db.DBTX, orgID, woID uuid.UUID) ([]Material, error) {
	rows, err := q.Query(ctx, `SELECT `+materialColumns+materialFrom+`
		WHERE m.org_id = $1 AND m.wo_id = $2 ORDER BY m.is_by_product, p.code`, orgID, woID)
	if err != nil {
		return nil, fmt.Errorf("workorders: materials: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Material, error) {
		return scanMaterial(row)
	})
}

// GetMaterialForUpdate loads one line of woID and row-locks it.
func GetMaterialForUpdate(ctx context.Context, q db.DBTX, orgID, woID, materialID uuid.UUID) (Material, error) {
	return scanMaterial(q.QueryRow(ctx, `SELECT `+materialColumns+materialFrom+`
		WHERE m.org_id = $1 AND m.wo_id = $2 AND m.id = $3 FOR UPDATE OF m`, orgID, woID, materialID))
}

// SaveMaterial writes the running totals of a line.
func SaveMaterial(ctx context.Context, q db.DBTX, m Material) error {
	tag, err := q.Exec(ctx, `UPDATE wo_materials SET consumed_qty = $3, reserved_qty = $4, by_product_registered_qty = $5
		WHERE org_id = $1 AND id = $2`, m.OrgID, m.ID, m.ConsumedQty, m.ReservedQty, m.ByProductRegisteredQty)
	if err != nil {
		return fmt.Errorf("workorders: save material %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMaterialNotFound
	}
	return nil
}

// LoadFacts counts input materials and registered outputs of woID.
func LoadFacts(ctx context.Context, q db.DBTX, orgID, woID uuid.UUID) (Facts, error) {
	var f Facts
	err := q.QueryRow(ctx, `SELECT
			(SELECT COUNT(*) FROM wo_materials WHERE org_id = $1 AND wo_id = $2 AND NOT is_by_product),
			(SELECT COUNT(*) FROM production_outputs WHERE org_id = $1 AND wo_id = $2 AND NOT is_by_product)`,
		orgID, woID).Scan(&f.MaterialCount, &f.OutputCount)
	if err != nil {
		return Facts{}, fmt.Errorf("workorders: facts: %w", err)
	}
	return f, nil
}

// ActiveStatuses are the codes shown on the production board.
var ActiveStatuses = []string{StatusReleased, StatusInProgress, StatusPaused}

func collectWO(rows pgx.Rows, err error) ([]WorkOrder, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (WorkOrder, error) {
		return scanWO(row)
	})
}

// Active pages through released, running and paused orders, earliest planned
// end first.
func Active(ctx context.Context, q db.DBTX, orgID uuid.UUID, limit, offset int) ([]WorkOrder, int, error) {
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM work_orders WHERE org_id = $1 AND status = ANY($2)`,
		orgID, ActiveStatuses).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("workorders: count active: %w", err)
	}
	out, err := collectWO(q.Query(ctx, `SELECT `+woColumns+woFrom+`
		WHERE w.org_id = $1 AND w.status = ANY($2)
		ORDER BY w.planned_end NULLS LAST, w.wo_number LIMIT $3 OFFSET $4`, orgID, ActiveStatuses, limit, offset))
	if err != nil {
		return nil, 0, fmt.Errorf("workorders: active: %w", err)
	}
	return out, total, nil
}

// Overdue lists active orders whose planned end is before now.
func Overdue(ctx context.Context, q db.DBTX, orgID uuid.UUID, now time.Time) ([]WorkOrder, error) {
	out, err := collectWO(q.Query(ctx, `SELECT `+woColumns+woFrom+`
		WHERE w.org_id = $1 AND w.status = ANY($2) AND w.planned_end < $3
		ORDER BY w.planned_end`, orgID, ActiveStatuses, now))
	if err != nil {
		return nil, fmt.Errorf("workorders: overdue: %w", err)
	}
	return out, nil
}
