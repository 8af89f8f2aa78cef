package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

// Store is the read side the dashboard aggregates. Each call runs in its own
// read-only transaction so KPI queries can run concurrently.
type Store interface {
	CountStatus(ctx context.Context, orgID uuid.UUID, status string) (int, error)
	CompletedSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error)
	OutputSince(ctx context.Context, orgID uuid.UUID, since time.Time) (decimal.Decimal, error)
	ConsumptionSince(ctx context.Context, orgID uuid.UUID, since time.Time) (decimal.Decimal, error)
	Active(ctx context.Context, orgID uuid.UUID, page shared.Page) ([]workorders.WorkOrder, int, error)
	Shortages(ctx context.Context, orgID uuid.UUID, today time.Time) ([]Shortage, error)
	Watchlist(ctx context.Context, orgID uuid.UUID, until time.Time) ([]licenseplates.LicensePlate, error)
	Overdue(ctx context.Context, orgID uuid.UUID, now time.Time) ([]workorders.WorkOrder, error)
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool db.Beginner
}

// NewRepository constructs Repository.
func NewRepository(pool db.Beginner) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) read(ctx context.Context, orgID uuid.UUID, fn func(pgx.Tx) error) error {
	return db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, fn)
}

func (r *Repository) CountStatus(ctx context.Context, orgID uuid.UUID, status string) (int, error) {
	var n int
	err := r.read(ctx, orgID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM work_orders WHERE org_id = $1 AND status = $2`, orgID, status).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("dashboard: count %s: %w", status, err)
	}
	return n, nil
}

func (r *Repository) CompletedSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.read(ctx, orgID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM work_orders WHERE org_id = $1 AND completed_at >= $2`, orgID, since).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("dashboard: completed: %w", err)
	}
	return n, nil
}

func (r *Repository) OutputSince(ctx context.Context, orgID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.read(ctx, orgID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM production_outputs
			WHERE org_id = $1 AND NOT is_by_product AND registered_at >= $2`, orgID, since).Scan(&sum)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("dashboard: output: %w", err)
	}
	return sum, nil
}

func (r *Repository) ConsumptionSince(ctx context.Context, orgID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.read(ctx, orgID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM wo_consumptions
			WHERE org_id = $1 AND consumed_at >= $2`, orgID, since).Scan(&sum)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("dashboard: consumption: %w", err)
	}
	return sum, nil
}

func (r *Repository) Active(ctx context.Context, orgID uuid.UUID, page shared.Page) ([]workorders.WorkOrder, int, error) {
	var (
		out   []workorders.WorkOrder
		total int
	)
	err := r.read(ctx, orgID, func(tx pgx.Tx) error {
		var err error
		out, total, err = workorders.Active(ctx, tx, orgID, page.Limit, page.Offset())
		return err
	})
	return out, total, err
}

func (r *Repository) Shortages(ctx context.Context, orgID uuid.UUID, today time.Time) ([]Shortage, error) {
	var out []Shortage
	err := r.read(ctx, orgID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `WITH stock AS (
				SELECT product_id, SUM(quantity) AS qty FROM license_plates
				WHERE org_id = $1 AND status = 'available' AND qa_status NOT IN ('quarantine', 'on_hold', 'failed')
				  AND (expiry_date IS NULL OR expiry_date >= $2)
				GROUP BY product_id)
			SELECT w.id, w.wo_number, m.id, p.code, m.required_qty - m.consumed_qty, COALESCE(s.qty, 0)
			FROM wo_materials m
			JOIN work_orders w ON w.id = m.wo_id AND w.org_id = m.org_id
			JOIN products p ON p.id = m.product_id AND p.org_id = m.org_id
			LEFT JOIN stock s ON s.product_id = m.product_id
			WHERE m.org_id = $1 AND NOT m.is_by_product AND w.status = ANY($3)
			  AND m.required_qty - m.consumed_qty > m.reserved_qty + COALESCE(s.qty, 0)
			ORDER BY w.wo_number, p.code`, orgID, today, workorders.ActiveStatuses)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Shortage, error) {
			var s Shortage
			err := row.Scan(&s.WOID, &s.WONumber, &s.MaterialID, &s.ProductCode, &s.Remaining, &s.Available)
			return s, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: shortages: %w", err)
	}
	return out, nil
}

func (r *Repository) Watchlist(ctx context.Context, orgID uuid.UUID, until time.Time) ([]licenseplates.LicensePlate, error) {
	var out []licenseplates.LicensePlate
	err := r.read(ctx, orgID, func(tx pgx.Tx) error {
		var err error
		out, err = licenseplates.Watchlist(ctx, tx, orgID, until)
		return err
	})
	return out, err
}

func (r *Repository) Overdue(ctx context.Context, orgID uuid.UUID, now time.Time) ([]workorders.WorkOrder, error) {
	var out []workorders.WorkOrder
	err := r.read(ctx, orgID, func(tx pgx.Tx) error {
		var err error
		out, err = workorders.Overdue(ctx, tx, orgID, now)
		return err
	})
	return out, err
}
