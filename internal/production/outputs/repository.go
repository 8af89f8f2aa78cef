package outputs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

// TxRepository exposes the rows touched by one registration.
type TxRepository interface {
	GetWorkOrderForUpdate(ctx context.Context, id uuid.UUID) (workorders.WorkOrder, error)
	SaveWorkOrder(ctx context.Context, wo workorders.WorkOrder) error
	GetMaterialForUpdate(ctx context.Context, woID, materialID uuid.UUID) (workorders.Material, error)
	SaveMaterial(ctx context.Context, m workorders.Material) error
	// MainOutput returns outputID, or the latest main output when nil.
	MainOutput(ctx context.Context, woID uuid.UUID, outputID *uuid.UUID) (Output, error)
	GetLP(ctx context.Context, id uuid.UUID) (licenseplates.LicensePlate, error)
	NextLPNumber(ctx context.Context, now time.Time) (string, error)
	InsertLP(ctx context.Context, lp licenseplates.LicensePlate) error
	InsertMovement(ctx context.Context, m licenseplates.Movement) error
	ParentEdges(ctx context.Context, lpID uuid.UUID) ([]genealogy.Edge, error)
	InsertEdge(ctx context.Context, e genealogy.Edge) error
	InsertOutput(ctx context.Context, o Output) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists outputs in PostgreSQL.
type Repository struct {
	pool  db.Beginner
	audit *shared.AuditLogger
}

// NewRepository constructs Repository.
func NewRepository(pool db.Beginner, audit *shared.AuditLogger) *Repository {
	return &Repository{pool: pool, audit: audit}
}

type txRepo struct {
	q     db.DBTX
	orgID uuid.UUID
	audit *shared.AuditLogger
}

// WithTx runs fn in an org scoped compound transaction.
func (r *Repository) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	return db.WithOrgTx(ctx, r.pool, orgID, db.Compound, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, orgID: orgID, audit: r.audit})
	})
}

const outputColumns = `o.id, o.org_id, o.wo_id, o.material_id, o.lp_id, COALESCE(lp.lp_number, ''), COALESCE(lp.batch_number, ''),
	o.product_id, o.quantity, o.is_by_product, o.parent_output_id, o.registered_by, o.registered_at, COALESCE(o.notes, '')`

const outputFrom = ` FROM production_outputs o LEFT JOIN license_plates lp ON lp.id = o.lp_id AND lp.org_id = o.org_id`

func scanOutput(row pgx.Row) (Output, error) {
	var o Output
	err := row.Scan(&o.ID, &o.OrgID, &o.WOID, &o.MaterialID, &o.LPID, &o.LPNumber, &o.BatchNumber,
		&o.ProductID, &o.Quantity, &o.IsByProduct, &o.ParentOutputID, &o.RegisteredBy, &o.RegisteredAt, &o.Notes)
	return o, err
}

func listOutputs(ctx context.Context, q db.DBTX, orgID, woID uuid.UUID) ([]Output, error) {
	rows, err := q.Query(ctx, `SELECT `+outputColumns+outputFrom+`
		WHERE o.org_id = $1 AND o.wo_id = $2 ORDER BY o.registered_at, o.id`, orgID, woID)
	if err != nil {
		return nil, fmt.Errorf("outputs: list: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Output, error) {
		return scanOutput(row)
	})
}

// Outputs lists every registration of a work order in order.
func (r *Repository) Outputs(ctx context.Context, orgID, woID uuid.UUID) ([]Output, error) {
	var out []Output
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		if _, err := workorders.Get(ctx, tx, orgID, woID); err != nil {
			return err
		}
		var err error
		out, err = listOutputs(ctx, tx, orgID, woID)
		return err
	})
	return out, err
}

// Materials returns the lines and outputs of a work order from one snapshot.
func (r *Repository) Materials(ctx context.Context, orgID, woID uuid.UUID) ([]workorders.Material, []Output, error) {
	var (
		lines []workorders.Material
		outs  []Output
	)
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		if _, err := workorders.Get(ctx, tx, orgID, woID); err != nil {
			return err
		}
		var err error
		if lines, err = workorders.Materials(ctx, tx, orgID, woID); err != nil {
			return err
		}
		outs, err = listOutputs(ctx, tx, orgID, woID)
		return err
	})
	return lines, outs, err
}

func (t *txRepo) GetWorkOrderForUpdate(ctx context.Context, id uuid.UUID) (workorders.WorkOrder, error) {
	return workorders.GetForUpdate(ctx, t.q, t.orgID, id)
}

func (t *txRepo) SaveWorkOrder(ctx context.Context, wo workorders.WorkOrder) error {
	wo.OrgID = t.orgID
	return workorders.Save(ctx, t.q, wo)
}

func (t *txRepo) GetMaterialForUpdate(ctx context.Context, woID, materialID uuid.UUID) (workorders.Material, error) {
	return workorders.GetMaterialForUpdate(ctx, t.q, t.orgID, woID, materialID)
}

func (t *txRepo) SaveMaterial(ctx context.Context, m workorders.Material) error {
	m.OrgID = t.orgID
	return workorders.SaveMaterial(ctx, t.q, m)
}

func (t *txRepo) MainOutput(ctx context.Context, woID uuid.UUID, outputID *uuid.UUID) (Output, error) {
	var row pgx.Row
	if outputID != nil {
		row = t.q.QueryRow(ctx, `SELECT `+outputColumns+outputFrom+`
			WHERE o.org_id = $1 AND o.wo_id = $2 AND o.id = $3 AND NOT o.is_by_product`, t.orgID, woID, *outputID)
	} else {
		row = t.q.QueryRow(ctx, `SELECT `+outputColumns+outputFrom+`
			WHERE o.org_id = $1 AND o.wo_id = $2 AND NOT o.is_by_product
			ORDER BY o.registered_at DESC, o.id DESC LIMIT 1`, t.orgID, woID)
	}
	o, err := scanOutput(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if outputID != nil {
			return Output{}, ErrOutputNotFound
		}
		return Output{}, ErrMainOutputRequired
	}
	if err != nil {
		return Output{}, fmt.Errorf("outputs: main output: %w", err)
	}
	return o, nil
}

func (t *txRepo) GetLP(ctx context.Context, id uuid.UUID) (licenseplates.LicensePlate, error) {
	return licenseplates.Get(ctx, t.q, t.orgID, id)
}

func (t *txRepo) NextLPNumber(ctx context.Context, now time.Time) (string, error) {
	return licenseplates.NextNumber(ctx, t.q, t.orgID, now)
}

func (t *txRepo) InsertLP(ctx context.Context, lp licenseplates.LicensePlate) error {
	lp.OrgID = t.orgID
	return licenseplates.Insert(ctx, t.q, lp)
}

func (t *txRepo) InsertMovement(ctx context.Context, m licenseplates.Movement) error {
	m.OrgID = t.orgID
	return licenseplates.InsertMovement(ctx, t.q, m)
}

func (t *txRepo) ParentEdges(ctx context.Context, lpID uuid.UUID) ([]genealogy.Edge, error) {
	return genealogy.ParentEdges(ctx, t.q, t.orgID, lpID)
}

func (t *txRepo) InsertEdge(ctx context.Context, e genealogy.Edge) error {
	e.OrgID = t.orgID
	return genealogy.Insert(ctx, t.q, e)
}

func (t *txRepo) InsertOutput(ctx context.Context, o Output) error {
	var notes *string
	if o.Notes != "" {
		notes = &o.Notes
	}
	_, err := t.q.Exec(ctx, `INSERT INTO production_outputs
		(id, org_id, wo_id, material_id, lp_id, product_id, quantity, is_by_product, parent_output_id, registered_by, registered_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, t.orgID, o.WOID, o.MaterialID, o.LPID, o.ProductID, o.Quantity, o.IsByProduct, o.ParentOutputID,
		o.RegisteredBy, o.RegisteredAt, notes)
	if err != nil {
		return fmt.Errorf("outputs: insert: %w", err)
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	log.OrgID = t.orgID
	return t.audit.Record(ctx, t.q, log)
}
