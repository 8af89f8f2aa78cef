package consumption

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

// TxRepository exposes the rows touched by one consumption.
type TxRepository interface {
	GetWorkOrder(ctx context.Context, id uuid.UUID) (workorders.WorkOrder, error)
	GetMaterialForUpdate(ctx context.Context, woID, materialID uuid.UUID) (workorders.Material, error)
	GetLPForUpdate(ctx context.Context, id uuid.UUID) (licenseplates.LicensePlate, error)
	ActiveReservation(ctx context.Context, lpID, materialID uuid.UUID) (*Reservation, error)
	AllowOverConsumption(ctx context.Context) (bool, error)
	SaveLP(ctx context.Context, lp licenseplates.LicensePlate) error
	SaveMaterial(ctx context.Context, m workorders.Material) error
	SaveReservation(ctx context.Context, r Reservation) error
	InsertRecord(ctx context.Context, rec Record) error
	InsertMovement(ctx context.Context, m licenseplates.Movement) error
	InsertEdge(ctx context.Context, e genealogy.Edge) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists consumptions in PostgreSQL.
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

// WithTx runs fn in an org scoped transaction. Dry runs use it too because the
// row lookups take FOR UPDATE locks.
func (r *Repository) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	return db.WithOrgTx(ctx, r.pool, orgID, db.Compound, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, orgID: orgID, audit: r.audit})
	})
}

// List returns the consumptions of a work order, newest first.
func (r *Repository) List(ctx context.Context, orgID, woID uuid.UUID, page shared.Page) ([]Record, int, error) {
	var (
		out   []Record
		total int
	)
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		if _, err := workorders.Get(ctx, tx, orgID, woID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM wo_consumptions WHERE org_id = $1 AND wo_id = $2`, orgID, woID).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT c.id, c.org_id, c.wo_id, c.material_id, c.lp_id, lp.lp_number, c.quantity,
				c.consumed_by, c.consumed_at, c.over_consumption, COALESCE(c.notes, '')
			FROM wo_consumptions c JOIN license_plates lp ON lp.id = c.lp_id AND lp.org_id = c.org_id
			WHERE c.org_id = $1 AND c.wo_id = $2
			ORDER BY c.consumed_at DESC, c.id LIMIT $3 OFFSET $4`, orgID, woID, page.Limit, page.Offset())
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
			var rec Record
			err := row.Scan(&rec.ID, &rec.OrgID, &rec.WOID, &rec.MaterialID, &rec.LPID, &rec.LPNumber, &rec.Quantity,
				&rec.ConsumedBy, &rec.ConsumedAt, &rec.OverConsumption, &rec.Notes)
			return rec, err
		})
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("consumption: list: %w", err)
	}
	return out, total, nil
}

func (t *txRepo) GetWorkOrder(ctx context.Context, id uuid.UUID) (workorders.WorkOrder, error) {
	return workorders.Get(ctx, t.q, t.orgID, id)
}

func (t *txRepo) GetMaterialForUpdate(ctx context.Context, woID, materialID uuid.UUID) (workorders.Material, error) {
	return workorders.GetMaterialForUpdate(ctx, t.q, t.orgID, woID, materialID)
}

func (t *txRepo) GetLPForUpdate(ctx context.Context, id uuid.UUID) (licenseplates.LicensePlate, error) {
	return licenseplates.GetForUpdate(ctx, t.q, t.orgID, id)
}

func (t *txRepo) ActiveReservation(ctx context.Context, lpID, materialID uuid.UUID) (*Reservation, error) {
	var r Reservation
	err := t.q.QueryRow(ctx, `SELECT id, org_id, lp_id, wo_id, material_id, reserved_qty, status
		FROM lp_reservations WHERE org_id = $1 AND lp_id = $2 AND material_id = $3 AND status = 'active'
		FOR UPDATE`, t.orgID, lpID, materialID).
		Scan(&r.ID, &r.OrgID, &r.LPID, &r.WOID, &r.MaterialID, &r.ReservedQty, &r.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consumption: reservation: %w", err)
	}
	return &r, nil
}

// AllowOverConsumption reads the organisation setting. Missing rows allow it.
func (t *txRepo) AllowOverConsumption(ctx context.Context) (bool, error) {
	var allow bool
	err := t.q.QueryRow(ctx, `SELECT allow_over_consumption FROM org_settings WHERE org_id = $1`, t.orgID).Scan(&allow)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("consumption: org settings: %w", err)
	}
	return allow, nil
}

func (t *txRepo) SaveLP(ctx context.Context, lp licenseplates.LicensePlate) error {
	lp.OrgID = t.orgID
	return licenseplates.Save(ctx, t.q, lp)
}

func (t *txRepo) SaveMaterial(ctx context.Context, m workorders.Material) error {
	m.OrgID = t.orgID
	return workorders.SaveMaterial(ctx, t.q, m)
}

func (t *txRepo) SaveReservation(ctx context.Context, r Reservation) error {
	_, err := t.q.Exec(ctx, `UPDATE lp_reservations SET reserved_qty = $3, status = $4, updated_at = NOW()
		WHERE org_id = $1 AND id = $2`, t.orgID, r.ID, r.ReservedQty, r.Status)
	if err != nil {
		return fmt.Errorf("consumption: save reservation: %w", err)
	}
	return nil
}

func (t *txRepo) InsertRecord(ctx context.Context, rec Record) error {
	var notes *string
	if rec.Notes != "" {
		notes = &rec.Notes
	}
	_, err := t.q.Exec(ctx, `INSERT INTO wo_consumptions
		(id, org_id, wo_id, material_id, lp_id, quantity, consumed_by, consumed_at, over_consumption, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, t.orgID, rec.WOID, rec.MaterialID, rec.LPID, rec.Quantity, rec.ConsumedBy, rec.ConsumedAt, rec.OverConsumption, notes)
	if err != nil {
		return fmt.Errorf("consumption: insert record: %w", err)
	}
	return nil
}

func (t *txRepo) InsertMovement(ctx context.Context, m licenseplates.Movement) error {
	m.OrgID = t.orgID
	return licenseplates.InsertMovement(ctx, t.q, m)
}

func (t *txRepo) InsertEdge(ctx context.Context, e genealogy.Edge) error {
	e.OrgID = t.orgID
	return genealogy.Insert(ctx, t.q, e)
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	log.OrgID = t.orgID
	return t.audit.Record(ctx, t.q, log)
}
