package licenseplates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
)

// TxRepository exposes the transactional ledger operations used by Service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (LicensePlate, error)
	Insert(ctx context.Context, lp LicensePlate) error
	Save(ctx context.Context, lp LicensePlate) error
	InsertMovement(ctx context.Context, m Movement) error
	InsertEdge(ctx context.Context, e genealogy.Edge) error
	NextNumber(ctx context.Context, now time.Time) (string, error)
	InsertHistory(ctx context.Context, rec statuses.HistoryRecord) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists plates in PostgreSQL.
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

// WithTx runs fn inside a repeatable read, org scoped transaction.
func (r *Repository) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	return db.WithOrgTx(ctx, r.pool, orgID, db.Compound, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, orgID: orgID, audit: r.audit})
	})
}

// Get loads one plate.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (LicensePlate, error) {
	var lp LicensePlate
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		var err error
		lp, err = Get(ctx, tx, orgID, id)
		return err
	})
	return lp, err
}

// List returns one page of plates matching filter, newest first.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]LicensePlate, int, error) {
	where := []string{"org_id = $1"}
	args := []any{orgID}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.QAStatus != "" {
		add("qa_status = $%d", filter.QAStatus)
	}
	if filter.ProductID != nil {
		add("product_id = $%d", *filter.ProductID)
	}
	if filter.WarehouseID != nil {
		add("warehouse_id = $%d", *filter.WarehouseID)
	}
	if filter.LocationID != nil {
		add("location_id = $%d", *filter.LocationID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add("(lp_number ILIKE $%[1]d OR batch_number ILIKE $%[1]d)", "%"+s+"%")
	}
	cond := strings.Join(where, " AND ")

	var (
		plates []LicensePlate
		total  int
	)
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM license_plates WHERE `+cond, args...).Scan(&total); err != nil {
			return err
		}
		pageArgs := append(append([]any{}, args...), filter.Page.Limit, filter.Page.Offset())
		rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT `+lpColumns+` FROM license_plates WHERE %s
			ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, cond, len(args)+1, len(args)+2), pageArgs...)
		if err != nil {
			return err
		}
		plates, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (LicensePlate, error) {
			return scanLP(row)
		})
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("licenseplates: list: %w", err)
	}
	return plates, total, nil
}

// Movements lists a plate's ledger entries, newest first.
func (r *Repository) Movements(ctx context.Context, orgID, lpID uuid.UUID, page shared.Page) ([]Movement, int, error) {
	var (
		out   []Movement
		total int
	)
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		if _, err := Get(ctx, tx, orgID, lpID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM lp_movements WHERE org_id = $1 AND lp_id = $2`, orgID, lpID).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, org_id, lp_id, movement_type, quantity, wo_id, COALESCE(notes, ''), created_by, created_at
			FROM lp_movements WHERE org_id = $1 AND lp_id = $2
			ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`, orgID, lpID, page.Limit, page.Offset())
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Movement, error) {
			var m Movement
			err := row.Scan(&m.ID, &m.OrgID, &m.LPID, &m.MovementType, &m.Quantity, &m.WOID, &m.Notes, &m.CreatedBy, &m.CreatedAt)
			return m, err
		})
		return err
	})
	return out, total, err
}

func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (LicensePlate, error) {
	return GetForUpdate(ctx, t.q, t.orgID, id)
}

func (t *txRepo) Insert(ctx context.Context, lp LicensePlate) error {
	lp.OrgID = t.orgID
	return Insert(ctx, t.q, lp)
}

func (t *txRepo) Save(ctx context.Context, lp LicensePlate) error {
	lp.OrgID = t.orgID
	return Save(ctx, t.q, lp)
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	m.OrgID = t.orgID
	return InsertMovement(ctx, t.q, m)
}

func (t *txRepo) InsertEdge(ctx context.Context, e genealogy.Edge) error {
	e.OrgID = t.orgID
	return genealogy.Insert(ctx, t.q, e)
}

func (t *txRepo) NextNumber(ctx context.Context, now time.Time) (string, error) {
	return NextNumber(ctx, t.q, t.orgID, now)
}

func (t *txRepo) InsertHistory(ctx context.Context, rec statuses.HistoryRecord) error {
	rec.OrgID = t.orgID
	return statuses.InsertHistory(ctx, t.q, rec)
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	log.OrgID = t.orgID
	return t.audit.Record(ctx, t.q, log)
}
