package workorders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
)

// TxRepository exposes transactional operations for status changes.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (WorkOrder, error)
	Facts(ctx context.Context, id uuid.UUID) (Facts, error)
	Save(ctx context.Context, w WorkOrder) error
	InsertHistory(ctx context.Context, rec statuses.HistoryRecord) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists work orders in PostgreSQL.
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

// WithTx runs fn inside an org scoped transaction.
func (r *Repository) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	return db.WithOrgTx(ctx, r.pool, orgID, db.Compound, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, orgID: orgID, audit: r.audit})
	})
}

// Get loads one work order.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (WorkOrder, error) {
	var wo WorkOrder
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		var err error
		wo, err = Get(ctx, tx, orgID, id)
		return err
	})
	return wo, err
}

// Materials loads the lines of one work order.
func (r *Repository) Materials(ctx context.Context, orgID, id uuid.UUID) ([]Material, error) {
	var lines []Material
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		if _, err := Get(ctx, tx, orgID, id); err != nil {
			return err
		}
		var err error
		lines, err = Materials(ctx, tx, orgID, id)
		return err
	})
	return lines, err
}

// List returns a page of work orders, most recently planned first.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]WorkOrder, int, error) {
	where := []string{"w.org_id = $1"}
	args := []any{orgID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("w.status = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(w.wo_number ILIKE $%[1]d OR p.code ILIKE $%[1]d)", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var (
		out   []WorkOrder
		total int
	)
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*)`+woFrom+` WHERE `+cond, args...).Scan(&total); err != nil {
			return err
		}
		pageArgs := append(append([]any{}, args...), filter.Page.Limit, filter.Page.Offset())
		rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT `+woColumns+woFrom+` WHERE %s
			ORDER BY w.planned_start DESC NULLS LAST, w.wo_number DESC LIMIT $%d OFFSET $%d`, cond, len(args)+1, len(args)+2), pageArgs...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (WorkOrder, error) {
			return scanWO(row)
		})
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("workorders: list: %w", err)
	}
	return out, total, nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (WorkOrder, error) {
	return GetForUpdate(ctx, t.q, t.orgID, id)
}

func (t *txRepo) Facts(ctx context.Context, id uuid.UUID) (Facts, error) {
	return LoadFacts(ctx, t.q, t.orgID, id)
}

func (t *txRepo) Save(ctx context.Context, w WorkOrder) error {
	w.OrgID = t.orgID
	return Save(ctx, t.q, w)
}

func (t *txRepo) InsertHistory(ctx context.Context, rec statuses.HistoryRecord) error {
	rec.OrgID = t.orgID
	return statuses.InsertHistory(ctx, t.q, rec)
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	log.OrgID = t.orgID
	return t.audit.Record(ctx, t.q, log)
}
