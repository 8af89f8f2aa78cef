package statuses

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// TxRepository exposes the configuration writes used by Service.
type TxRepository interface {
	Load(ctx context.Context, orgID uuid.UUID, entity EntityType) (*Config, error)
	SeedDefaults(ctx context.Context, cfg *Config) error
	InsertStatus(ctx context.Context, s Status) error
	DeleteStatus(ctx context.Context, id uuid.UUID) error
	StatusInUse(ctx context.Context, entity EntityType, code string) (bool, error)
	InsertTransition(ctx context.Context, t Transition) error
	DeleteTransition(ctx context.Context, id uuid.UUID) error
}

// Repository persists status configuration in PostgreSQL.
type Repository struct {
	pool db.Beginner
}

// NewRepository constructs Repository.
func NewRepository(pool db.Beginner) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	q     db.DBTX
	orgID uuid.UUID
}

// WithTx runs fn inside an org scoped read-write transaction.
func (r *Repository) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	return db.WithOrgTx(ctx, r.pool, orgID, db.ReadWrite, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, orgID: orgID})
	})
}

// Load returns the stored configuration, or nil when the org has none.
func (r *Repository) Load(ctx context.Context, orgID uuid.UUID, entity EntityType) (*Config, error) {
	var cfg *Config
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		var err error
		cfg, err = LoadConfig(ctx, tx, orgID, entity)
		return err
	})
	return cfg, err
}

// History lists the status history of one entity, newest first.
func (r *Repository) History(ctx context.Context, orgID uuid.UUID, entity EntityType, entityID uuid.UUID, page shared.Page) ([]HistoryRecord, int, error) {
	var (
		records []HistoryRecord
		total   int
	)
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		var err error
		records, total, err = ListHistory(ctx, tx, orgID, entity, entityID, page)
		return err
	})
	return records, total, err
}

// LoadConfig reads an organisation's statuses and transitions for entity using
// q. It returns nil when nothing has been seeded yet.
func LoadConfig(ctx context.Context, q db.DBTX, orgID uuid.UUID, entity EntityType) (*Config, error) {
	rows, err := q.Query(ctx, `SELECT id, org_id, entity_type, code, name, is_system, sort_order
		FROM statuses WHERE org_id = $1 AND entity_type = $2 ORDER BY sort_order, code`, orgID, string(entity))
	if err != nil {
		return nil, fmt.Errorf("statuses: load statuses: %w", err)
	}
	statuses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Status, error) {
		var s Status
		var et string
		err := row.Scan(&s.ID, &s.OrgID, &et, &s.Code, &s.Name, &s.IsSystem, &s.SortOrder)
		s.EntityType = EntityType(et)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("statuses: scan statuses: %w", err)
	}
	if len(statuses) == 0 {
		return nil, nil
	}

	rows, err = q.Query(ctx, `SELECT t.id, t.org_id, t.entity_type, t.from_status_id, t.to_status_id,
			f.code, s.code, t.is_system, t.requires_approval, t.requires_reason, COALESCE(t.guard, '')
		FROM status_transitions t
		JOIN statuses f ON f.id = t.from_status_id
		JOIN statuses s ON s.id = t.to_status_id
		WHERE t.org_id = $1 AND t.entity_type = $2`, orgID, string(entity))
	if err != nil {
		return nil, fmt.Errorf("statuses: load transitions: %w", err)
	}
	transitions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transition, error) {
		var t Transition
		var et string
		err := row.Scan(&t.ID, &t.OrgID, &et, &t.FromStatusID, &t.ToStatusID, &t.FromCode, &t.ToCode,
			&t.IsSystem, &t.RequiresApproval, &t.RequiresReason, &t.Guard)
		t.EntityType = EntityType(et)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("statuses: scan transitions: %w", err)
	}
	return NewConfig(entity, statuses, transitions), nil
}

// InsertHistory appends an executed transition using q, normally the
// transaction that changed the entity's status.
func InsertHistory(ctx context.Context, q db.DBTX, rec HistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	var notes *string
	if rec.Notes != "" {
		notes = &rec.Notes
	}
	_, err := q.Exec(ctx, `INSERT INTO status_history
		(id, org_id, entity_type, entity_id, from_status, to_status, changed_by, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		rec.ID, rec.OrgID, string(rec.EntityType), rec.EntityID, rec.FromStatus, rec.ToStatus, rec.ChangedBy, notes)
	if err != nil {
		return fmt.Errorf("statuses: insert history: %w", err)
	}
	return nil
}

// ListHistory returns one page of history newest first and the total count.
func ListHistory(ctx context.Context, q db.DBTX, orgID uuid.UUID, entity EntityType, entityID uuid.UUID, page shared.Page) ([]HistoryRecord, int, error) {
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM status_history
		WHERE org_id = $1 AND entity_type = $2 AND entity_id = $3`, orgID, string(entity), entityID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("statuses: count history: %w", err)
	}
	rows, err := q.Query(ctx, `SELECT id, org_id, entity_type, entity_id, from_status, to_status, changed_by, changed_at, COALESCE(notes, '')
		FROM status_history
		WHERE org_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY changed_at DESC, id DESC
		LIMIT $4 OFFSET $5`, orgID, string(entity), entityID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("statuses: list history: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (HistoryRecord, error) {
		var h HistoryRecord
		var et string
		err := row.Scan(&h.ID, &h.OrgID, &et, &h.EntityID, &h.FromStatus, &h.ToStatus, &h.ChangedBy, &h.ChangedAt, &h.Notes)
		h.EntityType = EntityType(et)
		return h, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("statuses: scan history: %w", err)
	}
	return records, total, nil
}

func (t *txRepo) Load(ctx context.Context, orgID uuid.UUID, entity EntityType) (*Config, error) {
	return LoadConfig(ctx, t.q, orgID, entity)
}

func (t *txRepo) SeedDefaults(ctx context.Context, cfg *Config) error {
	for _, s := range cfg.Statuses {
		if _, err := t.q.Exec(ctx, `INSERT INTO statuses (id, org_id, entity_type, code, name, is_system, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (org_id, entity_type, code) DO NOTHING`,
			s.ID, s.OrgID, string(s.EntityType), s.Code, s.Name, s.IsSystem, s.SortOrder); err != nil {
			return fmt.Errorf("statuses: seed status %s: %w", s.Code, err)
		}
	}
	for _, tr := range cfg.Transitions {
		if _, err := t.q.Exec(ctx, `INSERT INTO status_transitions
			(id, org_id, entity_type, from_status_id, to_status_id, is_system, requires_approval, requires_reason, guard)
			SELECT $1::uuid, $2::uuid, $3::text, f.id, s.id, $6::boolean, $7::boolean, $8::boolean, NULLIF($9::text, '')
			FROM statuses f, statuses s
			WHERE f.org_id = $2 AND f.entity_type = $3 AND f.code = $4
			  AND s.org_id = $2 AND s.entity_type = $3 AND s.code = $5
			ON CONFLICT (org_id, from_status_id, to_status_id) DO NOTHING`,
			tr.ID, tr.OrgID, string(tr.EntityType), tr.FromCode, tr.ToCode,
			tr.IsSystem, tr.RequiresApproval, tr.RequiresReason, tr.Guard); err != nil {
			return fmt.Errorf("statuses: seed transition %s->%s: %w", tr.FromCode, tr.ToCode, err)
		}
	}
	return nil
}

func (t *txRepo) InsertStatus(ctx context.Context, s Status) error {
	_, err := t.q.Exec(ctx, `INSERT INTO statuses (id, org_id, entity_type, code, name, is_system, sort_order)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		s.ID, t.orgID, string(s.EntityType), s.Code, s.Name, s.SortOrder)
	if constraint, ok := db.UniqueViolation(err); ok {
		return ErrDuplicateStatus.WithMessage("status %q already exists (%s)", s.Code, constraint)
	}
	return err
}

func (t *txRepo) DeleteStatus(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM statuses WHERE org_id = $1 AND id = $2`, t.orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusNotFound
	}
	return nil
}

var usageQueries = map[EntityType]string{
	EntityPurchaseOrder: `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE org_id = $1 AND status = $2)
		OR EXISTS (SELECT 1 FROM status_history WHERE org_id = $1 AND entity_type = 'purchase_order' AND (from_status = $2 OR to_status = $2))`,
	EntityWorkOrder: `SELECT EXISTS (SELECT 1 FROM work_orders WHERE org_id = $1 AND status = $2)
		OR EXISTS (SELECT 1 FROM status_history WHERE org_id = $1 AND entity_type = 'work_order' AND (from_status = $2 OR to_status = $2))`,
}

func (t *txRepo) StatusInUse(ctx context.Context, entity EntityType, code string) (bool, error) {
	query, ok := usageQueries[entity]
	if !ok {
		return false, ErrUnknownEntity
	}
	var used bool
	if err := t.q.QueryRow(ctx, query, t.orgID, code).Scan(&used); err != nil {
		return false, fmt.Errorf("statuses: usage check: %w", err)
	}
	return used, nil
}

func (t *txRepo) InsertTransition(ctx context.Context, tr Transition) error {
	var guard *string
	if tr.Guard != "" {
		guard = &tr.Guard
	}
	_, err := t.q.Exec(ctx, `INSERT INTO status_transitions
		(id, org_id, entity_type, from_status_id, to_status_id, is_system, requires_approval, requires_reason, guard)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8)`,
		tr.ID, t.orgID, string(tr.EntityType), tr.FromStatusID, tr.ToStatusID, tr.RequiresApproval, tr.RequiresReason, guard)
	if _, ok := db.UniqueViolation(err); ok {
		return ErrDuplicateTransition
	}
	return err
}

func (t *txRepo) DeleteTransition(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM status_transitions WHERE org_id = $1 AND id = $2`, t.orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransitionNotFound
	}
	return nil
}
