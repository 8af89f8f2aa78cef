package boms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// TxRepository exposes the reads and writes used while creating alternatives.
type TxRepository interface {
	GetItem(ctx context.Context, bomID, itemID uuid.UUID) (Item, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (Product, error)
	ListAlternatives(ctx context.Context, itemID uuid.UUID) ([]Alternative, error)
	InsertAlternative(ctx context.Context, alt Alternative) error
	DeleteAlternative(ctx context.Context, itemID, altID uuid.UUID) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists BOM alternatives in PostgreSQL.
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

// WithTx executes fn inside an org scoped transaction.
func (r *Repository) WithTx(ctx context.Context, orgID uuid.UUID, readOnly bool, fn func(context.Context, TxRepository) error) error {
	opts := db.ReadWrite
	if readOnly {
		opts = db.ReadOnly
	}
	return db.WithOrgTx(ctx, r.pool, orgID, opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, orgID: orgID, audit: r.audit})
	})
}

func (t *txRepo) GetItem(ctx context.Context, bomID, itemID uuid.UUID) (Item, error) {
	var item Item
	err := t.q.QueryRow(ctx, `SELECT i.id, i.bom_id, b.product_id, i.product_id, p.product_type, i.quantity, i.uom
		FROM bom_items i
		JOIN boms b ON b.id = i.bom_id
		JOIN products p ON p.id = i.product_id
		WHERE i.org_id = $1 AND i.bom_id = $2 AND i.id = $3`, t.orgID, bomID, itemID).
		Scan(&item.ID, &item.BOMID, &item.BOMProductID, &item.ProductID, &item.ProductType, &item.Quantity, &item.UoM)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrBOMItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("boms: get item: %w", err)
	}
	return item, nil
}

func (t *txRepo) GetProduct(ctx context.Context, productID uuid.UUID) (Product, error) {
	var p Product
	err := t.q.QueryRow(ctx, `SELECT id, code, name, product_type, uom FROM products
		WHERE org_id = $1 AND id = $2`, t.orgID, productID).
		Scan(&p.ID, &p.Code, &p.Name, &p.ProductType, &p.UoM)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("boms: get product: %w", err)
	}
	return p, nil
}

func (t *txRepo) ListAlternatives(ctx context.Context, itemID uuid.UUID) ([]Alternative, error) {
	rows, err := t.q.Query(ctx, `SELECT a.id, a.bom_item_id, a.alternative_product_id, p.code, p.name,
			a.quantity, a.uom, a.preference_order, COALESCE(a.notes, ''), a.created_at
		FROM bom_alternatives a
		JOIN products p ON p.id = a.alternative_product_id
		WHERE a.org_id = $1 AND a.bom_item_id = $2
		ORDER BY a.preference_order`, t.orgID, itemID)
	if err != nil {
		return nil, fmt.Errorf("boms: list alternatives: %w", err)
	}
	alts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Alternative, error) {
		var a Alternative
		err := row.Scan(&a.ID, &a.BOMItemID, &a.AlternativeProductID, &a.ProductCode, &a.ProductName,
			&a.Quantity, &a.UoM, &a.PreferenceOrder, &a.Notes, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("boms: scan alternatives: %w", err)
	}
	return alts, nil
}

// Constraint names from the migration, mapped to domain codes.
const (
	constraintAltProduct = "bom_alternatives_item_product_key"
	constraintAltOrder   = "bom_alternatives_item_order_key"
)

func (t *txRepo) InsertAlternative(ctx context.Context, alt Alternative) error {
	var notes *string
	if alt.Notes != "" {
		notes = &alt.Notes
	}
	_, err := t.q.Exec(ctx, `INSERT INTO bom_alternatives
		(id, org_id, bom_item_id, alternative_product_id, quantity, uom, preference_order, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		alt.ID, t.orgID, alt.BOMItemID, alt.AlternativeProductID, alt.Quantity, alt.UoM, alt.PreferenceOrder, notes, alt.CreatedAt)
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case constraintAltOrder:
			return ErrDuplicatePreference
		case constraintAltProduct:
			return ErrDuplicateAlternative
		default:
			return ErrDuplicateAlternative.WithMessage("alternative violates %s", constraint)
		}
	}
	if err != nil {
		return fmt.Errorf("boms: insert alternative: %w", err)
	}
	return nil
}

func (t *txRepo) DeleteAlternative(ctx context.Context, itemID, altID uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM bom_alternatives WHERE org_id = $1 AND bom_item_id = $2 AND id = $3`,
		t.orgID, itemID, altID)
	if err != nil {
		return fmt.Errorf("boms: delete alternative: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlternativeNotFound
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	log.OrgID = t.orgID
	return t.audit.Record(ctx, t.q, log)
}
