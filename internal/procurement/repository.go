package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
)

// TxRepository exposes transactional procurement writes.
type TxRepository interface {
	GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error)
	InsertSupplier(ctx context.Context, s Supplier) error
	SupplierInUse(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteSupplier(ctx context.Context, id uuid.UUID) error
	NextPONumber(ctx context.Context, now time.Time) (string, error)
	InsertPO(ctx context.Context, po PurchaseOrder) error
	GetPOForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	LineCount(ctx context.Context, id uuid.UUID) (int, error)
	SavePOStatus(ctx context.Context, po PurchaseOrder) error
	InsertHistory(ctx context.Context, rec statuses.HistoryRecord) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists procurement data in PostgreSQL.
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

// WithTx runs fn in one org scoped transaction at repeatable read.
func (r *Repository) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	return db.WithOrgTx(ctx, r.pool, orgID, db.Compound, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, orgID: orgID, audit: r.audit})
	})
}

const poColumns = `po.id, po.org_id, po.po_number, po.supplier_id, s.name, po.status, po.currency, po.expected_date,
	po.total, COALESCE(po.notes, ''), po.created_by, po.created_at, po.updated_at`

const poFrom = ` FROM purchase_orders po JOIN suppliers s ON s.id = po.supplier_id AND s.org_id = po.org_id`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.OrgID, &po.PONumber, &po.SupplierID, &po.SupplierName, &po.Status, &po.Currency,
		&po.ExpectedDate, &po.Total, &po.Notes, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrPONotFound
	}
	return po, err
}

func scanPOLine(row pgx.CollectableRow) (POLine, error) {
	var (
		l        POLine
		discount []byte
	)
	if err := row.Scan(&l.ID, &l.LineNo, &l.ProductID, &l.Quantity, &l.UoM, &l.UnitPrice, &discount, &l.LineTotal); err != nil {
		return POLine{}, err
	}
	if len(discount) > 0 {
		l.Discount = &pricing.Discount{}
		if err := json.Unmarshal(discount, l.Discount); err != nil {
			return POLine{}, fmt.Errorf("procurement: decode discount: %w", err)
		}
	}
	return l, nil
}

// GetPO loads a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, orgID, id uuid.UUID) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		var err error
		po, err = scanPO(tx.QueryRow(ctx, `SELECT `+poColumns+poFrom+` WHERE po.org_id = $1 AND po.id = $2`, orgID, id))
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, line_no, product_id, quantity, uom, unit_price, discount, line_total
			FROM purchase_order_lines WHERE org_id = $1 AND purchase_order_id = $2 ORDER BY line_no`, orgID, id)
		if err != nil {
			return err
		}
		po.Lines, err = pgx.CollectRows(rows, scanPOLine)
		return err
	})
	if err != nil && !errors.Is(err, ErrPONotFound) {
		return PurchaseOrder{}, fmt.Errorf("procurement: get po: %w", err)
	}
	return po, err
}

// Suppliers lists suppliers ordered by code.
func (r *Repository) Suppliers(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]Supplier, error) {
	var out []Supplier
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, org_id, code, name, is_active, created_at FROM suppliers
			WHERE org_id = $1 AND ($2 = FALSE OR is_active) ORDER BY code`, orgID, activeOnly)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Supplier, error) {
			return scanSupplier(row)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("procurement: list suppliers: %w", err)
	}
	return out, nil
}

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.OrgID, &s.Code, &s.Name, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, err
}

func (t *txRepo) GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error) {
	return scanSupplier(t.q.QueryRow(ctx, `SELECT id, org_id, code, name, is_active, created_at FROM suppliers
		WHERE org_id = $1 AND id = $2`, t.orgID, id))
}

func (t *txRepo) InsertSupplier(ctx context.Context, s Supplier) error {
	_, err := t.q.Exec(ctx, `INSERT INTO suppliers (id, org_id, code, name, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, s.ID, t.orgID, s.Code, s.Name, s.IsActive, s.CreatedAt)
	if _, dup := db.UniqueViolation(err); dup {
		return ErrDuplicateSupplier.WithMessage("supplier code %s already exists", s.Code)
	}
	if err != nil {
		return fmt.Errorf("procurement: insert supplier: %w", err)
	}
	return nil
}

func (t *txRepo) SupplierInUse(ctx context.Context, id uuid.UUID) (bool, error) {
	var used bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE org_id = $1 AND supplier_id = $2)`,
		t.orgID, id).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("procurement: supplier usage: %w", err)
	}
	return used, nil
}

func (t *txRepo) DeleteSupplier(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM suppliers WHERE org_id = $1 AND id = $2`, t.orgID, id)
	if _, fk := db.ForeignKeyViolation(err); fk {
		return ErrSupplierInUse
	}
	if err != nil {
		return fmt.Errorf("procurement: delete supplier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

func (t *txRepo) NextPONumber(ctx context.Context, now time.Time) (string, error) {
	return db.NextDocNumber(ctx, t.q, t.orgID, "purchase_order", "PO", now)
}

func (t *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) error {
	var notes *string
	if po.Notes != "" {
		notes = &po.Notes
	}
	_, err := t.q.Exec(ctx, `INSERT INTO purchase_orders
		(id, org_id, po_number, supplier_id, status, currency, expected_date, total, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		po.ID, t.orgID, po.PONumber, po.SupplierID, po.Status, po.Currency, po.ExpectedDate, po.Total, notes, po.CreatedBy, po.CreatedAt)
	if err != nil {
		return fmt.Errorf("procurement: insert po %s: %w", po.PONumber, err)
	}
	for _, l := range po.Lines {
		var discount []byte
		if l.Discount != nil {
			if discount, err = json.Marshal(l.Discount); err != nil {
				return fmt.Errorf("procurement: encode discount: %w", err)
			}
		}
		_, err = t.q.Exec(ctx, `INSERT INTO purchase_order_lines
			(id, org_id, purchase_order_id, line_no, product_id, quantity, uom, unit_price, discount, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			l.ID, t.orgID, po.ID, l.LineNo, l.ProductID, l.Quantity, l.UoM, l.UnitPrice, discount, l.LineTotal)
		if _, fk := db.ForeignKeyViolation(err); fk {
			return ErrProductNotFound.WithMessage("line %d: product not found", l.LineNo)
		}
		if err != nil {
			return fmt.Errorf("procurement: insert po line: %w", err)
		}
	}
	return nil
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	po, err := scanPO(t.q.QueryRow(ctx, `SELECT `+poColumns+poFrom+` WHERE po.org_id = $1 AND po.id = $2 FOR UPDATE OF po`, t.orgID, id))
	if err != nil && !errors.Is(err, ErrPONotFound) {
		return PurchaseOrder{}, fmt.Errorf("procurement: lock po: %w", err)
	}
	return po, err
}

func (t *txRepo) LineCount(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_order_lines WHERE org_id = $1 AND purchase_order_id = $2`,
		t.orgID, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("procurement: count lines: %w", err)
	}
	return n, nil
}

func (t *txRepo) SavePOStatus(ctx context.Context, po PurchaseOrder) error {
	_, err := t.q.Exec(ctx, `UPDATE purchase_orders SET status = $3, updated_at = $4 WHERE org_id = $1 AND id = $2`,
		t.orgID, po.ID, po.Status, po.UpdatedAt)
	if err != nil {
		return fmt.Errorf("procurement: save po status: %w", err)
	}
	return nil
}

func (t *txRepo) InsertHistory(ctx context.Context, rec statuses.HistoryRecord) error {
	rec.OrgID = t.orgID
	return statuses.InsertHistory(ctx, t.q, rec)
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	log.OrgID = t.orgID
	return t.audit.Record(ctx, t.q, log)
}
