package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// TxRepository exposes the writes of one order creation.
type TxRepository interface {
	CustomerExists(ctx context.Context, id uuid.UUID) (bool, error)
	NextNumber(ctx context.Context, now time.Time) (string, error)
	Insert(ctx context.Context, so SalesOrder) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists sales orders in PostgreSQL.
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
	return db.WithOrgTx(ctx, r.pool, orgID, db.ReadWrite, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, orgID: orgID, audit: r.audit})
	})
}

const orderColumns = `so.id, so.org_id, so.so_number, so.customer_id, c.name, so.status, so.currency, so.order_date,
	so.ship_date, so.total, COALESCE(so.notes, ''), so.created_by, so.created_at`

const orderFrom = ` FROM sales_orders so JOIN customers c ON c.id = so.customer_id AND c.org_id = so.org_id`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var so SalesOrder
	err := row.Scan(&so.ID, &so.OrgID, &so.SONumber, &so.CustomerID, &so.CustomerName, &so.Status, &so.Currency,
		&so.OrderDate, &so.ShipDate, &so.Total, &so.Notes, &so.CreatedBy, &so.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, ErrOrderNotFound
	}
	return so, err
}

// Get loads one order with its lines.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (SalesOrder, error) {
	var so SalesOrder
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		var err error
		so, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+orderFrom+` WHERE so.org_id = $1 AND so.id = $2`, orgID, id))
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, line_no, product_id, quantity, uom, unit_price, discount, line_total
			FROM sales_order_lines WHERE org_id = $1 AND sales_order_id = $2 ORDER BY line_no`, orgID, id)
		if err != nil {
			return err
		}
		so.Lines, err = pgx.CollectRows(rows, scanLine)
		return err
	})
	if err != nil && !errors.Is(err, ErrOrderNotFound) {
		return SalesOrder{}, fmt.Errorf("orders: get: %w", err)
	}
	return so, err
}

func scanLine(row pgx.CollectableRow) (Line, error) {
	var (
		l        Line
		discount []byte
	)
	if err := row.Scan(&l.ID, &l.LineNo, &l.ProductID, &l.Quantity, &l.UoM, &l.UnitPrice, &discount, &l.LineTotal); err != nil {
		return Line{}, err
	}
	if len(discount) > 0 {
		l.Discount = &pricing.Discount{}
		if err := json.Unmarshal(discount, l.Discount); err != nil {
			return Line{}, fmt.Errorf("orders: decode discount: %w", err)
		}
	}
	return l, nil
}

// List returns a page of order headers, newest first.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]SalesOrder, int, error) {
	where := []string{"so.org_id = $1"}
	args := []any{orgID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("so.status = $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		where = append(where, fmt.Sprintf("so.customer_id = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")
	var (
		out   []SalesOrder
		total int
	)
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*)`+orderFrom+` WHERE `+cond, args...).Scan(&total); err != nil {
			return err
		}
		pageArgs := append(append([]any{}, args...), filter.Page.Limit, filter.Page.Offset())
		rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT `+orderColumns+orderFrom+` WHERE %s
			ORDER BY so.order_date DESC, so.so_number DESC LIMIT $%d OFFSET $%d`, cond, len(args)+1, len(args)+2), pageArgs...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (SalesOrder, error) {
			return scanOrder(row)
		})
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("orders: list: %w", err)
	}
	return out, total, nil
}

func (t *txRepo) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE org_id = $1 AND id = $2)`, t.orgID, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("orders: customer lookup: %w", err)
	}
	return ok, nil
}

func (t *txRepo) NextNumber(ctx context.Context, now time.Time) (string, error) {
	return db.NextDocNumber(ctx, t.q, t.orgID, "sales_order", "SO", now)
}

// Insert writes the header and lines in one batch.
func (t *txRepo) Insert(ctx context.Context, so SalesOrder) error {
	var notes *string
	if so.Notes != "" {
		notes = &so.Notes
	}
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO sales_orders (id, org_id, so_number, customer_id, status, currency, order_date, ship_date, total, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		so.ID, t.orgID, so.SONumber, so.CustomerID, so.Status, so.Currency, so.OrderDate, so.ShipDate, so.Total, notes, so.CreatedBy, so.CreatedAt)
	for _, l := range so.Lines {
		var discount []byte
		if l.Discount != nil {
			raw, err := json.Marshal(l.Discount)
			if err != nil {
				return fmt.Errorf("orders: encode discount: %w", err)
			}
			discount = raw
		}
		batch.Queue(`INSERT INTO sales_order_lines (id, org_id, sales_order_id, line_no, product_id, quantity, uom, unit_price, discount, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			l.ID, t.orgID, so.ID, l.LineNo, l.ProductID, l.Quantity, l.UoM, l.UnitPrice, discount, l.LineTotal)
	}
	tx, ok := t.q.(pgx.Tx)
	if !ok {
		return errors.New("orders: insert requires a transaction")
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if _, fk := db.ForeignKeyViolation(err); fk {
			return ErrProductNotFound
		}
		return fmt.Errorf("orders: insert %s: %w", so.SONumber, err)
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	log.OrgID = t.orgID
	return t.audit.Record(ctx, t.q, log)
}
