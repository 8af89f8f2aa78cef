package licenseplates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
)

// The functions in this file take a db.DBTX so production bookkeeping can
// compose them inside its own transaction.

const lpColumns = `id, org_id, lp_number, product_id, quantity, uom, status, qa_status,
	COALESCE(batch_number, ''), expiry_date, location_id, warehouse_id, parent_lp_id,
	consumed_by_wo_id, is_by_product, created_at, updated_at`

func scanLP(row pgx.Row) (LicensePlate, error) {
	var lp LicensePlate
	err := row.Scan(&lp.ID, &lp.OrgID, &lp.LPNumber, &lp.ProductID, &lp.Quantity, &lp.UoM, &lp.Status, &lp.QAStatus,
		&lp.BatchNumber, &lp.ExpiryDate, &lp.LocationID, &lp.WarehouseID, &lp.ParentLPID,
		&lp.ConsumedByWOID, &lp.IsByProduct, &lp.CreatedAt, &lp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LicensePlate{}, ErrLPNotFound
	}
	return lp, err
}

// Get loads one plate.
func Get(ctx context.Context, q db.DBTX, orgID, id uuid.UUID) (LicensePlate, error) {
	return scanLP(q.QueryRow(ctx, `SELECT `+lpColumns+` FROM license_plates WHERE org_id = $1 AND id = $2`, orgID, id))
}

// GetForUpdate loads one plate and row-locks it until the transaction ends.
func GetForUpdate(ctx context.Context, q db.DBTX, orgID, id uuid.UUID) (LicensePlate, error) {
	return scanLP(q.QueryRow(ctx, `SELECT `+lpColumns+` FROM license_plates WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, id))
}

// Insert stores a new plate.
func Insert(ctx context.Context, q db.DBTX, lp LicensePlate) error {
	_, err := q.Exec(ctx, `INSERT INTO license_plates
		(id, org_id, lp_number, product_id, quantity, uom, status, qa_status, batch_number, expiry_date,
		 location_id, warehouse_id, parent_lp_id, consumed_by_wo_id, is_by_product, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13, $14, $15, $16, $16)`,
		lp.ID, lp.OrgID, lp.LPNumber, lp.ProductID, lp.Quantity, lp.UoM, lp.Status, lp.QAStatus, lp.BatchNumber,
		lp.ExpiryDate, lp.LocationID, lp.WarehouseID, lp.ParentLPID, lp.ConsumedByWOID, lp.IsByProduct, lp.CreatedAt)
	if err != nil {
		return fmt.Errorf("licenseplates: insert %s: %w", lp.LPNumber, err)
	}
	return nil
}

// Save writes the mutable columns of lp.
func Save(ctx context.Context, q db.DBTX, lp LicensePlate) error {
	tag, err := q.Exec(ctx, `UPDATE license_plates SET
			quantity = $3, status = $4, qa_status = $5, batch_number = NULLIF($6, ''), expiry_date = $7,
			location_id = $8, consumed_by_wo_id = $9, updated_at = NOW()
		WHERE org_id = $1 AND id = $2`,
		lp.OrgID, lp.ID, lp.Quantity, lp.Status, lp.QAStatus, lp.BatchNumber, lp.ExpiryDate, lp.LocationID, lp.ConsumedByWOID)
	if err != nil {
		return fmt.Errorf("licenseplates: save %s: %w", lp.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLPNotFound
	}
	return nil
}

// InsertMovement appends a ledger entry.
func InsertMovement(ctx context.Context, q db.DBTX, m Movement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	var notes *string
	if m.Notes != "" {
		notes = &m.Notes
	}
	_, err := q.Exec(ctx, `INSERT INTO lp_movements (id, org_id, lp_id, movement_type, quantity, wo_id, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		m.ID, m.OrgID, m.LPID, m.MovementType, m.Quantity, m.WOID, notes, m.CreatedBy)
	if err != nil {
		return fmt.Errorf("licenseplates: insert %s movement: %w", m.MovementType, err)
	}
	return nil
}

// FormatNumber renders LP-YYYYMMDD-NNNNNN.
func FormatNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("LP-%s-%06d", day.UTC().Format("20060102"), seq)
}

// NextNumber allocates the next plate number of the day for orgID. The
// counter row is locked by the upsert until the transaction ends.
func NextNumber(ctx context.Context, q db.DBTX, orgID uuid.UUID, now time.Time) (string, error) {
	day := truncateDay(now)
	var seq int64
	err := q.QueryRow(ctx, `INSERT INTO lp_number_sequences (org_id, day, last_value) VALUES ($1, $2, 1)
		ON CONFLICT (org_id, day) DO UPDATE SET last_value = lp_number_sequences.last_value + 1
		RETURNING last_value`, orgID, day).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("licenseplates: next number: %w", err)
	}
	return FormatNumber(day, seq), nil
}

func collect(rows pgx.Rows, err error) ([]LicensePlate, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LicensePlate, error) {
		return scanLP(row)
	})
}

// Watchlist returns usable plates that are on QA hold or expire on or before
// until, soonest expiry first.
func Watchlist(ctx context.Context, q db.DBTX, orgID uuid.UUID, until time.Time) ([]LicensePlate, error) {
	plates, err := collect(q.Query(ctx, `SELECT `+lpColumns+` FROM license_plates
		WHERE org_id = $1 AND status IN ('available', 'reserved')
		  AND (qa_status IN ('quarantine', 'on_hold') OR expiry_date <= $2)
		ORDER BY expiry_date NULLS LAST, lp_number`, orgID, truncateDay(until)))
	if err != nil {
		return nil, fmt.Errorf("licenseplates: watchlist: %w", err)
	}
	return plates, nil
}

// CountExpired counts usable plates whose expiry date is before today.
func CountExpired(ctx context.Context, q db.DBTX, orgID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM license_plates
		WHERE org_id = $1 AND status IN ('available', 'reserved') AND expiry_date < $2`, orgID, truncateDay(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("licenseplates: count expired: %w", err)
	}
	return n, nil
}
