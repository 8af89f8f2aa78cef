package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NextDocNumber allocates the next daily number of docType for orgID and
// renders it as PREFIX-YYYYMMDD-NNNN. The counter row stays locked until the
// surrounding transaction ends.
func NextDocNumber(ctx context.Context, q DBTX, orgID uuid.UUID, docType, prefix string, now time.Time) (string, error) {
	y, m, d := now.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	var seq int64
	err := q.QueryRow(ctx, `INSERT INTO doc_sequences (org_id, doc_type, day, last_value) VALUES ($1, $2, $3, 1)
		ON CONFLICT (org_id, doc_type, day) DO UPDATE SET last_value = doc_sequences.last_value + 1
		RETURNING last_value`, orgID, docType, day).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("platform/db: next %s number: %w", docType, err)
	}
	return FormatDocNumber(prefix, day, seq), nil
}

// FormatDocNumber renders PREFIX-YYYYMMDD-NNNN.
func FormatDocNumber(prefix string, day time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.UTC().Format("20060102"), seq)
}
