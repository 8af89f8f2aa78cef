package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore persists processed keys per organisation and module.
type IdempotencyStore struct {
	db Execer
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// CheckAndInsert claims key for module. A second claim returns ErrDuplicateRequest.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, orgID uuid.UUID, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (org_id, key, module, created_at) VALUES ($1, $2, $3, $4)`,
		orgID, key, module, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

// Cleanup removes entries older than retention and returns how many were deleted.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete releases a key after failed processing so the client may retry.
func (s *IdempotencyStore) Delete(ctx context.Context, orgID uuid.UUID, key, module string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE org_id=$1 AND key=$2 AND module=$3`, orgID, key, module)
	return err
}

// Guard claims key (when non-empty), runs fn and releases the key if fn fails.
func (s *IdempotencyStore) Guard(ctx context.Context, orgID uuid.UUID, key, module string, fn func() error) error {
	if s == nil || key == "" {
		return fn()
	}
	if err := s.CheckAndInsert(ctx, orgID, key, module); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = s.Delete(ctx, orgID, key, module)
		return err
	}
	return nil
}
