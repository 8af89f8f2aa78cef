package shared

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type keyExecer struct {
	keys    map[string]bool
	deletes int
}

func (e *keyExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.HasPrefix(sql, "INSERT INTO idempotency_keys"):
		k := args[0].(uuid.UUID).String() + args[1].(string) + args[2].(string)
		if e.keys[k] {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		}
		e.keys[k] = true
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.HasPrefix(sql, "DELETE FROM idempotency_keys WHERE org_id"):
		e.deletes++
		delete(e.keys, args[0].(uuid.UUID).String()+args[1].(string)+args[2].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("DELETE 3"), nil
}

func TestGuardRejectsReplay(t *testing.T) {
	store := NewIdempotencyStore(&keyExecer{keys: map[string]bool{}})
	ctx := context.Background()
	org := uuid.New()

	runs := 0
	fn := func() error { runs++; return nil }
	require.NoError(t, store.Guard(ctx, org, "abc", "consumption", fn))
	require.ErrorIs(t, store.Guard(ctx, org, "abc", "consumption", fn), ErrDuplicateRequest)
	require.Equal(t, 1, runs)

	// Same key in another organisation is independent.
	require.NoError(t, store.Guard(ctx, uuid.New(), "abc", "consumption", fn))
}

func TestGuardReleasesKeyOnFailure(t *testing.T) {
	execer := &keyExecer{keys: map[string]bool{}}
	store := NewIdempotencyStore(execer)
	ctx := context.Background()
	org := uuid.New()

	boom := errors.New("boom")
	require.ErrorIs(t, store.Guard(ctx, org, "k1", "outputs", func() error { return boom }), boom)
	require.Equal(t, 1, execer.deletes)
	require.NoError(t, store.Guard(ctx, org, "k1", "outputs", func() error { return nil }))
}

func TestGuardWithoutKeyAlwaysRuns(t *testing.T) {
	store := NewIdempotencyStore(&keyExecer{keys: map[string]bool{}})
	runs := 0
	for i := 0; i < 2; i++ {
		require.NoError(t, store.Guard(context.Background(), uuid.New(), "", "m", func() error { runs++; return nil }))
	}
	require.Equal(t, 2, runs)
}

func TestCleanupReportsRows(t *testing.T) {
	store := NewIdempotencyStore(&keyExecer{keys: map[string]bool{}})
	n, err := store.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
