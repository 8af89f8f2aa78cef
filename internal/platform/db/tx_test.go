package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	execs      []string
	args       [][]any
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	tx   *fakeTx
	opts pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	return b.tx, nil
}

func TestWithOrgTxSetsScopeAndCommits(t *testing.T) {
	tx := &fakeTx{}
	pool := &fakeBeginner{tx: tx}
	orgID := uuid.New()

	err := WithOrgTx(context.Background(), pool, orgID, ReadOnly, func(pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.True(t, tx.committed)
	require.Equal(t, pgx.ReadOnly, pool.opts.AccessMode)
	require.Len(t, tx.execs, 1)
	require.Contains(t, tx.execs[0], "app.current_org_id")
	require.Equal(t, orgID.String(), tx.args[0][0])
}

func TestWithOrgTxRollsBackOnError(t *testing.T) {
	tx := &fakeTx{}
	boom := errors.New("boom")

	err := WithOrgTx(context.Background(), &fakeBeginner{tx: tx}, uuid.New(), Compound, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, tx.committed)
	require.True(t, tx.rolledBack)
}

func TestWithOrgTxRequiresOrg(t *testing.T) {
	err := WithOrgTx(context.Background(), &fakeBeginner{tx: &fakeTx{}}, uuid.Nil, ReadOnly, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, ErrMissingOrg)
}

func TestUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "bom_alternatives_item_product_key"}
	name, ok := UniqueViolation(errors.Join(errors.New("insert"), err))
	require.True(t, ok)
	require.Equal(t, "bom_alternatives_item_product_key", name)

	_, ok = UniqueViolation(errors.New("plain"))
	require.False(t, ok)
}
