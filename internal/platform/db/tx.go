package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner opens transactions. *pgxpool.Pool implements it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var (
	// ReadOnly is used for org scoped reads.
	ReadOnly = pgx.TxOptions{AccessMode: pgx.ReadOnly}
	// ReadWrite is used for single statement writes.
	ReadWrite = pgx.TxOptions{}
	// Compound is used for multi row bookkeeping (split, consumption,
	// registration). Row locks are taken explicitly with FOR UPDATE.
	Compound = pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
)

// ErrMissingOrg is returned when an org scoped transaction has no org id.
var ErrMissingOrg = errors.New("platform/db: org id required")

// WithTx executes fn within a repeatable read transaction.
func WithTx(ctx context.Context, pool Beginner, fn func(pgx.Tx) error) error {
	return run(ctx, pool, Compound, nil, fn)
}

// WithOrgTx executes fn within a transaction where app.current_org_id is set
// to orgID, so row level security policies only expose that tenant's rows.
func WithOrgTx(ctx context.Context, pool Beginner, orgID uuid.UUID, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	if orgID == uuid.Nil {
		return ErrMissingOrg
	}
	return run(ctx, pool, opts, &orgID, fn)
}

func run(ctx context.Context, pool Beginner, opts pgx.TxOptions, orgID *uuid.UUID, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if orgID != nil {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.current_org_id', $1, true)`, orgID.String()); err != nil {
			return fmt.Errorf("platform/db: set org scope: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}
