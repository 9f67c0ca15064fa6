package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// WithSerializableTx executes fn inside a SERIALIZABLE transaction. Every
// stock mutation runs through here so lot, ledger and aggregate writes commit
// atomically and concurrent writers cannot lose updates.
func WithSerializableTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return MapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return MapError(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// MapError translates PostgreSQL error codes into the shared taxonomy.
// Serialization failures and deadlocks surface as retryable conflicts;
// unique violations as duplicates.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: serialization failure, retry the request", shared.ErrConflict)
		case "23505":
			return fmt.Errorf("%w: duplicate value for %s", shared.ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}
