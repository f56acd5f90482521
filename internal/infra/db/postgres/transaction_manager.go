package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"opsvision/internal/domain"
	"opsvision/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager runs callbacks inside a pgx transaction. The callback receives
// the pgx.Tx as its repository.Tx so repo helpers can route through it.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithTx commits when fn returns nil. Rollback after a successful commit is
// a no-op, so the deferred call also covers panics in fn.
func (m *TxManager) WithTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// on picks the transaction when one is given and the pool otherwise.
func on(pool *pgxpool.Pool, tx repository.Tx) (querier, error) {
	if tx == nil {
		if pool == nil {
			return nil, fmt.Errorf("%w: no pool and no tx", domain.ErrInvalidArgument)
		}
		return pool, nil
	}
	q, ok := tx.(querier)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported exec context %T", domain.ErrInvalidArgument, tx)
	}
	return q, nil
}

func execSQL(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgconn.CommandTag, error) {
	db, err := on(pool, tx)
	if err != nil {
		return nil, err
	}
	return db.Exec(ctx, q, args...)
}

func pickRow(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgx.Row, error) {
	db, err := on(pool, tx)
	if err != nil {
		return nil, err
	}
	return db.QueryRow(ctx, q, args...), nil
}
