package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for PostgreSQL).
// Repositories accept nil for the non-transactional path.
type Tx interface{}

// TransactionManager runs fn inside one database transaction. The claim of a
// queued analysis uses it to read and update the row under the same lock.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
