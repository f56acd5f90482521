package postgres

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v4/pgxpool"
)

//go:embed schema.sql
var schema string

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
