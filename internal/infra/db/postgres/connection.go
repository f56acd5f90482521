package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"opsvision/internal/config"
	"opsvision/internal/infra/metrics"
)

// Connect returns a live pool configured from cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return pgxpool.ConnectConfig(ctx, pcfg)
}

// ReportPoolStats publishes pool gauges until ctx is done.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, every time.Duration) {
	if every <= 0 {
		every = 15 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		st := pool.Stat()
		metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
