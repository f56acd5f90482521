package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"opsvision/internal/config"
	"opsvision/internal/domain/ports/repository"
	pg "opsvision/internal/infra/db/postgres"
	"opsvision/internal/infra/db/sqlite"
	red "opsvision/internal/infra/redis"
)

// Store is the analysis job repository plus the connections behind it.
type Store struct {
	Jobs  repository.AnalysisJobRepository
	Pool  *pgxpool.Pool // nil unless store.driver=postgres
	Redis *red.Client   // nil unless redis.url is set

	closers []func() error
}

// OpenStore connects the configured driver, applies migrations and, when
// Redis is configured, puts the read cache in front of it.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Store, error) {
	s := &Store{}
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		if err := pg.Migrate(ctx, pool); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		s.Pool = pool
		s.Jobs = pg.NewAnalysisJobRepo(pool, pg.NewTxManager(pool))
	case "sqlite", "":
		db, err := sqlite.NewDB(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := sqlite.MigrateUp(ctx, db); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("sqlite migrate: %w", err)
		}
		s.Jobs = sqlite.NewAnalysisJobRepo(db)
	default:
		return nil, fmt.Errorf("store driver %q is not supported", cfg.Store.Driver)
	}
	logger.Info().Str("driver", cfg.Store.Driver).Msg("job store ready")

	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.closers = append(s.closers, rc.Close)
		s.Redis = rc
		s.Jobs = red.NewJobRepoCacheDecorator(s.Jobs, rc, cfg.Redis.TTL, logger)
		logger.Info().Dur("ttl", cfg.Redis.TTL).Msg("job cache enabled")
	}
	return s, nil
}

// Close releases connections in reverse order of opening.
func (s *Store) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
