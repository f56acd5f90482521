package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"opsvision/internal/config"
	"opsvision/internal/domain/ports/repository"
	aiAdapters "opsvision/internal/infra/adapters/ai"
	"opsvision/internal/infra/db/sqlite"
	"opsvision/internal/usecase"
)

// ManualStore is the sqlite file holding embedded manual chunks.
type ManualStore struct {
	Chunks repository.ManualRepository
	close  func() error
}

func OpenManualStore(ctx context.Context, cfg config.ManualsConfig, logger *zerolog.Logger) (*ManualStore, error) {
	db, err := sqlite.NewDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("manuals sqlite: %w", err)
	}
	if err := sqlite.MigrateUp(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manuals migrate: %w", err)
	}
	logger.Info().Str("path", cfg.Path).Msg("manual store ready")
	return &ManualStore{Chunks: sqlite.NewManualRepo(db), close: db.Close}, nil
}

func (s *ManualStore) Close() error {
	if s.close == nil {
		return nil
	}
	err := s.close()
	s.close = nil
	return err
}

// ManualOptions maps configuration onto the manual use case.
func ManualOptions(c config.ManualsConfig) usecase.ManualOptions {
	return usecase.ManualOptions{
		ChunkWords:   c.ChunkWords,
		ChunkOverlap: c.ChunkOverlap,
		MinScore:     c.MinScore,
	}
}

func NewEmbedder(cfg *config.Config, client *genai.Client) *aiAdapters.GeminiEmbedder {
	return aiAdapters.NewGeminiEmbedder(client, cfg.Manuals.EmbedModel)
}
