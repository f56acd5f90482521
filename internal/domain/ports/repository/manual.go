package repository

import (
	"context"

	"opsvision/internal/domain/model"
)

// ManualRepository stores embedded manual chunks.
type ManualRepository interface {
	// ReplaceSource atomically swaps every chunk of source for chunks.
	ReplaceSource(ctx context.Context, source string, chunks []*model.ManualChunk) error
	// ListChunks returns every chunk with its embedding, in source/seq order.
	ListChunks(ctx context.Context) ([]*model.ManualChunk, error)
	// Sources returns each ingested source with its chunk count.
	Sources(ctx context.Context) (map[string]int, error)
}
