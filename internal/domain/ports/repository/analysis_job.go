package repository

import (
	"context"
	"time"

	"opsvision/internal/domain/model"
)

type AnalysisJobRepository interface {
	Save(ctx context.Context, job *model.AnalysisJob) error
	FindByID(ctx context.Context, id string) (*model.AnalysisJob, error)
	// FetchAndMarkProcessing atomically claims the oldest queued job and marks it 'processing'.
	// Returns domain.ErrNotFound when nothing is queued.
	FetchAndMarkProcessing(ctx context.Context) (*model.AnalysisJob, error)
	ListRecent(ctx context.Context, limit int) ([]*model.AnalysisJob, error)
	// RequeueStale puts 'processing' jobs not updated since olderThan back to
	// 'queued' and returns how many were moved. The remote handle is kept.
	RequeueStale(ctx context.Context, olderThan time.Time) (int, error)
}
