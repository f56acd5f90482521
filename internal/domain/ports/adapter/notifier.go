package adapter

import (
	"context"

	"opsvision/internal/domain/model"
)

// Notifier tells someone that an analysis finished.
type Notifier interface {
	Notify(ctx context.Context, job *model.AnalysisJob) error
}
