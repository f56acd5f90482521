package application

import (
	"context"

	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/usecase"
)

// Small interfaces so the facade can be tested without the real usecases.

type VideoAnalyzerIface interface {
	Analyze(ctx context.Context, req usecase.AnalysisRequest) (*model.AnalysisJob, error)
	FollowUp(ctx context.Context, id, question string) (string, error)
}

type ImageUseCaseIface interface {
	IdentifyItems(ctx context.Context, path string, limit int) ([]string, error)
}

type ChatUseCaseIface interface {
	Chat(ctx context.Context, modelName string, messages []adapter.Message) (string, adapter.Usage, error)
	CountTokens(ctx context.Context, modelName string, messages []adapter.Message) (int, error)
	ListModels(ctx context.Context) ([]string, error)
}

type AgentIface interface {
	Run(ctx context.Context, prompt string) (string, []adapter.AgentMessage, error)
}

type ManualsIface interface {
	Ingest(ctx context.Context, paths []string, meta map[string]string) (usecase.IngestReport, error)
	Search(ctx context.Context, query string, k int, filter map[string]string) ([]model.ManualHit, error)
	Recall(ctx context.Context, imagePath string, items int) ([]model.ItemRecall, error)
}
