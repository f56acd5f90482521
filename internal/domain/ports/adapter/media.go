package adapter

import (
	"context"

	"opsvision/internal/domain/model"
)

// JobService is the remote side of the submit-then-poll protocol.
type JobService interface {
	// Submit uploads the local file and returns the remote handle.
	Submit(ctx context.Context, path string) (model.JobHandle, error)
	// Status re-reads the remote state. It never mutates it.
	Status(ctx context.Context, h model.JobHandle) (model.JobState, error)
	// Fetch returns the artifact of a ready job.
	Fetch(ctx context.Context, h model.JobHandle) (model.Artifact, error)
	// Delete releases the remote artifact. Retention otherwise follows the service.
	Delete(ctx context.Context, h model.JobHandle) error
}

// VideoAnalyzer turns a ready artifact into text or a timeline.
type VideoAnalyzer interface {
	Describe(ctx context.Context, a model.Artifact) (string, error)
	Ask(ctx context.Context, a model.Artifact, question string) (string, error)
	Timeline(ctx context.Context, a model.Artifact) ([]model.Event, error)
}

// ImageAnalyzer detects distinct items in a still image.
type ImageAnalyzer interface {
	IdentifyItems(ctx context.Context, mimeType string, data []byte, limit int) ([]string, error)
}
