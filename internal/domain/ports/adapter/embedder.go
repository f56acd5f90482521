package adapter

import "context"

// EmbedTask tells the provider which side of a retrieval the text is on.
type EmbedTask string

const (
	EmbedTaskDocument EmbedTask = "RETRIEVAL_DOCUMENT"
	EmbedTaskQuery    EmbedTask = "RETRIEVAL_QUERY"
)

// Embedder turns text into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, task EmbedTask, texts []string) ([][]float32, error)
}
