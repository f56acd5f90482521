package ai

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"opsvision/internal/domain"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/infra/metrics"
)

var _ adapter.Embedder = (*GeminiEmbedder)(nil)

// embedBatch is the most contents the API accepts in one EmbedContent call.
const embedBatch = 100

type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model}
}

// Embed batches texts and returns one vector per text in order.
func (g *GeminiEmbedder) Embed(ctx context.Context, task adapter.EmbedTask, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatch {
		end := min(start+embedBatch, len(texts))
		vecs, err := g.embed(ctx, task, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (g *GeminiEmbedder) embed(ctx context.Context, task adapter.EmbedTask, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	start := time.Now()
	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{TaskType: string(task)})
	metrics.ObserveAICall(providerGemini, g.model, "embed", int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", domain.ErrMalformedResult, len(resp.Embeddings), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at %d", domain.ErrMalformedResult, i)
		}
		vecs[i] = e.Values
	}
	return vecs, nil
}
