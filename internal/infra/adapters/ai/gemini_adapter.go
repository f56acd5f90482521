package ai

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"google.golang.org/genai"

	"opsvision/internal/domain"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

// GeminiAdapter serves text chat over the same SDK client the media
// analyzer uses.
type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

func NewGeminiAdapter(client *genai.Client, defaultModel string, maxOut int) *GeminiAdapter {
	return &GeminiAdapter{client: client, defaultModel: defaultModel, maxOut: maxOut}
}

// ListModels lists models that accept generateContent, falling back to the
// configured default when the listing comes back empty.
func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}
		if m == nil || m.Name == "" {
			continue
		}
		if len(m.SupportedActions) > 0 && !slices.Contains(m.SupportedActions, "generateContent") {
			continue
		}
		out = append(out, strings.TrimPrefix(m.Name, "models/"))
	}
	if len(out) == 0 && g.defaultModel != "" {
		out = []string{g.defaultModel}
	}
	return out, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	system, contents := splitTranscript(messages)
	if system != nil {
		contents = append([]*genai.Content{system}, contents...)
	}
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(model, g.defaultModel), contents, nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := g.ChatWithUsage(ctx, model, messages)
	return reply, err
}

// ChatWithUsage sends the whole transcript in one GenerateContent call. The
// final message must come from the user.
func (g *GeminiAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 || !strings.EqualFold(messages[len(messages)-1].Role, "user") {
		return "", adapter.Usage{}, fmt.Errorf("%w: transcript must end with a user message", domain.ErrInvalidArgument)
	}
	model = modelOrDefault(model, g.defaultModel)

	system, contents := splitTranscript(messages)
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveChatUsage(providerGemini, model, 0, 0, 0, latency, false)
		return "", adapter.Usage{}, err
	}

	var u adapter.Usage
	if md := resp.UsageMetadata; md != nil {
		u = adapter.Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	}
	metrics.ObserveChatUsage(providerGemini, model, u.PromptTokens, u.CompletionTokens, u.TotalTokens, latency, true)
	return responseText(resp), u, nil
}

// splitTranscript pulls system messages into a single instruction and maps
// the remaining turns onto Gemini roles.
func splitTranscript(msgs []adapter.Message) (*genai.Content, []*genai.Content) {
	var sys []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			sys = append(sys, m.Content)
		case "assistant", "model":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(sys) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(sys, "\n\n"), genai.RoleUser), contents
}
