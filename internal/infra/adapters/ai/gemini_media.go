package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/infra/metrics"
)

var (
	_ adapter.VideoAnalyzer = (*GeminiMediaAnalyzer)(nil)
	_ adapter.ImageAnalyzer = (*GeminiMediaAnalyzer)(nil)
)

const (
	describePrompt = "Watch this video carefully. Describe exactly what happens, and provide a timeline of events."

	askPrompt = `Answer this question based on the video provided: %q
Provide a detailed answer and timestamp if applicable.`

	timelinePrompt = `Analyze this video. Return a JSON list of events.
For each event, provide:
- start (string, e.g. '00:00')
- end (string)
- description (string)
- objects_visible (list of strings)`

	itemsPrompt = `Look at this technical image. List the top %d most distinct technical items you see.
Format: Just the item names, separated by commas. (e.g., Server, Cable, Monitor).`
)

// timelineSchema pins the JSON shape of a timeline response.
var timelineSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"start":       {Type: genai.TypeString, Description: "event start, mm:ss"},
			"end":         {Type: genai.TypeString, Description: "event end, mm:ss"},
			"description": {Type: genai.TypeString},
			"objects_visible": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"start", "end", "description"},
	},
}

// GeminiMediaAnalyzer asks a Gemini model about uploaded videos and inline images.
type GeminiMediaAnalyzer struct {
	client *genai.Client
	model  string
	maxOut int
	log    *zerolog.Logger
}

func NewGeminiMediaAnalyzer(client *genai.Client, defaultModel string, maxOut int, logger *zerolog.Logger) *GeminiMediaAnalyzer {
	l := logger.With().Str("component", "GeminiMediaAnalyzer").Str("model", defaultModel).Logger()
	return &GeminiMediaAnalyzer{client: client, model: defaultModel, maxOut: maxOut, log: &l}
}

func (g *GeminiMediaAnalyzer) Describe(ctx context.Context, a model.Artifact) (string, error) {
	return g.generateText(ctx, "describe", a, describePrompt)
}

func (g *GeminiMediaAnalyzer) Ask(ctx context.Context, a model.Artifact, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("gemini: empty question")
	}
	return g.generateText(ctx, "ask", a, fmt.Sprintf(askPrompt, question))
}

func (g *GeminiMediaAnalyzer) Timeline(ctx context.Context, a model.Artifact) ([]model.Event, error) {
	cfg := g.config()
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = timelineSchema

	resp, err := g.generate(ctx, "timeline", videoContents(a, timelinePrompt), cfg)
	if err != nil {
		return nil, err
	}
	return model.ParseTimeline([]byte(responseText(resp)))
}

func (g *GeminiMediaAnalyzer) IdentifyItems(ctx context.Context, mimeType string, data []byte, limit int) ([]string, error) {
	if len(data) == 0 {
		return nil, errors.New("gemini: empty image")
	}
	if limit <= 0 {
		limit = 3
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(fmt.Sprintf(itemsPrompt, limit)),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}
	resp, err := g.generate(ctx, "vision", contents, g.config())
	if err != nil {
		return nil, err
	}
	items := SplitItems(responseText(resp))
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// SplitItems turns "A, B ,C." into [A B C], dropping empties and duplicates.
func SplitItems(s string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' }) {
		item := strings.Trim(strings.TrimSpace(f), ".*-• ")
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// --- internal ---

func (g *GeminiMediaAnalyzer) config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}
	return cfg
}

func (g *GeminiMediaAnalyzer) generateText(ctx context.Context, op string, a model.Artifact, prompt string) (string, error) {
	resp, err := g.generate(ctx, op, videoContents(a, prompt), g.config())
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", fmt.Errorf("gemini: empty %s response", op)
	}
	return text, nil
}

func (g *GeminiMediaAnalyzer) generate(ctx context.Context, op string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	latency := int(time.Since(start) / time.Millisecond)
	metrics.ObserveAICall(providerGemini, g.model, op, latency, err == nil)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", op, err)
	}
	if resp.UsageMetadata != nil {
		g.log.Debug().Str("op", op).
			Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount).
			Int32("output_tokens", resp.UsageMetadata.CandidatesTokenCount).
			Int("latency_ms", latency).Msg("generate")
	}
	return resp, nil
}

func videoContents(a model.Artifact, prompt string) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromURI(a.URI, a.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
}
