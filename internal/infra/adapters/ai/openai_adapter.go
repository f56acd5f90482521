package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/infra/metrics"
)

const providerOpenAI = "openai"

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIServiceAdapter using the Chat Completions API.
// A custom base URL allows any OpenAI-compatible endpoint.
type OpenAIAdapter struct {
	client openai.Client
	model  string

	encMu sync.Mutex
	encs  map[string]*tiktoken.Tiktoken
}

func NewOpenAIAdapter(apiKey, baseURL, model string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(60 * time.Second),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		model:  model,
		encs:   map[string]*tiktoken.Tiktoken{},
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{o.model}, nil
}

// CountTokens estimates prompt tokens locally with tiktoken.
// Each message carries a small fixed overhead for role framing.
func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	enc, err := o.encoding(modelOrDefault(model, o.model))
	if err != nil {
		return 0, err
	}
	total := 3
	for _, m := range messages {
		total += 4
		total += len(enc.Encode(m.Role, nil, nil))
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := o.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	model = modelOrDefault(model, o.model)
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveChatUsage(providerOpenAI, model, 0, 0, 0, latency, false)
		return "", adapter.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		metrics.ObserveChatUsage(providerOpenAI, model, 0, 0, 0, latency, false)
		return "", adapter.Usage{}, errors.New("openai: empty choices")
	}

	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	metrics.ObserveChatUsage(providerOpenAI, model, u.PromptTokens, u.CompletionTokens, u.TotalTokens, latency, true)
	return resp.Choices[0].Message.Content, u, nil
}

func (o *OpenAIAdapter) encoding(model string) (*tiktoken.Tiktoken, error) {
	o.encMu.Lock()
	defer o.encMu.Unlock()
	if enc, ok := o.encs[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// unknown model names fall back to the common encoding
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	o.encs[model] = enc
	return enc, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant", "model":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
