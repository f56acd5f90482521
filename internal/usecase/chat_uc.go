// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"strings"

	"opsvision/internal/domain"
	"opsvision/internal/domain/ports/adapter"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	// Chat sends the conversation and returns the assistant reply with usage.
	Chat(ctx context.Context, modelName string, messages []adapter.Message) (string, adapter.Usage, error)
	CountTokens(ctx context.Context, modelName string, messages []adapter.Message) (int, error)
	ListModels(ctx context.Context) ([]string, error)
}

type chatUC struct {
	ai           adapter.AIServiceAdapter
	defaultModel string
	maxHistory   int
}

func NewChatUseCase(ai adapter.AIServiceAdapter, defaultModel string) *chatUC {
	return &chatUC{ai: ai, defaultModel: defaultModel, maxHistory: 15}
}

func (c *chatUC) Chat(ctx context.Context, modelName string, messages []adapter.Message) (string, adapter.Usage, error) {
	msgs, err := c.prepare(messages)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return c.ai.ChatWithUsage(ctx, c.model(modelName), msgs)
}

func (c *chatUC) CountTokens(ctx context.Context, modelName string, messages []adapter.Message) (int, error) {
	msgs, err := c.prepare(messages)
	if err != nil {
		return 0, err
	}
	return c.ai.CountTokens(ctx, c.model(modelName), msgs)
}

func (c *chatUC) ListModels(ctx context.Context) ([]string, error) {
	return c.ai.ListModels(ctx)
}

func (c *chatUC) model(name string) string {
	if strings.TrimSpace(name) == "" {
		return c.defaultModel
	}
	return name
}

// prepare trims blanks, keeps the leading system prompt and the recent tail,
// and requires the last message to come from the user.
func (c *chatUC) prepare(messages []adapter.Message) ([]adapter.Message, error) {
	out := make([]adapter.Message, 0, len(messages))
	for _, m := range messages {
		m.Role = strings.ToLower(strings.TrimSpace(m.Role))
		m.Content = strings.TrimSpace(m.Content)
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case "user", "assistant", "system":
		default:
			return nil, domain.ErrInvalidArgument
		}
		out = append(out, m)
	}
	if len(out) == 0 || out[len(out)-1].Role != "user" {
		return nil, domain.ErrInvalidArgument
	}

	if len(out) > c.maxHistory {
		tail := out[len(out)-c.maxHistory:]
		if out[0].Role == "system" && tail[0].Role != "system" {
			tail = append([]adapter.Message{out[0]}, tail[1:]...)
		}
		out = tail
	}
	return out, nil
}
