package adapter

import "context"

// Message is one turn of a chat transcript. Role is one of "system",
// "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AIServiceAdapter is the text chat port behind the chat usecase and the
// CLI. An empty model selects the provider's default.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)
	// CountTokens is exact where the provider offers a counter and an
	// estimate otherwise.
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)
	Chat(ctx context.Context, model string, messages []Message) (string, error)
	ChatWithUsage(ctx context.Context, model string, messages []Message) (string, Usage, error)
}
