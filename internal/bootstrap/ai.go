package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"opsvision/internal/agent"
	"opsvision/internal/config"
	"opsvision/internal/domain/ports/adapter"
	aiAdapters "opsvision/internal/infra/adapters/ai"
	"opsvision/internal/poller"
)

const agentSystemPrompt = "You are an operations assistant. Use the tools to check servers " +
	"before answering, and answer in one or two sentences."

// Media bundles the Gemini pieces of the video and image flows.
type Media struct {
	Client   *genai.Client
	Files    *aiAdapters.GeminiFileService
	Analyzer *aiAdapters.GeminiMediaAnalyzer
	Poller   *poller.Poller
}

func NewMedia(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Media, error) {
	client, err := aiAdapters.NewGeminiClient(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	files := aiAdapters.NewGeminiFileService(client, logger)
	return &Media{
		Client:   client,
		Files:    files,
		Analyzer: aiAdapters.NewGeminiMediaAnalyzer(client, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens, logger),
		Poller:   poller.New(files, PollerPolicy(cfg.Poller), logger),
	}, nil
}

// PollerPolicy maps configuration onto the poller's bounds. An unset
// transient budget keeps the poller default.
func PollerPolicy(c config.PollerConfig) poller.Policy {
	p := poller.Policy{
		Interval:     c.Interval,
		Timeout:      c.Timeout,
		MaxPolls:     c.MaxPolls,
		MaxTransient: poller.DefaultPolicy().MaxTransient,
	}
	if c.MaxTransient != nil {
		p.MaxTransient = *c.MaxTransient
	}
	return p
}

// NewChatAI routes chat between the configured providers behind a
// concurrency limit. client may be nil when Gemini is not configured.
func NewChatAI(cfg *config.Config, client *genai.Client, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	providers := map[string]adapter.AIServiceAdapter{}
	if client != nil {
		providers["gemini"] = aiAdapters.NewGeminiAdapter(client, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens)
	}
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.OpenAIModel)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = oa
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no AI provider configured: set ai.gemini_key or ai.openai_key")
	}
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	logger.Info().Strs("providers", names).Str("default", cfg.AI.DefaultProvider).Msg("chat providers ready")

	multi := aiAdapters.NewMultiAIAdapter(cfg.AI.DefaultProvider, providers, cfg.AI.ModelProviders)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), nil
}

// DefaultChatModel is the model used when a request names none.
func DefaultChatModel(cfg *config.Config, hasGemini bool) string {
	if cfg.AI.DefaultProvider == "openai" || !hasGemini {
		return cfg.AI.OpenAIModel
	}
	return cfg.AI.DefaultModel
}

// NewAgent builds the ops agent over the built-in fleet tools.
func NewAgent(cfg *config.Config, client *genai.Client, logger *zerolog.Logger) (*agent.Agent, error) {
	reg := agent.NewRegistry()
	if err := agent.RegisterBuiltins(reg, agent.DefaultFleet()); err != nil {
		return nil, err
	}
	model := aiAdapters.NewGeminiToolModel(client, cfg.AI.DefaultModel, agentSystemPrompt)
	return agent.New(model, reg, cfg.Agent.MaxSteps, logger), nil
}
