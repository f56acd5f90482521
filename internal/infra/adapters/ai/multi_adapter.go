package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"opsvision/internal/domain"
	"opsvision/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

// modelPrefixes maps well-known model families to the provider that serves
// them when no explicit mapping is configured.
var modelPrefixes = []struct{ prefix, provider string }{
	{"gemini", "gemini"},
	{"gpt", "openai"},
	{"o1", "openai"},
	{"o3", "openai"},
	{"o4", "openai"},
}

// MultiAIAdapter routes each chat call to a provider chosen by model name.
// It never picks a model itself; an empty model goes to the default
// provider, which applies its own default.
type MultiAIAdapter struct {
	fallback  string
	providers map[string]adapter.AIServiceAdapter
	models    map[string]string
}

func NewMultiAIAdapter(
	defaultProvider string,
	providers map[string]adapter.AIServiceAdapter,
	modelProviders map[string]string,
) *MultiAIAdapter {
	live := make(map[string]adapter.AIServiceAdapter, len(providers))
	for name, a := range providers {
		if a != nil {
			live[strings.ToLower(name)] = a
		}
	}
	return &MultiAIAdapter{
		fallback:  strings.ToLower(defaultProvider),
		providers: live,
		models:    modelProviders,
	}
}

func (m *MultiAIAdapter) providerFor(model string) string {
	if p, ok := m.models[model]; ok && p != "" {
		return strings.ToLower(p)
	}
	lower := strings.ToLower(model)
	for _, mp := range modelPrefixes {
		if strings.HasPrefix(lower, mp.prefix) {
			return mp.provider
		}
	}
	return m.fallback
}

// route resolves the adapter for model. A provider that is not configured
// falls back to the default one, then to the first configured by name.
func (m *MultiAIAdapter) route(model string) (adapter.AIServiceAdapter, error) {
	for _, name := range []string{m.providerFor(model), m.fallback} {
		if a, ok := m.providers[name]; ok {
			return a, nil
		}
	}
	if len(m.providers) == 0 {
		return nil, fmt.Errorf("%w: no provider configured for model %q", domain.ErrInvalidArgument, model)
	}
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return m.providers[names[0]], nil
}

// ListModels merges the configured model map with what each provider
// reports. Provider errors are skipped so one outage does not hide the rest.
func (m *MultiAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{}, len(m.models))
	for model := range m.models {
		set[model] = struct{}{}
	}
	for _, a := range m.providers {
		listed, err := a.ListModels(ctx)
		if err != nil {
			continue
		}
		for _, model := range listed {
			if model != "" {
				set[model] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for model := range set {
		out = append(out, model)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MultiAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	a, err := m.route(model)
	if err != nil {
		return 0, err
	}
	return a.CountTokens(ctx, model, messages)
}

func (m *MultiAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	a, err := m.route(model)
	if err != nil {
		return "", err
	}
	return a.Chat(ctx, model, messages)
}

func (m *MultiAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	a, err := m.route(model)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return a.ChatWithUsage(ctx, model, messages)
}
