package ai

import (
	"context"

	"golang.org/x/sync/semaphore"

	"opsvision/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI caps in-flight provider calls. ListModels is metadata only and
// bypasses the cap.
type limitedAI struct {
	inner adapter.AIServiceAdapter
	slots *semaphore.Weighted
}

// NewLimitedAI returns inner unchanged when maxConcurrent is not positive.
// Callers waiting for a slot give up when their ctx ends.
func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{inner: inner, slots: semaphore.NewWeighted(int64(maxConcurrent))}
}

func withSlot[T any](ctx context.Context, l *limitedAI, call func() (T, error)) (T, error) {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, err
	}
	defer l.slots.Release(1)
	return call()
}

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	return withSlot(ctx, l, func() (string, error) {
		return l.inner.Chat(ctx, model, messages)
	})
}

func (l *limitedAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	var usage adapter.Usage
	reply, err := withSlot(ctx, l, func() (string, error) {
		var err error
		var out string
		out, usage, err = l.inner.ChatWithUsage(ctx, model, messages)
		return out, err
	})
	return reply, usage, err
}

func (l *limitedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return withSlot(ctx, l, func() (int, error) {
		return l.inner.CountTokens(ctx, model, messages)
	})
}
