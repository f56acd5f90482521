package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
)

func TestJobRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()

	t.Run("finished jobs are cached after the first miss", func(t *testing.T) {
		cache := newMockRedis()
		inner := &mockJobRepo{jobs: map[string]*model.AnalysisJob{}}
		repo := NewJobRepoCacheDecorator(inner, cache, time.Minute, nil)

		job, err := model.NewAnalysisJob("/data/v.mp4", model.AnalysisModeDescribe, "")
		require.NoError(t, err)
		job.MarkCompleted(&model.AnalysisResult{Text: "ok"})
		require.NoError(t, repo.Save(ctx, job))

		first, err := repo.FindByID(ctx, job.ID)
		require.NoError(t, err)
		second, err := repo.FindByID(ctx, job.ID)
		require.NoError(t, err)

		assert.Equal(t, 1, inner.findCalls)
		assert.Equal(t, first.Result.Text, second.Result.Text)
		assert.Equal(t, "/data/v.mp4", second.InputPath)
		assert.Equal(t, time.Minute, cache.expires[jobKey(job.ID)])
	})

	t.Run("in-flight jobs are not cached", func(t *testing.T) {
		cache := newMockRedis()
		inner := &mockJobRepo{jobs: map[string]*model.AnalysisJob{}}
		repo := NewJobRepoCacheDecorator(inner, cache, time.Minute, nil)

		job, _ := model.NewAnalysisJob("v.mp4", model.AnalysisModeDescribe, "")
		require.NoError(t, repo.Save(ctx, job))
		_, _ = repo.FindByID(ctx, job.ID)
		_, _ = repo.FindByID(ctx, job.ID)
		assert.Equal(t, 2, inner.findCalls)
	})

	t.Run("save invalidates", func(t *testing.T) {
		cache := newMockRedis()
		inner := &mockJobRepo{jobs: map[string]*model.AnalysisJob{}}
		repo := NewJobRepoCacheDecorator(inner, cache, 0, nil)

		job, _ := model.NewAnalysisJob("v.mp4", model.AnalysisModeDescribe, "")
		require.NoError(t, repo.Save(ctx, job))
		assert.Equal(t, []string{jobKey(job.ID)}, cache.deleted)
	})

	t.Run("cache errors fall through to the store", func(t *testing.T) {
		cache := newMockRedis()
		cache.GetFunc = func(ctx context.Context, key string) (string, error) {
			return "", errors.New("connection refused")
		}
		inner := &mockJobRepo{jobs: map[string]*model.AnalysisJob{}}
		repo := NewJobRepoCacheDecorator(inner, cache, time.Minute, nil)

		_, err := repo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, 1, inner.findCalls)
	})
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	cache := newMockRedis()
	rl := NewRateLimiter(cache)
	key := SubjectRouteKey("alice", "analyses")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, cache.expires[key])
	assert.Equal(t, "rate_limit:alice:analyses", key)
}
