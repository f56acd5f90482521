package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/repository"
	"opsvision/internal/infra/metrics"
)

var _ repository.AnalysisJobRepository = (*jobRepoCacheDecorator)(nil)

type jobRepoCacheDecorator struct {
	inner repository.AnalysisJobRepository
	cache RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

// NewJobRepoCacheDecorator caches FindByID for finished records only;
// records still moving through the pipeline always go to the store.
func NewJobRepoCacheDecorator(inner repository.AnalysisJobRepository, cache RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.AnalysisJobRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &jobRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func jobKey(id string) string { return fmt.Sprintf("analysis_job:%s", id) }

func (d *jobRepoCacheDecorator) FindByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	key := jobKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		c := cachedJobJSON{AnalysisJob: &model.AnalysisJob{}}
		if json.Unmarshal([]byte(val), &c) == nil {
			metrics.IncCacheRequest("analysis_job", "hit")
			c.AnalysisJob.InputPath = c.InputPath
			return c.AnalysisJob, nil
		}
	} else if !errors.Is(err, Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("cache get")
	}

	metrics.IncCacheRequest("analysis_job", "miss")
	job, err := d.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job != nil && job.Status.Finished() {
		if b, merr := json.Marshal(cachedJob(job)); merr == nil {
			if serr := d.cache.Set(ctx, key, b, d.ttl); serr != nil {
				d.log.Warn().Err(serr).Str("key", key).Msg("cache set")
			}
		}
	}
	return job, nil
}

func (d *jobRepoCacheDecorator) Save(ctx context.Context, job *model.AnalysisJob) error {
	if err := d.inner.Save(ctx, job); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, jobKey(job.ID)); err != nil {
		d.log.Warn().Err(err).Str("job_id", job.ID).Msg("cache invalidate")
	}
	return nil
}

func (d *jobRepoCacheDecorator) FetchAndMarkProcessing(ctx context.Context) (*model.AnalysisJob, error) {
	return d.inner.FetchAndMarkProcessing(ctx)
}

// RequeueStale only touches unfinished jobs, which are never cached.
func (d *jobRepoCacheDecorator) RequeueStale(ctx context.Context, olderThan time.Time) (int, error) {
	return d.inner.RequeueStale(ctx, olderThan)
}

func (d *jobRepoCacheDecorator) ListRecent(ctx context.Context, limit int) ([]*model.AnalysisJob, error) {
	return d.inner.ListRecent(ctx, limit)
}

// The model hides InputPath from JSON, so the cache carries it explicitly.
type cachedJobJSON struct {
	*model.AnalysisJob
	InputPath string `json:"input_path"`
}

func cachedJob(j *model.AnalysisJob) cachedJobJSON {
	return cachedJobJSON{AnalysisJob: j, InputPath: j.InputPath}
}
