package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"opsvision/internal/domain/ports/repository"
	"opsvision/internal/infra/metrics"
)

// StaleReaper periodically returns analyses stuck in 'processing' to the
// queue, e.g. after a worker crashed mid-poll. A requeued record keeps its
// remote handle, so the next claim resumes polling instead of re-uploading.
type StaleReaper struct {
	interval time.Duration
	after    time.Duration
	jobs     repository.AnalysisJobRepository
	now      func() time.Time
	log      *zerolog.Logger
}

func NewStaleReaper(interval, after time.Duration, jobs repository.AnalysisJobRepository, logger *zerolog.Logger) *StaleReaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "StaleReaper").Logger()
	return &StaleReaper{interval: interval, after: after, jobs: jobs, now: time.Now, log: &l}
}

// Run sweeps once immediately, then every interval until ctx is done.
func (w *StaleReaper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("after", w.after).Msg("Starting stale reaper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Sweep(ctx)
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stale reaper")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep requeues once and returns the number of records moved.
func (w *StaleReaper) Sweep(ctx context.Context) int {
	n, err := w.jobs.RequeueStale(ctx, w.now().Add(-w.after))
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("stale reaper error")
		}
		return 0
	}
	if n > 0 {
		metrics.IncStaleRequeued(n)
		w.log.Warn().Int("count", n).Msg("stale analyses requeued")
	}
	return n
}
