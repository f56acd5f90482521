package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// JobClaimer processes the oldest queued analysis, if any.
type JobClaimer interface {
	ProcessNext(ctx context.Context) (bool, error)
}

type AnalysisProcessor struct {
	jobs     JobClaimer
	tick     time.Duration
	log      *zerolog.Logger
	inflight atomic.Int32
}

func NewAnalysisProcessor(jobs JobClaimer, tick time.Duration, logger *zerolog.Logger) *AnalysisProcessor {
	if tick <= 0 {
		tick = time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "AnalysisProcessor").Logger()
	return &AnalysisProcessor{jobs: jobs, tick: tick, log: &l}
}

// Start polls the queue until ctx is done. Run it in a goroutine.
func (p *AnalysisProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("tick", p.tick).Msg("analysis processor started")
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("analysis processor stopping")
			return
		case <-ticker.C:
			// one draining task per idle worker
			if int(p.inflight.Load()) >= pool.Size() {
				continue
			}
			p.inflight.Add(1)
			if err := pool.Submit(p.drain); err != nil {
				p.inflight.Add(-1)
				p.log.Warn().Err(err).Msg("submit drain task")
			}
		}
	}
}

// drain processes queued jobs until the queue is empty or ctx ends.
// Pipeline failures are already persisted on the record; only store
// errors end the task early.
func (p *AnalysisProcessor) drain(ctx context.Context) error {
	defer p.inflight.Add(-1)
	for ctx.Err() == nil {
		claimed, err := p.jobs.ProcessNext(ctx)
		if !claimed {
			return err
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			p.log.Debug().Err(err).Msg("analysis finished with error")
		}
	}
	return nil
}
