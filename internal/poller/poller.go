// Package poller drives the submit-then-poll protocol for long-running
// remote media jobs.
package poller

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/infra/logging"
	"opsvision/internal/infra/metrics"
)

type Poller struct {
	svc    adapter.JobService
	policy Policy
	clock  Clock
	log    *zerolog.Logger
}

type Option func(*Poller)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

func New(svc adapter.JobService, policy Policy, logger *zerolog.Logger, opts ...Option) *Poller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "Poller").Logger()
	p := &Poller{
		svc:    svc,
		policy: policy.normalize(),
		clock:  realClock{},
		log:    &l,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Poller) Policy() Policy { return p.policy }

// Submit checks the local input and hands it to the remote service.
func (p *Poller) Submit(ctx context.Context, path string) (model.JobHandle, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return model.JobHandle{}, fmt.Errorf("%w: %s: %v", domain.ErrInputNotFound, path, err)
	}
	if fi.IsDir() {
		return model.JobHandle{}, fmt.Errorf("%w: %s is a directory", domain.ErrInputNotFound, path)
	}

	defer logging.TraceDuration(p.log, "Poller.Submit")()
	h, err := p.svc.Submit(ctx, path)
	if err != nil {
		metrics.IncJobSubmission(false)
		return model.JobHandle{}, fmt.Errorf("%w: %v", domain.ErrSubmissionFailed, err)
	}
	metrics.IncJobSubmission(true)
	p.log.Info().Str("handle", h.ID).Str("locator", h.Locator).Int64("size_bytes", fi.Size()).Msg("job submitted")
	return h, nil
}

// Poll performs exactly one status query.
func (p *Poller) Poll(ctx context.Context, h model.JobHandle) (model.JobState, error) {
	st, err := p.svc.Status(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		metrics.IncPoll("error")
		return "", fmt.Errorf("%w: %v", domain.ErrTransientQuery, err)
	}
	switch st {
	case model.JobStatePending, model.JobStateReady, model.JobStateFailed:
	default:
		// Unknown states are treated as still in flight.
		st = model.JobStatePending
	}
	metrics.IncPoll(string(st))
	return st, nil
}

// AwaitCompletion polls h until it is ready or failed and returns the artifact.
// The first query happens immediately; each later one follows a sleep of
// Policy.Interval. The loop ends with ErrTimeout once Policy.Timeout elapses
// or Policy.MaxPolls queries were made, and with ErrTransientQuery after
// more than Policy.MaxTransient consecutive failed queries. Status and fetch
// calls run under the same deadline, so a hung remote call ends in
// ErrTimeout as well.
func (p *Poller) AwaitCompletion(ctx context.Context, h model.JobHandle) (model.Artifact, error) {
	log := p.log.With().Str("handle", h.ID).Logger()
	start := p.clock.Now()
	deadline := start.Add(p.policy.Timeout)

	qctx, cancel := context.WithTimeout(ctx, p.policy.Timeout)
	defer cancel()
	timeout := func(detail string) error {
		metrics.ObserveAwait("timeout", p.clock.Now().Sub(start))
		return fmt.Errorf("%w: %s %s", domain.ErrTimeout, h.ID, detail)
	}
	// expired is true when qctx ran out while the caller's ctx is still live.
	expired := func(err error) bool {
		return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
	}

	polls, transient := 0, 0
	for {
		if err := qctx.Err(); err != nil {
			if expired(err) {
				return model.Artifact{}, timeout("after " + p.policy.Timeout.String())
			}
			return model.Artifact{}, err
		}

		st, err := p.Poll(qctx, h)
		polls++
		switch {
		case err != nil && errors.Is(err, domain.ErrTransientQuery):
			transient++
			log.Warn().Err(err).Int("attempt", transient).Msg("status query failed")
			if transient > p.policy.MaxTransient {
				metrics.ObserveAwait("transient_query", p.clock.Now().Sub(start))
				return model.Artifact{}, err
			}
		case expired(err):
			return model.Artifact{}, timeout("during status query after " + p.policy.Timeout.String())
		case err != nil:
			return model.Artifact{}, err
		case st == model.JobStateReady:
			art, err := p.svc.Fetch(qctx, h)
			if err != nil {
				if expired(err) {
					return model.Artifact{}, timeout("during fetch after " + p.policy.Timeout.String())
				}
				metrics.ObserveAwait("fetch_error", p.clock.Now().Sub(start))
				return model.Artifact{}, fmt.Errorf("fetch artifact %s: %w", h.ID, err)
			}
			metrics.ObserveAwait("ready", p.clock.Now().Sub(start))
			log.Info().Int("polls", polls).Msg("job ready")
			return art, nil
		case st == model.JobStateFailed:
			metrics.ObserveAwait("failed", p.clock.Now().Sub(start))
			log.Warn().Int("polls", polls).Msg("job failed remotely")
			return model.Artifact{}, fmt.Errorf("%w: %s", domain.ErrProcessingFailed, h.ID)
		default:
			transient = 0
			log.Debug().Int("polls", polls).Msg("job pending")
		}

		if p.policy.MaxPolls > 0 && polls >= p.policy.MaxPolls {
			return model.Artifact{}, timeout(fmt.Sprintf("after %d polls", polls))
		}
		if !p.clock.Now().Add(p.policy.Interval).Before(deadline) {
			return model.Artifact{}, timeout("after " + p.policy.Timeout.String())
		}
		if err := p.clock.Sleep(qctx, p.policy.Interval); err != nil {
			if expired(err) {
				return model.Artifact{}, timeout("after " + p.policy.Timeout.String())
			}
			return model.Artifact{}, err
		}
	}
}

// Run submits path and awaits its completion.
func (p *Poller) Run(ctx context.Context, path string) (model.Artifact, error) {
	h, err := p.Submit(ctx, path)
	if err != nil {
		return model.Artifact{}, err
	}
	return p.AwaitCompletion(ctx, h)
}
