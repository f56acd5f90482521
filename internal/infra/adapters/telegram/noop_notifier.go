package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier logs instead of sending; used when no bot is configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) Notify(ctx context.Context, job *model.AnalysisJob) error {
	if job == nil {
		return nil
	}
	n.log.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("notify (noop)")
	return nil
}
