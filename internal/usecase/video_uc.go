// File: internal/usecase/video_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/domain/ports/repository"
	"opsvision/internal/infra/logging"
	"opsvision/internal/infra/metrics"
)

// Compile-time check
var _ VideoUseCase = (*videoUC)(nil)

// AnalysisRequest is what a caller asks for: a local video plus a mode.
type AnalysisRequest struct {
	Path     string
	Mode     model.AnalysisMode
	Question string
}

type VideoUseCase interface {
	// Analyze runs the whole pipeline synchronously and returns the final record.
	Analyze(ctx context.Context, req AnalysisRequest) (*model.AnalysisJob, error)
	// Enqueue stores a queued record for background processing.
	Enqueue(ctx context.Context, req AnalysisRequest) (*model.AnalysisJob, error)
	// ProcessNext claims the oldest queued record and processes it.
	// It returns false when nothing was queued.
	ProcessNext(ctx context.Context) (bool, error)
	Process(ctx context.Context, job *model.AnalysisJob) error
	Get(ctx context.Context, id string) (*model.AnalysisJob, error)
	List(ctx context.Context, limit int) ([]*model.AnalysisJob, error)
	// FollowUp answers a new question about a completed analysis using the
	// remote file it already uploaded.
	FollowUp(ctx context.Context, id, question string) (string, error)
}

// JobRunner submits a file and waits for the remote job to settle.
type JobRunner interface {
	Submit(ctx context.Context, path string) (model.JobHandle, error)
	AwaitCompletion(ctx context.Context, h model.JobHandle) (model.Artifact, error)
}

type VideoOptions struct {
	// DeleteAfterUse removes the remote file once the analysis is stored.
	DeleteAfterUse bool
	// UploadDir holds inputs staged by the HTTP API. Inputs inside it are
	// removed once their record is final; inputs elsewhere are never touched.
	UploadDir string
}

type videoUC struct {
	runner   JobRunner
	remote   adapter.JobService
	analyzer adapter.VideoAnalyzer
	jobs     repository.AnalysisJobRepository
	notifier adapter.Notifier
	opts     VideoOptions
	log      *zerolog.Logger
}

func NewVideoUseCase(
	runner JobRunner,
	remote adapter.JobService,
	analyzer adapter.VideoAnalyzer,
	jobs repository.AnalysisJobRepository,
	notifier adapter.Notifier,
	opts VideoOptions,
	logger *zerolog.Logger,
) *videoUC {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "VideoUseCase").Logger()
	return &videoUC{
		runner:   runner,
		remote:   remote,
		analyzer: analyzer,
		jobs:     jobs,
		notifier: notifier,
		opts:     opts,
		log:      &l,
	}
}

func (u *videoUC) Enqueue(ctx context.Context, req AnalysisRequest) (*model.AnalysisJob, error) {
	job, err := model.NewAnalysisJob(req.Path, req.Mode, req.Question)
	if err != nil {
		return nil, err
	}
	if err := u.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", job.ID).Str("mode", string(job.Mode)).Msg("analysis queued")
	return job, nil
}

func (u *videoUC) Analyze(ctx context.Context, req AnalysisRequest) (*model.AnalysisJob, error) {
	job, err := u.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	job.MarkProcessing()
	if err := u.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	return job, u.Process(ctx, job)
}

func (u *videoUC) ProcessNext(ctx context.Context) (bool, error) {
	job, err := u.jobs.FetchAndMarkProcessing(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, u.Process(ctx, job)
}

// Process drives a claimed record to completed or failed and persists every
// transition. The returned error is the pipeline failure, if any. When ctx
// ends mid-run the record goes back to queued with its remote handle, so a
// restart resumes it.
func (u *videoUC) Process(ctx context.Context, job *model.AnalysisJob) error {
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, u.log)
	start := time.Now()

	res, err := u.run(ctx, job)
	switch {
	case err != nil && interrupted(ctx, err):
		job.MarkRequeued()
		log.Warn().Err(err).Str("remote_id", job.RemoteID).Msg("analysis interrupted, requeued")
	case err != nil:
		job.MarkFailed(err)
		log.Error().Err(err).Str("kind", domain.Kind(err)).Msg("analysis failed")
	default:
		job.MarkCompleted(res)
		log.Info().Dur("took", time.Since(start)).Msg("analysis completed")
	}
	metrics.IncAnalysisJob(string(job.Status), string(job.Mode), domain.Kind(err))

	// Persist with a fresh context so a canceled caller still leaves a record.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if serr := u.jobs.Save(saveCtx, job); serr != nil {
		log.Error().Err(serr).Msg("persist analysis result")
		if err == nil {
			err = serr
		}
		return err
	}
	if !job.Status.Finished() {
		return err
	}

	u.dropUpload(job, log)
	if u.notifier != nil {
		if nerr := u.notifier.Notify(saveCtx, job); nerr != nil {
			log.Warn().Err(nerr).Msg("notify")
		}
	}
	return err
}

// interrupted reports whether err is the caller's own cancellation rather
// than a pipeline failure.
func interrupted(ctx context.Context, err error) bool {
	cerr := ctx.Err()
	return cerr != nil && errors.Is(err, cerr)
}

func (u *videoUC) dropUpload(job *model.AnalysisJob, log *zerolog.Logger) {
	if !inDir(u.opts.UploadDir, job.InputPath) {
		return
	}
	if err := os.Remove(job.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", job.InputPath).Msg("remove upload")
	}
}

// inDir reports whether path lies strictly inside dir.
func inDir(dir, path string) bool {
	if dir == "" || path == "" {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (u *videoUC) run(ctx context.Context, job *model.AnalysisJob) (*model.AnalysisResult, error) {
	if job.Status != model.AnalysisStatusProcessing {
		job.MarkProcessing()
	}

	h := job.Handle()
	if h.ID == "" {
		var err error
		h, err = u.runner.Submit(ctx, job.InputPath)
		if err != nil {
			return nil, err
		}
		job.MarkSubmitted(h)
		if err := u.jobs.Save(ctx, job); err != nil {
			return nil, err
		}
	}

	artifact, err := u.runner.AwaitCompletion(ctx, h)
	if err != nil {
		return nil, err
	}

	res, err := u.analyze(ctx, job, artifact)
	if err != nil {
		return nil, err
	}

	if u.opts.DeleteAfterUse && u.remote != nil {
		if derr := u.remote.Delete(ctx, h); derr != nil {
			logging.With(ctx, u.log).Warn().Err(derr).Msg("delete remote file")
		}
	}
	return res, nil
}

func (u *videoUC) analyze(ctx context.Context, job *model.AnalysisJob, a model.Artifact) (*model.AnalysisResult, error) {
	switch job.Mode {
	case model.AnalysisModeTimeline:
		events, err := u.analyzer.Timeline(ctx, a)
		if err != nil {
			return nil, err
		}
		return &model.AnalysisResult{Events: events}, nil
	case model.AnalysisModeQuestion:
		text, err := u.analyzer.Ask(ctx, a, job.Question)
		if err != nil {
			return nil, err
		}
		return &model.AnalysisResult{Text: text}, nil
	case model.AnalysisModeDescribe, "":
		text, err := u.analyzer.Describe(ctx, a)
		if err != nil {
			return nil, err
		}
		return &model.AnalysisResult{Text: text}, nil
	}
	return nil, fmt.Errorf("%w: mode %q", domain.ErrInvalidArgument, job.Mode)
}

func (u *videoUC) Get(ctx context.Context, id string) (*model.AnalysisJob, error) {
	return u.jobs.FindByID(ctx, id)
}

func (u *videoUC) List(ctx context.Context, limit int) ([]*model.AnalysisJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return u.jobs.ListRecent(ctx, limit)
}

func (u *videoUC) FollowUp(ctx context.Context, id, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: empty question", domain.ErrInvalidArgument)
	}
	job, err := u.jobs.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != model.AnalysisStatusCompleted {
		return "", fmt.Errorf("%w: %s is %s", domain.ErrNotFinished, id, job.Status)
	}
	h := job.Handle()
	if h.ID == "" || u.remote == nil {
		return "", fmt.Errorf("%w: %s has no remote file", domain.ErrRemoteGone, id)
	}

	// A deleted or expired file fails the status read; a live one is
	// already ready, so the await returns after one query.
	st, err := u.remote.Status(ctx, h)
	if err != nil || st == model.JobStateFailed {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrRemoteGone, h.ID, err)
	}
	artifact, err := u.runner.AwaitCompletion(ctx, h)
	if err != nil {
		return "", err
	}
	answer, err := u.analyzer.Ask(ctx, artifact, question)
	if err != nil {
		return "", err
	}
	logging.With(logging.WithJobID(ctx, id), u.log).Info().Str("remote_id", h.ID).Msg("follow-up answered")
	return answer, nil
}
