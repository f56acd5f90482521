package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
)

// ---- Fakes ----

type memJobRepo struct {
	mu    sync.Mutex
	byID  map[string]model.AnalysisJob
	saves []model.AnalysisStatus
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{byID: map[string]model.AnalysisJob{}}
}

func (m *memJobRepo) Save(ctx context.Context, job *model.AnalysisJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[job.ID] = *job
	m.saves = append(m.saves, job.Status)
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &j, nil
}

func (m *memJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *model.AnalysisJob
	for _, j := range m.byID {
		if j.Status != model.AnalysisStatusQueued {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			jj := j
			oldest = &jj
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.MarkProcessing()
	m.byID[oldest.ID] = *oldest
	return oldest, nil
}

func (m *memJobRepo) RequeueStale(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, j := range m.byID {
		if j.Status == model.AnalysisStatusProcessing && j.UpdatedAt.Before(olderThan) {
			j.Status = model.AnalysisStatusQueued
			j.UpdatedAt = time.Now()
			m.byID[id] = j
			n++
		}
	}
	return n, nil
}

func (m *memJobRepo) ListRecent(ctx context.Context, limit int) ([]*model.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.AnalysisJob, 0, len(m.byID))
	for _, j := range m.byID {
		jj := j
		out = append(out, &jj)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRunner struct {
	SubmitFunc func(ctx context.Context, path string) (model.JobHandle, error)
	AwaitFunc  func(ctx context.Context, h model.JobHandle) (model.Artifact, error)
	submits    int
	awaits     int
}

func (f *fakeRunner) Submit(ctx context.Context, path string) (model.JobHandle, error) {
	f.submits++
	if f.SubmitFunc != nil {
		return f.SubmitFunc(ctx, path)
	}
	return model.JobHandle{ID: "files/abc", Locator: "https://files/abc"}, nil
}

func (f *fakeRunner) AwaitCompletion(ctx context.Context, h model.JobHandle) (model.Artifact, error) {
	f.awaits++
	if f.AwaitFunc != nil {
		return f.AwaitFunc(ctx, h)
	}
	return model.Artifact{Handle: h, URI: h.Locator, MIMEType: "video/mp4"}, nil
}

type fakeRemote struct {
	deleted   []string
	statusErr error
	state     model.JobState
}

func (f *fakeRemote) Submit(ctx context.Context, path string) (model.JobHandle, error) {
	return model.JobHandle{}, nil
}
func (f *fakeRemote) Status(ctx context.Context, h model.JobHandle) (model.JobState, error) {
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if f.state != "" {
		return f.state, nil
	}
	return model.JobStateReady, nil
}
func (f *fakeRemote) Fetch(ctx context.Context, h model.JobHandle) (model.Artifact, error) {
	return model.Artifact{Handle: h}, nil
}
func (f *fakeRemote) Delete(ctx context.Context, h model.JobHandle) error {
	f.deleted = append(f.deleted, h.ID)
	return nil
}

type fakeAnalyzer struct {
	TimelineFunc func(ctx context.Context, a model.Artifact) ([]model.Event, error)
	lastQuestion string
	calls        []string
}

func (f *fakeAnalyzer) Describe(ctx context.Context, a model.Artifact) (string, error) {
	f.calls = append(f.calls, "describe")
	return "a technician replaces a disk", nil
}

func (f *fakeAnalyzer) Ask(ctx context.Context, a model.Artifact, question string) (string, error) {
	f.calls = append(f.calls, "ask")
	f.lastQuestion = question
	return "at 00:12", nil
}

func (f *fakeAnalyzer) Timeline(ctx context.Context, a model.Artifact) ([]model.Event, error) {
	f.calls = append(f.calls, "timeline")
	if f.TimelineFunc != nil {
		return f.TimelineFunc(ctx, a)
	}
	return []model.Event{{Start: "00:00", End: "00:05", Description: "rack opened"}}, nil
}

type fakeNotifier struct {
	got []model.AnalysisStatus
}

func (f *fakeNotifier) Notify(ctx context.Context, job *model.AnalysisJob) error {
	f.got = append(f.got, job.Status)
	return nil
}

type fakeImage struct {
	mime  string
	limit int
}

func (f *fakeImage) IdentifyItems(ctx context.Context, mimeType string, data []byte, limit int) ([]string, error) {
	f.mime, f.limit = mimeType, limit
	return []string{"Server", "Cable"}, nil
}

type fakeAI struct {
	lastModel string
	lastMsgs  []adapter.Message
}

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gemini-2.5-flash"}, nil
}
func (f *fakeAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	f.lastModel, f.lastMsgs = model, messages
	return 7, nil
}
func (f *fakeAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	r, _, err := f.ChatWithUsage(ctx, model, messages)
	return r, err
}
func (f *fakeAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	f.lastModel, f.lastMsgs = model, messages
	return "ok", adapter.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}, nil
}
