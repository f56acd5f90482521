package poller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
)

// --- fakes ---

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 12, 30, 10, 34, 38, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type statusStep struct {
	state model.JobState
	err   error
}

type fakeService struct {
	SubmitFunc func(ctx context.Context, path string) (model.JobHandle, error)
	steps      []statusStep
	last       statusStep
	statusN    int
	fetchN     int
	submitN    int
	// hangStatus and hangFetch make the call block until its ctx ends.
	hangStatus bool
	hangFetch  bool
}

func (f *fakeService) Submit(ctx context.Context, path string) (model.JobHandle, error) {
	f.submitN++
	if f.SubmitFunc != nil {
		return f.SubmitFunc(ctx, path)
	}
	return model.JobHandle{ID: "files/" + filepath.Base(path), Locator: "https://files.test/" + filepath.Base(path)}, nil
}

// Status replays steps in order, then repeats the last one forever.
func (f *fakeService) Status(ctx context.Context, h model.JobHandle) (model.JobState, error) {
	f.statusN++
	if f.hangStatus {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if len(f.steps) > 0 {
		f.last, f.steps = f.steps[0], f.steps[1:]
	}
	return f.last.state, f.last.err
}

func (f *fakeService) Fetch(ctx context.Context, h model.JobHandle) (model.Artifact, error) {
	f.fetchN++
	if f.hangFetch {
		<-ctx.Done()
		return model.Artifact{}, ctx.Err()
	}
	return model.Artifact{Handle: h, URI: "https://files.test/" + h.ID, MIMEType: "video/mp4"}, nil
}

func (f *fakeService) Delete(ctx context.Context, h model.JobHandle) error { return nil }

func states(ss ...model.JobState) []statusStep {
	out := make([]statusStep, 0, len(ss))
	for _, s := range ss {
		out = append(out, statusStep{state: s})
	}
	return out
}

func newTestPoller(svc *fakeService, policy Policy) (*Poller, *fakeClock) {
	clk := newFakeClock()
	return New(svc, policy, nil, WithClock(clk)), clk
}

var handle = model.JobHandle{ID: "files/clip", Locator: "https://files.test/clip"}

// --- AwaitCompletion ---

func TestAwaitCompletion_ReadyOnFirstPoll(t *testing.T) {
	svc := &fakeService{steps: states(model.JobStateReady)}
	p, clk := newTestPoller(svc, DefaultPolicy())

	art, err := p.AwaitCompletion(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, handle, art.Handle)
	assert.Equal(t, 1, svc.statusN, "exactly one status query")
	assert.Empty(t, clk.sleeps, "no sleeps")
	assert.Equal(t, 1, svc.fetchN)
}

func TestAwaitCompletion_PendingPendingReady(t *testing.T) {
	svc := &fakeService{steps: states(model.JobStatePending, model.JobStatePending, model.JobStateReady)}
	policy := DefaultPolicy()
	p, clk := newTestPoller(svc, policy)

	_, err := p.AwaitCompletion(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, 3, svc.statusN)
	assert.Equal(t, []time.Duration{policy.Interval, policy.Interval}, clk.sleeps)
}

func TestAwaitCompletion_SameArtifactRegardlessOfPollCount(t *testing.T) {
	var got []model.Artifact
	for _, pending := range []int{0, 1, 5, 20} {
		steps := make([]statusStep, 0, pending+1)
		for i := 0; i < pending; i++ {
			steps = append(steps, statusStep{state: model.JobStatePending})
		}
		steps = append(steps, statusStep{state: model.JobStateReady})
		p, _ := newTestPoller(&fakeService{steps: steps}, DefaultPolicy())

		art, err := p.AwaitCompletion(context.Background(), handle)
		require.NoError(t, err)
		got = append(got, art)
	}
	for _, a := range got[1:] {
		assert.Equal(t, got[0], a)
	}
}

func TestAwaitCompletion_FailedIsTerminal(t *testing.T) {
	svc := &fakeService{steps: states(model.JobStatePending, model.JobStateFailed, model.JobStateReady)}
	p, clk := newTestPoller(svc, DefaultPolicy())

	_, err := p.AwaitCompletion(context.Background(), handle)
	require.ErrorIs(t, err, domain.ErrProcessingFailed)
	assert.Equal(t, 2, svc.statusN, "no queries after the failed state")
	assert.Len(t, clk.sleeps, 1)
	assert.Zero(t, svc.fetchN)
}

func TestAwaitCompletion_TimesOutWhenAlwaysPending(t *testing.T) {
	svc := &fakeService{steps: states(model.JobStatePending)}
	p, clk := newTestPoller(svc, Policy{Interval: 2 * time.Second, Timeout: 5 * time.Second})

	_, err := p.AwaitCompletion(context.Background(), handle)
	require.ErrorIs(t, err, domain.ErrTimeout)
	// polls at t=0s, 2s, 4s; the next one would land past the deadline.
	assert.Equal(t, 3, svc.statusN)
	assert.Len(t, clk.sleeps, 2)
}

func TestAwaitCompletion_MaxPolls(t *testing.T) {
	svc := &fakeService{steps: states(model.JobStatePending)}
	p, clk := newTestPoller(svc, Policy{Interval: time.Second, Timeout: time.Hour, MaxPolls: 4})

	_, err := p.AwaitCompletion(context.Background(), handle)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 4, svc.statusN)
	assert.Len(t, clk.sleeps, 3)
}

func TestAwaitCompletion_TransientErrorsAbsorbed(t *testing.T) {
	blip := errors.New("connection reset by peer")
	svc := &fakeService{steps: []statusStep{
		{state: model.JobStatePending},
		{err: blip},
		{err: blip},
		{state: model.JobStatePending},
		{err: blip},
		{state: model.JobStateReady},
	}}
	p, _ := newTestPoller(svc, Policy{Interval: time.Second, Timeout: time.Hour, MaxTransient: 2})

	_, err := p.AwaitCompletion(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, 6, svc.statusN)
}

func TestAwaitCompletion_TransientBudgetExhausted(t *testing.T) {
	svc := &fakeService{steps: []statusStep{{err: errors.New("503 unavailable")}}}
	p, clk := newTestPoller(svc, Policy{Interval: time.Second, Timeout: time.Hour, MaxTransient: 2})

	_, err := p.AwaitCompletion(context.Background(), handle)
	require.ErrorIs(t, err, domain.ErrTransientQuery)
	assert.True(t, domain.Retryable(err))
	assert.Equal(t, 3, svc.statusN, "budget of 2 retries after the first failure")
	assert.Len(t, clk.sleeps, 2)
}

func TestAwaitCompletion_ContextCanceled(t *testing.T) {
	svc := &fakeService{steps: states(model.JobStatePending)}
	p, _ := newTestPoller(svc, DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.AwaitCompletion(ctx, handle)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, svc.statusN)
}

func TestAwaitCompletion_HungStatusQueryTimesOut(t *testing.T) {
	svc := &fakeService{hangStatus: true}
	p, _ := newTestPoller(svc, Policy{Interval: 10 * time.Millisecond, Timeout: 150 * time.Millisecond})

	start := time.Now()
	_, err := p.AwaitCompletion(context.Background(), handle)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, svc.statusN)
}

func TestAwaitCompletion_HungFetchTimesOut(t *testing.T) {
	svc := &fakeService{steps: states(model.JobStateReady), hangFetch: true}
	p, _ := newTestPoller(svc, Policy{Interval: 10 * time.Millisecond, Timeout: 150 * time.Millisecond})

	start := time.Now()
	_, err := p.AwaitCompletion(context.Background(), handle)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAwaitCompletion_CallerCancelWinsOverTimeout(t *testing.T) {
	svc := &fakeService{hangStatus: true}
	p, _ := newTestPoller(svc, Policy{Interval: 10 * time.Millisecond, Timeout: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.AwaitCompletion(ctx, handle)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrTimeout)
}

func TestAwaitCompletion_UnknownStateTreatedAsPending(t *testing.T) {
	svc := &fakeService{steps: states(model.JobState("STATE_UNSPECIFIED"), model.JobStateReady)}
	p, _ := newTestPoller(svc, DefaultPolicy())

	_, err := p.AwaitCompletion(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, 2, svc.statusN)
}

// --- Submit ---

func TestSubmit_MissingInput(t *testing.T) {
	svc := &fakeService{}
	p, _ := newTestPoller(svc, DefaultPolicy())

	_, err := p.Submit(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	require.ErrorIs(t, err, domain.ErrInputNotFound)
	assert.Zero(t, svc.submitN, "no remote call for missing input")
	assert.False(t, domain.Retryable(err))
}

func TestSubmit_Directory(t *testing.T) {
	svc := &fakeService{}
	p, _ := newTestPoller(svc, DefaultPolicy())

	_, err := p.Submit(context.Background(), t.TempDir())
	require.ErrorIs(t, err, domain.ErrInputNotFound)
	assert.Zero(t, svc.submitN)
}

func TestSubmit_RemoteRejects(t *testing.T) {
	path := writeTempFile(t, "clip.mp4")
	svc := &fakeService{SubmitFunc: func(ctx context.Context, path string) (model.JobHandle, error) {
		return model.JobHandle{}, errors.New("400 unsupported mime type")
	}}
	p, _ := newTestPoller(svc, DefaultPolicy())

	_, err := p.Submit(context.Background(), path)
	require.ErrorIs(t, err, domain.ErrSubmissionFailed)
}

func TestRun_SubmitsThenAwaits(t *testing.T) {
	path := writeTempFile(t, "clip.mp4")
	svc := &fakeService{steps: states(model.JobStatePending, model.JobStateReady)}
	p, _ := newTestPoller(svc, DefaultPolicy())

	art, err := p.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "files/clip.mp4", art.Handle.ID)
	assert.Equal(t, 1, svc.submitN)
	assert.Equal(t, 2, svc.statusN)
}

func TestPolicyNormalize(t *testing.T) {
	p := Policy{MaxPolls: -1, MaxTransient: -5}.normalize()
	def := DefaultPolicy()
	assert.Equal(t, def.Interval, p.Interval)
	assert.Equal(t, def.Timeout, p.Timeout)
	assert.Zero(t, p.MaxPolls)
	assert.Zero(t, p.MaxTransient)
}

func writeTempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("\x00\x00\x00\x18ftypmp42"), 0o600))
	return path
}
