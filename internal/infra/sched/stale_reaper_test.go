package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"opsvision/internal/domain/model"
)

type fakeJobs struct {
	mu     sync.Mutex
	cutoff []time.Time
	n      int
	err    error
}

func (f *fakeJobs) Save(context.Context, *model.AnalysisJob) error { return nil }
func (f *fakeJobs) FindByID(context.Context, string) (*model.AnalysisJob, error) {
	return nil, nil
}
func (f *fakeJobs) FetchAndMarkProcessing(context.Context) (*model.AnalysisJob, error) {
	return nil, nil
}
func (f *fakeJobs) ListRecent(context.Context, int) ([]*model.AnalysisJob, error) { return nil, nil }

func (f *fakeJobs) RequeueStale(_ context.Context, olderThan time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = append(f.cutoff, olderThan)
	return f.n, f.err
}

func (f *fakeJobs) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoff)
}

func TestSweep_UsesCutoff(t *testing.T) {
	jobs := &fakeJobs{n: 2}
	w := NewStaleReaper(time.Minute, 30*time.Minute, jobs, nil)
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	if got := w.Sweep(context.Background()); got != 2 {
		t.Fatalf("Sweep = %d, want 2", got)
	}
	if want := fixed.Add(-30 * time.Minute); !jobs.cutoff[0].Equal(want) {
		t.Fatalf("cutoff = %v, want %v", jobs.cutoff[0], want)
	}
}

func TestSweep_ErrorIsSwallowed(t *testing.T) {
	w := NewStaleReaper(time.Minute, time.Minute, &fakeJobs{err: errors.New("db down")}, nil)
	if got := w.Sweep(context.Background()); got != 0 {
		t.Fatalf("Sweep = %d, want 0", got)
	}
}

func TestRun_SweepsImmediatelyAndStops(t *testing.T) {
	jobs := &fakeJobs{}
	w := NewStaleReaper(time.Hour, time.Minute, jobs, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for jobs.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("no sweep before the first tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}
