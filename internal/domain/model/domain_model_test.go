//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"opsvision/internal/domain"
)

// --- AnalysisJob Tests ---

func TestNewAnalysisJob(t *testing.T) {
	t.Run("should create a queued job", func(t *testing.T) {
		start := time.Now()
		job, err := NewAnalysisJob(" data/clip.mp4 ", AnalysisModeTimeline, "")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if job.ID == "" {
			t.Error("expected job ID to be non-empty")
		}
		if job.Status != AnalysisStatusQueued {
			t.Errorf("expected status queued, got %s", job.Status)
		}
		if job.InputPath != "data/clip.mp4" {
			t.Errorf("expected trimmed input path, got %q", job.InputPath)
		}
		if job.CreatedAt.Before(start) {
			t.Error("CreatedAt should not precede construction")
		}
	})

	t.Run("should fail on empty path", func(t *testing.T) {
		_, err := NewAnalysisJob("  ", AnalysisModeDescribe, "")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should reject an unknown mode", func(t *testing.T) {
		_, err := NewAnalysisJob("clip.mp4", AnalysisMode("summarize"), "")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("empty mode defaults to describe", func(t *testing.T) {
		job, err := NewAnalysisJob("clip.mp4", "", "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if job.Mode != AnalysisModeDescribe {
			t.Errorf("expected describe, got %q", job.Mode)
		}
	})

	t.Run("question mode requires a question", func(t *testing.T) {
		_, err := NewAnalysisJob("clip.mp4", AnalysisModeQuestion, " ")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestAnalysisJobTransitions(t *testing.T) {
	job, _ := NewAnalysisJob("clip.mp4", AnalysisModeDescribe, "")

	job.MarkSubmitted(JobHandle{ID: "files/abc", Locator: "https://example.test/files/abc"})
	if job.Status != AnalysisStatusProcessing || job.RemoteID != "files/abc" {
		t.Fatalf("unexpected state after submit: %+v", job)
	}
	if job.Handle().ID != "files/abc" {
		t.Errorf("Handle() should return the remote id")
	}

	job.MarkRequeued()
	if job.Status != AnalysisStatusQueued || job.RemoteID != "files/abc" {
		t.Fatalf("requeue should keep the handle, got %+v", job)
	}

	job.MarkFailed(domain.ErrProcessingFailed)
	if job.Status != AnalysisStatusFailed || job.LastError == "" {
		t.Fatalf("expected failed with error text, got %+v", job)
	}
	if !job.Status.Finished() {
		t.Error("failed should be a finished status")
	}

	job.MarkCompleted(&AnalysisResult{Text: "a desk"})
	if job.Status != AnalysisStatusCompleted || job.LastError != "" {
		t.Fatalf("expected completed with cleared error, got %+v", job)
	}
}

func TestParseAnalysisMode(t *testing.T) {
	for in, want := range map[string]AnalysisMode{
		"":         AnalysisModeDescribe,
		"Describe": AnalysisModeDescribe,
		"TIMELINE": AnalysisModeTimeline,
		"question": AnalysisModeQuestion,
	} {
		got, err := ParseAnalysisMode(in)
		if err != nil || got != want {
			t.Errorf("ParseAnalysisMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseAnalysisMode("summarize"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown mode, got %v", err)
	}
}

// --- Timeline Tests ---

func TestParseTimeline(t *testing.T) {
	t.Run("valid timeline", func(t *testing.T) {
		raw := []byte(`[
			{"start":"00:00","end":"00:04","description":"person sits down","objects_visible":["chair"]},
			{"start":"00:04","end":"00:10","description":"types on keyboard"}
		]`)
		events, err := ParseTimeline(raw)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].ObjectsVisible[0] != "chair" {
			t.Errorf("objects_visible not decoded: %+v", events[0])
		}
	})

	t.Run("empty list is structurally valid", func(t *testing.T) {
		events, err := ParseTimeline([]byte(`[]`))
		if err != nil || len(events) != 0 {
			t.Fatalf("expected empty timeline, got %v, %v", events, err)
		}
	})

	t.Run("missing description", func(t *testing.T) {
		_, err := ParseTimeline([]byte(`[{"start":"00:00","end":"00:01","description":"  "}]`))
		if !errors.Is(err, domain.ErrMalformedResult) {
			t.Fatalf("expected ErrMalformedResult, got %v", err)
		}
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseTimeline([]byte(`The video shows a desk.`))
		if !errors.Is(err, domain.ErrMalformedResult) {
			t.Fatalf("expected ErrMalformedResult, got %v", err)
		}
	})
}

func TestJobStateTerminal(t *testing.T) {
	if JobStatePending.Terminal() {
		t.Error("pending must not be terminal")
	}
	if !JobStateReady.Terminal() || !JobStateFailed.Terminal() {
		t.Error("ready and failed must be terminal")
	}
}
