package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsvision/internal/domain"
)

type AnalysisStatus string

const (
	AnalysisStatusQueued     AnalysisStatus = "queued"
	AnalysisStatusProcessing AnalysisStatus = "processing"
	AnalysisStatusCompleted  AnalysisStatus = "completed"
	AnalysisStatusFailed     AnalysisStatus = "failed"
)

// Finished reports whether the record reached a final status.
func (s AnalysisStatus) Finished() bool {
	return s == AnalysisStatusCompleted || s == AnalysisStatusFailed
}

type AnalysisMode string

const (
	AnalysisModeDescribe AnalysisMode = "describe"
	AnalysisModeTimeline AnalysisMode = "timeline"
	AnalysisModeQuestion AnalysisMode = "question"
)

// ParseAnalysisMode accepts the mode names case-insensitively; empty means describe.
func ParseAnalysisMode(s string) (AnalysisMode, error) {
	switch AnalysisMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", AnalysisModeDescribe:
		return AnalysisModeDescribe, nil
	case AnalysisModeTimeline:
		return AnalysisModeTimeline, nil
	case AnalysisModeQuestion:
		return AnalysisModeQuestion, nil
	}
	return "", domain.ErrInvalidArgument
}

// AnalysisResult holds free text or a timeline, depending on the mode.
type AnalysisResult struct {
	Text   string  `json:"text,omitempty"`
	Events []Event `json:"events,omitempty"`
}

// AnalysisJob is the local record of one requested video analysis.
type AnalysisJob struct {
	ID        string          `json:"id"`
	Status    AnalysisStatus  `json:"status"`
	InputPath string          `json:"-"`
	Mode      AnalysisMode    `json:"mode"`
	Question  string          `json:"question,omitempty"`
	RemoteID  string          `json:"remote_id,omitempty"`
	Locator   string          `json:"locator,omitempty"`
	Result    *AnalysisResult `json:"result,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MarkProcessing is set when a worker claims the record.
func (j *AnalysisJob) MarkProcessing() {
	j.Status = AnalysisStatusProcessing
	j.UpdatedAt = time.Now()
}

// NewAnalysisJob validates the request and returns a queued record.
func NewAnalysisJob(inputPath string, mode AnalysisMode, question string) (*AnalysisJob, error) {
	inputPath = strings.TrimSpace(inputPath)
	question = strings.TrimSpace(question)
	if inputPath == "" {
		return nil, domain.ErrInvalidArgument
	}
	parsed, err := ParseAnalysisMode(string(mode))
	if err != nil {
		return nil, fmt.Errorf("%w: mode %q", domain.ErrInvalidArgument, mode)
	}
	mode = parsed
	if mode == AnalysisModeQuestion && question == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &AnalysisJob{
		ID:        uuid.NewString(),
		Status:    AnalysisStatusQueued,
		InputPath: inputPath,
		Mode:      mode,
		Question:  question,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Handle returns the remote handle once the job has been submitted.
func (j *AnalysisJob) Handle() JobHandle {
	return JobHandle{ID: j.RemoteID, Locator: j.Locator}
}

// MarkSubmitted records the remote handle; the record stays in processing.
func (j *AnalysisJob) MarkSubmitted(h JobHandle) {
	j.Status = AnalysisStatusProcessing
	j.RemoteID = h.ID
	j.Locator = h.Locator
	j.UpdatedAt = time.Now()
}

func (j *AnalysisJob) MarkCompleted(res *AnalysisResult) {
	j.Status = AnalysisStatusCompleted
	j.Result = res
	j.LastError = ""
	j.UpdatedAt = time.Now()
}

// MarkRequeued hands an interrupted record back to the queue. The remote
// handle is kept so the next claim resumes polling instead of re-uploading.
func (j *AnalysisJob) MarkRequeued() {
	j.Status = AnalysisStatusQueued
	j.UpdatedAt = time.Now()
}

func (j *AnalysisJob) MarkFailed(err error) {
	j.Status = AnalysisStatusFailed
	if err != nil {
		j.LastError = err.Error()
	}
	j.UpdatedAt = time.Now()
}
