package domain

import (
	"context"
	"errors"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrReadDatabaseRow = errors.New("could not read database row")

	// Remote job lifecycle
	ErrInputNotFound    = errors.New("input file not found")
	ErrSubmissionFailed = errors.New("job submission failed")
	ErrProcessingFailed = errors.New("remote processing failed")
	ErrTransientQuery   = errors.New("transient status query error")
	ErrTimeout          = errors.New("timed out waiting for job")
	ErrMalformedResult  = errors.New("malformed analysis result")
	ErrRemoteGone       = errors.New("remote file no longer available")
	ErrNotFinished      = errors.New("analysis not finished")

	// Agent
	ErrAgentStepLimit = errors.New("agent step limit reached")
	ErrUnknownTool    = errors.New("unknown tool")

	// Worker
	ErrQueueFull = errors.New("worker queue full")
)

// Kind maps an error to a short label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInputNotFound):
		return "input_not_found"
	case errors.Is(err, ErrSubmissionFailed):
		return "submission_failed"
	case errors.Is(err, ErrProcessingFailed):
		return "processing_failed"
	case errors.Is(err, ErrTransientQuery):
		return "transient_query"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrMalformedResult):
		return "malformed_result"
	case errors.Is(err, ErrRemoteGone):
		return "remote_gone"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAgentStepLimit):
		return "agent_step_limit"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failed operation may be attempted again.
// Missing input and terminal remote failures never are.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientQuery)
}
