package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{fmt.Errorf("stat clip.mp4: %w", ErrInputNotFound), "input_not_found"},
		{fmt.Errorf("upload: %w", ErrSubmissionFailed), "submission_failed"},
		{ErrProcessingFailed, "processing_failed"},
		{fmt.Errorf("%w: connection reset", ErrTransientQuery), "transient_query"},
		{ErrTimeout, "timeout"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "unknown"},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Errorf("Kind(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("%w: eof", ErrTransientQuery)) {
		t.Error("transient query errors should be retryable")
	}
	for _, err := range []error{ErrInputNotFound, ErrProcessingFailed, ErrTimeout} {
		if Retryable(err) {
			t.Errorf("%v should not be retryable", err)
		}
	}
}
