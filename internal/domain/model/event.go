package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"opsvision/internal/domain"
)

// Event is one timestamped entry of a video timeline.
type Event struct {
	Start          string   `json:"start"`
	End            string   `json:"end"`
	Description    string   `json:"description"`
	ObjectsVisible []string `json:"objects_visible,omitempty"`
}

// ParseTimeline decodes a JSON list of events and validates its shape.
func ParseTimeline(raw []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResult, err)
	}
	if err := ValidateTimeline(events); err != nil {
		return nil, err
	}
	return events, nil
}

// ValidateTimeline checks that every event has start, end and description.
// It does not judge whether the timestamps make sense.
func ValidateTimeline(events []Event) error {
	for i, e := range events {
		switch {
		case strings.TrimSpace(e.Start) == "":
			return fmt.Errorf("%w: event %d has empty start", domain.ErrMalformedResult, i)
		case strings.TrimSpace(e.End) == "":
			return fmt.Errorf("%w: event %d has empty end", domain.ErrMalformedResult, i)
		case strings.TrimSpace(e.Description) == "":
			return fmt.Errorf("%w: event %d has empty description", domain.ErrMalformedResult, i)
		}
	}
	return nil
}
