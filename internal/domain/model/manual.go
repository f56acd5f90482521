package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"opsvision/internal/domain"
)

// ManualChunk is one embedded passage of an equipment manual. Source is the
// file the passage came from; Seq orders passages within it.
type ManualChunk struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Seq       int               `json:"seq"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewManualChunk(source string, seq int, text string, meta map[string]string) (*ManualChunk, error) {
	source = strings.TrimSpace(source)
	text = strings.TrimSpace(text)
	if source == "" || text == "" || seq < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &ManualChunk{
		ID:        uuid.NewString(),
		Source:    source,
		Seq:       seq,
		Text:      text,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}, nil
}

// Matches reports whether every filter key is present with the same value.
// An empty filter matches everything.
func (c *ManualChunk) Matches(filter map[string]string) bool {
	for k, v := range filter {
		if c.Metadata[k] != v {
			return false
		}
	}
	return true
}

// ManualHit is a chunk ranked against a query by cosine similarity.
type ManualHit struct {
	Chunk ManualChunk `json:"chunk"`
	Score float64     `json:"score"`
}

// ItemRecall pairs an item seen in an image with the best manual passage,
// if any passage scored above the threshold.
type ItemRecall struct {
	Item string     `json:"item"`
	Hit  *ManualHit `json:"hit,omitempty"`
}
