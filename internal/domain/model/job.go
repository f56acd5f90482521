package model

// JobState is the remote processing state of a submitted job.
type JobState string

const (
	JobStatePending JobState = "pending"
	JobStateReady   JobState = "ready"
	JobStateFailed  JobState = "failed"
)

// Terminal reports whether no further transition can occur from s.
func (s JobState) Terminal() bool {
	return s == JobStateReady || s == JobStateFailed
}

// JobHandle identifies one unit of remote work. ID is what the remote
// service understands; Locator is only for humans and logs.
type JobHandle struct {
	ID      string `json:"id"`
	Locator string `json:"locator,omitempty"`
}

// Artifact is the ready output of a job, reachable through its handle.
type Artifact struct {
	Handle   JobHandle `json:"handle"`
	URI      string    `json:"uri"`
	MIMEType string    `json:"mime_type"`
}
