// Package job holds the generation job model and the in-process job store,
// the single source of truth for pipeline progress.
package job

import (
	"time"

	"github.com/google/uuid"
)

// State is a pipeline lifecycle state. Transitions only move forward along
// created → image_pending → image_ready → video_pending → video_ready,
// with failed reachable from every non-terminal state.
type State string

const (
	StateCreated      State = "created"
	StateImagePending State = "image_pending"
	StateImageReady   State = "image_ready"
	StateVideoPending State = "video_pending"
	StateVideoReady   State = "video_ready"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateVideoReady || s == StateFailed
}

// allowedTransitions is the forward edge set of the job state machine.
var allowedTransitions = map[State][]State{
	StateCreated:      {StateImagePending, StateFailed},
	StateImagePending: {StateImageReady, StateFailed},
	StateImageReady:   {StateVideoPending, StateFailed},
	StateVideoPending: {StateVideoReady, StateFailed},
	StateVideoReady:   {},
	StateFailed:       {},
}

func transitionAllowed(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrorKind tags a failure with its pipeline stage or upstream condition.
type ErrorKind string

const (
	ErrKindImageGeneration     ErrorKind = "image_generation_failed"
	ErrKindVideoGeneration     ErrorKind = "video_generation_failed"
	ErrKindUpstreamTimeout     ErrorKind = "upstream_timeout"
	ErrKindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// ErrorDetail describes why a job failed.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Job is one visitor's request to turn a captured photo into a video.
type Job struct {
	ID             uuid.UUID    `json:"id"`
	SessionID      string       `json:"session_id"`
	State          State        `json:"state"`
	InputImageRef  string       `json:"input_image_ref"`
	AvatarSelector string       `json:"avatar_selector"`
	ImageRef       string       `json:"image_ref,omitempty"`
	ResultVideoRef string       `json:"result_video_ref,omitempty"`
	ErrorDetail    *ErrorDetail `json:"error_detail,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (j *Job) clone() *Job {
	cp := *j
	if j.ErrorDetail != nil {
		ed := *j.ErrorDetail
		cp.ErrorDetail = &ed
	}
	return &cp
}
