package job

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a job ID is unknown to the store,
// typically because it was swept or superseded by a newer capture.
var ErrNotFound = errors.New("job not found")

// ErrPollTimeout is returned by AwaitTerminal when the wait deadline elapses
// before the job reaches a terminal state. The job may still complete later.
var ErrPollTimeout = errors.New("poll timeout")

// InvalidTransitionError signals an attempt to move a job backwards or skip
// a stage. It indicates a programming error, not an operational condition.
type InvalidTransitionError struct {
	ID   string
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for job %s: %s -> %s", e.ID, e.From, e.To)
}
