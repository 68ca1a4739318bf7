package job

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Payload carries the optional artifact references and error detail applied
// together with a state transition.
type Payload struct {
	ImageRef       string
	ResultVideoRef string
	ErrorDetail    *ErrorDetail
}

// Store is the process-scoped table of job records. Mutations are atomic:
// readers always observe a complete snapshot of a job, never a half-applied
// update. Only the pipeline driver transitions jobs; everything else reads.
type Store struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]*Job
	bySession map[string]uuid.UUID

	// observers are invoked with a snapshot after every successful
	// mutation. Used by the session event stream and by tests that
	// assert on state sequences.
	observers []func(*Job)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		jobs:      make(map[uuid.UUID]*Job),
		bySession: make(map[string]uuid.UUID),
	}
}

// OnTransition registers an observer called after every job mutation,
// including creation. Must be called before the store is shared.
func (s *Store) OnTransition(fn func(*Job)) {
	s.observers = append(s.observers, fn)
}

// Create registers a new job in the created state. If the session already
// has a job, the old record is superseded: the new capture replaces it and
// the abandoned pipeline's late transitions will see ErrNotFound.
func (s *Store) Create(sessionID, inputImageRef, avatarSelector string) *Job {
	s.mu.Lock()

	now := time.Now()
	j := &Job{
		ID:             uuid.New(),
		SessionID:      sessionID,
		State:          StateCreated,
		InputImageRef:  inputImageRef,
		AvatarSelector: avatarSelector,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if old, ok := s.bySession[sessionID]; ok {
		slog.Info("Job superseded by new capture", "session", sessionID, "old_job", old, "new_job", j.ID)
		delete(s.jobs, old)
	}
	s.jobs[j.ID] = j
	s.bySession[sessionID] = j.ID

	snap := j.clone()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// Get returns a snapshot of the job, or ErrNotFound.
func (s *Store) Get(id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.clone(), nil
}

// ActiveForSession returns a snapshot of the session's current job.
func (s *Store) ActiveForSession(sessionID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySession[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.clone(), nil
}

// Transition moves a job to newState, applying the payload atomically.
// It fails with InvalidTransitionError if the edge is not in the allowed
// set, enforcing that state never regresses.
func (s *Store) Transition(id uuid.UUID, newState State, p Payload) error {
	s.mu.Lock()

	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	if !transitionAllowed(j.State, newState) {
		err := &InvalidTransitionError{ID: id.String(), From: j.State, To: newState}
		s.mu.Unlock()
		slog.Error("Job store invariant violation", "error", err)
		return err
	}

	j.State = newState
	j.UpdatedAt = time.Now()
	if p.ImageRef != "" {
		j.ImageRef = p.ImageRef
	}

	// resultVideoRef iff video_ready, errorDetail iff failed
	switch newState {
	case StateVideoReady:
		j.ResultVideoRef = p.ResultVideoRef
	case StateFailed:
		j.ErrorDetail = p.ErrorDetail
		if j.ErrorDetail == nil {
			j.ErrorDetail = &ErrorDetail{Kind: ErrKindUpstreamUnavailable, Message: "unknown failure"}
		}
	}

	snap := j.clone()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Sweep removes jobs whose last update is older than retention and returns
// how many were removed. Prevents unbounded growth over an operating day.
func (s *Store) Sweep(retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	removed := 0
	for id, j := range s.jobs {
		if j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			if s.bySession[j.SessionID] == id {
				delete(s.bySession, j.SessionID)
			}
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Job store swept", "removed", removed)
	}
	return removed
}

// ActiveCount returns the number of jobs not yet in a terminal state.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, j := range s.jobs {
		if !j.State.Terminal() {
			n++
		}
	}
	return n
}

// Len returns the total number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) notify(j *Job) {
	for _, fn := range s.observers {
		fn(j)
	}
}
