// Package flow sequences one visitor through the kiosk: capture, job
// creation, quiz, wait for the video, review, share. The controller is an
// explicit state machine with a transition table; quiz completion and job
// completion arrive in either order and the controller is the rendezvous
// that joins them before review.
package flow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/job"
)

// Phase is a visitor session phase.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseCapturing         Phase = "capturing"
	PhaseJobCreated        Phase = "job_created"
	PhaseEngaging          Phase = "engaging"
	PhaseWaitingCompletion Phase = "waiting_completion"
	PhaseReviewing         Phase = "reviewing"
	PhaseSharing           Phase = "sharing"
	PhaseDone              Phase = "done"
	PhaseAborted           Phase = "aborted"
)

// Terminal reports whether the session has ended. aborted still allows a
// retry back to capturing.
func (p Phase) Terminal() bool {
	return p == PhaseDone
}

// allowedPhases is the forward edge set of the session state machine.
// aborted → capturing is the retry affordance after a failure.
var allowedPhases = map[Phase][]Phase{
	PhaseIdle:              {PhaseCapturing, PhaseAborted},
	PhaseCapturing:         {PhaseJobCreated, PhaseAborted},
	PhaseJobCreated:        {PhaseEngaging, PhaseAborted},
	PhaseEngaging:          {PhaseWaitingCompletion, PhaseAborted},
	PhaseWaitingCompletion: {PhaseReviewing, PhaseAborted},
	PhaseReviewing:         {PhaseSharing, PhaseAborted},
	PhaseSharing:           {PhaseDone, PhaseAborted},
	PhaseDone:              {},
	PhaseAborted:           {PhaseCapturing},
}

func phaseAllowed(from, to Phase) bool {
	for _, p := range allowedPhases[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Snapshot is a read-only view of the session for status rendering.
type Snapshot struct {
	SessionID    string    `json:"session_id"`
	Phase        Phase     `json:"phase"`
	JobID        uuid.UUID `json:"job_id,omitempty"`
	JobDone      bool      `json:"job_done"`
	QuizDone     bool      `json:"quiz_done"`
	PollTimedOut bool      `json:"poll_timed_out"`
	AbortReason  string    `json:"abort_reason,omitempty"`
}

// Controller owns one visitor session. All entry points serialize on its
// mutex, so phase logic runs single-threaded even though quiz answers and
// job completion arrive on different goroutines.
type Controller struct {
	mu        sync.Mutex
	sessionID string
	phase     Phase
	jobID     uuid.UUID
	hasJob    bool

	jobDone      bool
	jobFailed    bool
	quizDone     bool
	pollTimedOut bool
	abortReason  string

	store    *job.Store
	pollOpts job.PollOptions

	watchCancel context.CancelFunc

	observers []func(Snapshot)
}

// NewController creates a session controller in the idle phase.
func NewController(sessionID string, store *job.Store, pollOpts job.PollOptions) *Controller {
	return &Controller{
		sessionID: sessionID,
		phase:     PhaseIdle,
		store:     store,
		pollOpts:  pollOpts,
	}
}

// OnPhaseChange registers an observer called with a snapshot after every
// phase or flag change. Register before the controller is shared.
func (c *Controller) OnPhaseChange(fn func(Snapshot)) {
	c.observers = append(c.observers, fn)
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		SessionID:    c.sessionID,
		Phase:        c.phase,
		JobDone:      c.jobDone,
		QuizDone:     c.quizDone,
		PollTimedOut: c.pollTimedOut,
		AbortReason:  c.abortReason,
	}
	if c.hasJob {
		s.JobID = c.jobID
	}
	return s
}

// StartCapture moves the session to capturing. From aborted this is the
// retry path: job flags reset and a fresh capture begins.
func (c *Controller) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setPhaseLocked(PhaseCapturing); err != nil {
		return err
	}
	c.jobDone = false
	c.jobFailed = false
	c.quizDone = false
	c.pollTimedOut = false
	c.abortReason = ""
	c.hasJob = false
	c.notifyLocked()
	return nil
}

// AttachJob binds a freshly created job to the session and advances through
// job_created into engaging, starting the completion watch. The quiz and
// the watch now run independently until the rendezvous.
func (c *Controller) AttachJob(ctx context.Context, jobID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setPhaseLocked(PhaseJobCreated); err != nil {
		return err
	}
	c.jobID = jobID
	c.hasJob = true
	c.notifyLocked()

	if err := c.setPhaseLocked(PhaseEngaging); err != nil {
		return err
	}
	c.startWatchLocked(ctx)
	c.notifyLocked()
	return nil
}

// NotifyQuizComplete records the quiz signal. During engaging it advances to
// waiting_completion and, if the job already settled, resolves the
// rendezvous immediately.
func (c *Controller) NotifyQuizComplete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quizDone {
		return nil
	}
	c.quizDone = true

	if c.phase == PhaseEngaging {
		if err := c.setPhaseLocked(PhaseWaitingCompletion); err != nil {
			return err
		}
		c.resolveLocked()
	}
	c.notifyLocked()
	return nil
}

// KeepWaiting restarts the completion watch after a poll timeout. The job
// may still finish server-side; the visitor chose to wait longer.
func (c *Controller) KeepWaiting(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pollTimedOut || c.phase != PhaseWaitingCompletion {
		return &InvalidPhaseError{Phase: c.phase, Action: "keep_waiting"}
	}
	c.pollTimedOut = false
	c.startWatchLocked(ctx)
	c.notifyLocked()
	return nil
}

// Advance moves through the visitor-gated tail of the session:
// reviewing → sharing → done.
func (c *Controller) Advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next Phase
	switch c.phase {
	case PhaseReviewing:
		next = PhaseSharing
	case PhaseSharing:
		next = PhaseDone
	default:
		return &InvalidPhaseError{Phase: c.phase, Action: "advance"}
	}
	if err := c.setPhaseLocked(next); err != nil {
		return err
	}
	c.notifyLocked()
	return nil
}

// Abort ends the session from any non-terminal phase: navigation away,
// inactivity, or a failed job. Any in-flight completion watch is cancelled;
// the generation call itself runs to completion upstream, unconsumed.
func (c *Controller) Abort(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked(reason)
}

func (c *Controller) abortLocked(reason string) {
	if c.phase == PhaseAborted || c.phase.Terminal() {
		return
	}
	if err := c.setPhaseLocked(PhaseAborted); err != nil {
		return
	}
	c.abortReason = reason
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	slog.Info("Session aborted", "session", c.sessionID, "reason", reason)
	c.notifyLocked()
}

// setPhaseLocked applies a phase change through the transition table.
func (c *Controller) setPhaseLocked(to Phase) error {
	if !phaseAllowed(c.phase, to) {
		return &InvalidPhaseError{Phase: c.phase, Action: string(to)}
	}
	slog.Debug("Session phase", "session", c.sessionID, "from", c.phase, "to", to)
	c.phase = to
	return nil
}

// resolveLocked is the rendezvous: entered from waiting_completion whenever
// either flag changes. Review requires the job done; a failed job aborts
// with a retry affordance.
func (c *Controller) resolveLocked() {
	if c.phase != PhaseWaitingCompletion {
		return
	}
	switch {
	case c.jobFailed:
		c.abortLocked("generation failed")
	case c.jobDone:
		if err := c.setPhaseLocked(PhaseReviewing); err == nil {
			slog.Info("Session entered review", "session", c.sessionID, "job", c.jobID)
		}
	}
}

func (c *Controller) notifyLocked() {
	snap := c.snapshotLocked()
	for _, fn := range c.observers {
		fn(snap)
	}
}
