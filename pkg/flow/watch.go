package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/job"
)

// startWatchLocked launches the completion watch for the bound job. The
// watch polls the store off the controller's own goroutine, so quiz
// interaction never blocks behind it. Caller holds the mutex.
func (c *Controller) startWatchLocked(ctx context.Context) {
	if c.watchCancel != nil {
		c.watchCancel()
	}
	wctx, cancel := context.WithCancel(ctx)
	c.watchCancel = cancel

	id := c.jobID
	go c.watchJob(wctx, id)
}

func (c *Controller) watchJob(ctx context.Context, id uuid.UUID) {
	j, err := job.AwaitTerminal(ctx, c.store, id, c.pollOpts)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Stale watch: the session moved on to another job or was aborted.
	if !c.hasJob || c.jobID != id || c.phase == PhaseAborted || c.phase.Terminal() {
		return
	}

	switch {
	case err == nil:
		if j.State == job.StateVideoReady {
			c.jobDone = true
		} else {
			c.jobFailed = true
		}
	case errors.Is(err, job.ErrPollTimeout):
		// Distinct from failure: the job may still finish. The visitor is
		// offered "keep waiting" or "give up".
		c.pollTimedOut = true
		slog.Warn("Completion wait timed out", "session", c.sessionID, "job", c.jobID)
	case errors.Is(err, job.ErrNotFound):
		// Swept or superseded; no further progress is possible.
		c.jobFailed = true
	case errors.Is(err, context.Canceled):
		return
	default:
		slog.Error("Completion watch failed", "session", c.sessionID, "error", err)
		c.jobFailed = true
	}

	c.resolveLocked()
	c.notifyLocked()
}
