package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/flow"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/job"
)

// SessionHandler exposes the visitor session's phase and its control actions.
type SessionHandler struct {
	sessions Sessions
	jobs     *job.Store
	baseCtx  context.Context
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(baseCtx context.Context, sessions Sessions, jobs *job.Store) *SessionHandler {
	return &SessionHandler{sessions: sessions, jobs: jobs, baseCtx: baseCtx}
}

// SessionStatusResponse joins the flow snapshot with the job projection.
type SessionStatusResponse struct {
	flow.Snapshot
	Job *JobStatusResponse `json:"job,omitempty"`
}

// HandleStatus handles GET /api/session.
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	snap := h.sessions.Get(sid).Snapshot()
	resp := SessionStatusResponse{Snapshot: snap}
	if snap.JobID != uuid.Nil {
		if j, err := h.jobs.Get(snap.JobID); err == nil {
			resp.Job = &JobStatusResponse{
				ID:          j.ID.String(),
				State:       string(j.State),
				ImageRef:    j.ImageRef,
				ResultRef:   j.ResultVideoRef,
				ErrorDetail: j.ErrorDetail,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleCapture handles POST /api/session/capture: the visitor steps up to
// the camera (or retries after an abort).
func (h *SessionHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(c *flow.Controller) error { return c.StartCapture() })
}

// HandleAdvance handles POST /api/session/advance: reviewing → sharing → done.
func (h *SessionHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(c *flow.Controller) error { return c.Advance() })
}

// HandleKeepWaiting handles POST /api/session/keep-waiting after a poll
// timeout: the job may still finish, restart the wait.
func (h *SessionHandler) HandleKeepWaiting(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(c *flow.Controller) error { return c.KeepWaiting(h.baseCtx) })
}

// AbortRequest optionally names why the session ended.
type AbortRequest struct {
	Reason string `json:"reason"`
}

// HandleAbort handles POST /api/session/abort: back-navigation or give-up.
func (h *SessionHandler) HandleAbort(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	var req AbortRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "visitor navigation"
	}

	ctrl := h.sessions.Get(sid)
	ctrl.Abort(req.Reason)
	h.respond(w, ctrl.Snapshot())
}

func (h *SessionHandler) act(w http.ResponseWriter, r *http.Request, fn func(*flow.Controller) error) {
	sid := sessionID(r)
	if sid == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	ctrl := h.sessions.Get(sid)
	if err := fn(ctrl); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	h.respond(w, ctrl.Snapshot())
}

func (h *SessionHandler) respond(w http.ResponseWriter, snap flow.Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
