package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/flow"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/job"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/media"
)

// maxMultipartMemory bounds the in-memory part of multipart parsing; larger
// photo parts spill to temp files.
const maxMultipartMemory = 8 << 20

// Sessions resolves a session ID to its flow controller.
type Sessions interface {
	Get(id string) *flow.Controller
}

// PipelineStarter launches the generation pipeline for a created job.
type PipelineStarter interface {
	Start(ctx context.Context, j *job.Job)
}

// JobHandler handles capture submission and job status reads.
type JobHandler struct {
	jobs     *job.Store
	media    *media.Store
	driver   PipelineStarter
	sessions Sessions

	// baseCtx scopes pipeline runs to the process, not the HTTP request:
	// generation continues after the capture response is sent.
	baseCtx context.Context
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(baseCtx context.Context, jobs *job.Store, mediaStore *media.Store, driver PipelineStarter, sessions Sessions) *JobHandler {
	return &JobHandler{
		jobs:     jobs,
		media:    mediaStore,
		driver:   driver,
		sessions: sessions,
		baseCtx:  baseCtx,
	}
}

// CreateJobResponse is returned on successful capture submission.
type CreateJobResponse struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

// HandleCreate handles POST /api/jobs: a multipart form with the captured
// photo, the avatar choice, and the session ID. The response returns as soon
// as the job record exists; all progress is observed via status reads.
func (h *JobHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	avatar := r.FormValue("avatar")
	if _, err := generate.ParseAvatar(avatar); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	photo, _, err := r.FormFile("photo")
	if err != nil {
		http.Error(w, "missing photo", http.StatusBadRequest)
		return
	}
	defer photo.Close()

	ctrl := h.sessions.Get(sid)
	snap := ctrl.Snapshot()
	if snap.Phase == flow.PhaseIdle || snap.Phase == flow.PhaseAborted {
		if err := ctrl.StartCapture(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	} else if snap.Phase != flow.PhaseCapturing {
		http.Error(w, "session already has a job in flight", http.StatusConflict)
		return
	}

	// A createJob failure leaves the session in capturing so the visitor
	// can retry.
	photoPath, err := h.media.SaveUpload(photo, uuid.NewString())
	if err != nil {
		if errors.Is(err, media.ErrTooLarge) {
			http.Error(w, "photo too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	j := h.jobs.Create(sid, photoPath, avatar)
	h.driver.Start(h.baseCtx, j)
	if err := ctrl.AttachJob(h.baseCtx, j.ID); err != nil {
		slog.Error("Failed to attach job to session", "session", sid, "job", j.ID, "error", err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("Job created", "job", j.ID, "session", sid, "avatar", avatar)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(CreateJobResponse{
		JobID:     j.ID.String(),
		SessionID: sid,
		State:     string(j.State),
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// JobStatusResponse is the status projection for UIs. The result reference
// appears only once the video is ready; error detail only on failure.
type JobStatusResponse struct {
	ID          string           `json:"id"`
	State       string           `json:"state"`
	ImageRef    string           `json:"image_ref,omitempty"`
	ResultRef   string           `json:"result_ref,omitempty"`
	ErrorDetail *job.ErrorDetail `json:"error_detail,omitempty"`
}

// HandleStatus handles GET /api/jobs/{id}.
func (h *JobHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	j, err := h.jobs.Get(id)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(JobStatusResponse{
		ID:          j.ID.String(),
		State:       string(j.State),
		ImageRef:    j.ImageRef,
		ResultRef:   j.ResultVideoRef,
		ErrorDetail: j.ErrorDetail,
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
