// Package pipeline drives a job through its two generation stages. The
// driver owns all state transitions; whether the stages are real upstream
// clients or mock placeholders is decided at wiring time, so the lifecycle
// is identical either way.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/job"
)

// DefaultStageTimeout bounds each generation stage.
const DefaultStageTimeout = 4 * time.Minute

// Stages are the two generation backends the driver runs in order.
type Stages struct {
	Image generate.ImageEditor
	Video generate.VideoSynthesizer
}

// Uploads releases temporary capture files once a job settles.
// Implemented by the media store.
type Uploads interface {
	Remove(path string)
}

// Driver executes the image and video stages for jobs and records progress
// in the store.
type Driver struct {
	store        *job.Store
	stages       Stages
	uploads      Uploads
	stageTimeout time.Duration
}

// New creates a driver. uploads may be nil.
func New(store *job.Store, stages Stages, uploads Uploads, stageTimeout time.Duration) *Driver {
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	return &Driver{store: store, stages: stages, uploads: uploads, stageTimeout: stageTimeout}
}

// Start launches the pipeline for a freshly created job and returns
// immediately. ctx scopes the whole run; cancel it to abandon the job.
func (d *Driver) Start(ctx context.Context, j *job.Job) {
	go d.run(ctx, j)
}

func (d *Driver) run(ctx context.Context, j *job.Job) {
	defer func() {
		if d.uploads != nil {
			d.uploads.Remove(j.InputImageRef)
		}
	}()

	avatar, err := generate.ParseAvatar(j.AvatarSelector)
	if err != nil {
		d.fail(j, job.ErrKindImageGeneration, err)
		return
	}

	if !d.transition(j, job.StateImagePending, job.Payload{}) {
		return
	}

	imageRef, err := d.runStage(ctx, func(sctx context.Context) (string, error) {
		return d.stages.Image.EditImage(sctx, j.ID.String(), j.InputImageRef, avatar)
	})
	if err != nil {
		d.fail(j, job.ErrKindImageGeneration, err)
		return
	}

	if !d.transition(j, job.StateImageReady, job.Payload{ImageRef: imageRef}) {
		return
	}
	if !d.transition(j, job.StateVideoPending, job.Payload{}) {
		return
	}

	videoRef, err := d.runStage(ctx, func(sctx context.Context) (string, error) {
		return d.stages.Video.SynthesizeVideo(sctx, j.ID.String(), imageRef, avatar)
	})
	if err != nil {
		d.fail(j, job.ErrKindVideoGeneration, err)
		return
	}

	if d.transition(j, job.StateVideoReady, job.Payload{ResultVideoRef: videoRef}) {
		slog.Info("Pipeline completed", "job", j.ID, "video", videoRef)
	}
}

// runStage executes one generation stage under the per-stage deadline.
func (d *Driver) runStage(ctx context.Context, stage func(context.Context) (string, error)) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, d.stageTimeout)
	defer cancel()
	return stage(sctx)
}

// transition applies a state change. A superseded job reports ErrNotFound;
// the driver stops quietly and lets the newer job's pipeline own the session.
func (d *Driver) transition(j *job.Job, state job.State, p job.Payload) bool {
	err := d.store.Transition(j.ID, state, p)
	if err == nil {
		return true
	}
	if errors.Is(err, job.ErrNotFound) {
		slog.Debug("Pipeline abandoned, job superseded", "job", j.ID)
	} else {
		slog.Error("Pipeline transition rejected", "job", j.ID, "state", state, "error", err)
	}
	return false
}

func (d *Driver) fail(j *job.Job, stageKind job.ErrorKind, err error) {
	detail := &job.ErrorDetail{Kind: classify(err, stageKind), Message: err.Error()}
	slog.Warn("Pipeline stage failed", "job", j.ID, "kind", detail.Kind, "error", err)
	d.transition(j, job.StateFailed, job.Payload{ErrorDetail: detail})
}

// classify maps upstream sentinel errors onto the shared error taxonomy,
// falling back to the stage-specific kind.
func classify(err error, stageKind job.ErrorKind) job.ErrorKind {
	switch {
	case errors.Is(err, generate.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return job.ErrKindUpstreamTimeout
	case errors.Is(err, generate.ErrUpstreamUnavailable):
		return job.ErrKindUpstreamUnavailable
	default:
		return stageKind
	}
}

// Describe returns a short label for the configured stages, used in logs
// and the health endpoint.
func Describe(mock bool) string {
	if mock {
		return "mock"
	}
	return "gemini+wavespeed"
}
