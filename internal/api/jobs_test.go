package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/flow"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/job"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/media"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/session"
)

// fakeDriver records started jobs instead of running a pipeline.
type fakeDriver struct {
	mu      sync.Mutex
	started []*job.Job
}

func (f *fakeDriver) Start(ctx context.Context, j *job.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, j)
}

func (f *fakeDriver) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

type jobFixture struct {
	handler  *JobHandler
	jobs     *job.Store
	driver   *fakeDriver
	sessions *session.Manager
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	jobs := job.NewStore()
	mediaStore, err := media.NewStore(t.TempDir(), "", 10<<20, nil)
	require.NoError(t, err)
	sessions := session.NewManager(time.Minute, func(id string) *flow.Controller {
		return flow.NewController(id, jobs, job.PollOptions{Interval: time.Millisecond, Timeout: time.Second})
	})
	driver := &fakeDriver{}
	return &jobFixture{
		handler:  NewJobHandler(context.Background(), jobs, mediaStore, driver, sessions),
		jobs:     jobs,
		driver:   driver,
		sessions: sessions,
	}
}

func captureForm(t *testing.T, avatar string, withPhoto bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("avatar", avatar))
	if withPhoto {
		fw, err := mw.CreateFormFile("photo", "capture.jpeg")
		require.NoError(t, err)
		img := image.NewRGBA(image.Rect(0, 0, 32, 32))
		require.NoError(t, jpeg.Encode(fw, img, nil))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postCapture(t *testing.T, f *jobFixture, sid, avatar string, withPhoto bool) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := captureForm(t, avatar, withPhoto)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	if sid != "" {
		req.Header.Set("X-Session-ID", sid)
	}
	w := httptest.NewRecorder()
	f.handler.HandleCreate(w, req)
	return w
}

func TestHandleCreate(t *testing.T) {
	f := newJobFixture(t)

	w := postCapture(t, f, "sess-1", "Male", true)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp CreateJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "created", resp.State)

	id, err := uuid.Parse(resp.JobID)
	require.NoError(t, err)
	j, err := f.jobs.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Male", j.AvatarSelector)
	assert.NotEmpty(t, j.InputImageRef)

	assert.Equal(t, 1, f.driver.startedCount())
	assert.Equal(t, flow.PhaseEngaging, f.sessions.Get("sess-1").Snapshot().Phase)
}

func TestHandleCreateMissingSession(t *testing.T) {
	f := newJobFixture(t)
	w := postCapture(t, f, "", "Male", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateInvalidAvatar(t *testing.T) {
	f := newJobFixture(t)
	w := postCapture(t, f, "sess-1", "Robot", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.driver.startedCount())
}

func TestHandleCreateMissingPhoto(t *testing.T) {
	f := newJobFixture(t)
	w := postCapture(t, f, "sess-1", "Female", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateGarbagePhotoKeepsCapturing(t *testing.T) {
	f := newJobFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("avatar", "Boy"))
	fw, err := mw.CreateFormFile("photo", "capture.jpeg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("not an image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Session-ID", "sess-1")
	w := httptest.NewRecorder()
	f.handler.HandleCreate(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	// The session stays in capturing for a retry.
	assert.Equal(t, flow.PhaseCapturing, f.sessions.Get("sess-1").Snapshot().Phase)
	assert.Zero(t, f.driver.startedCount())
}

func TestHandleCreateWhileEngagedConflicts(t *testing.T) {
	f := newJobFixture(t)
	require.Equal(t, http.StatusAccepted, postCapture(t, f, "sess-1", "Male", true).Code)
	assert.Equal(t, http.StatusConflict, postCapture(t, f, "sess-1", "Male", true).Code)
}

func TestHandleStatus(t *testing.T) {
	f := newJobFixture(t)
	j := f.jobs.Create("sess-1", "photo", "Girl")
	require.NoError(t, f.jobs.Transition(j.ID, job.StateImagePending, job.Payload{}))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID.String(), nil)
	req.SetPathValue("id", j.ID.String())
	w := httptest.NewRecorder()
	f.handler.HandleStatus(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp JobStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "image_pending", resp.State)
	assert.Empty(t, resp.ResultRef)
	assert.Nil(t, resp.ErrorDetail)
}

func TestHandleStatusUnknownJob(t *testing.T) {
	f := newJobFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.NewString(), nil)
	req.SetPathValue("id", uuid.NewString())
	w := httptest.NewRecorder()
	f.handler.HandleStatus(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	w = httptest.NewRecorder()
	f.handler.HandleStatus(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
