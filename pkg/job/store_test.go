package job

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInitialState(t *testing.T) {
	s := NewStore()
	j := s.Create("sess-1", "/uploads/a.jpg", "Male")

	assert.Equal(t, StateCreated, j.State)
	assert.Equal(t, "/uploads/a.jpg", j.InputImageRef)
	assert.Equal(t, "Male", j.AvatarSelector)
	assert.NotEqual(t, uuid.Nil, j.ID)
	assert.Nil(t, j.ErrorDetail)
	assert.Empty(t, j.ResultVideoRef)
}

func TestGetUnknown(t *testing.T) {
	s := NewStore()
	_, err := s.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHappyPathTransitions(t *testing.T) {
	s := NewStore()
	j := s.Create("sess-1", "in.jpg", "Female")

	require.NoError(t, s.Transition(j.ID, StateImagePending, Payload{}))
	require.NoError(t, s.Transition(j.ID, StateImageReady, Payload{ImageRef: "img.jpeg"}))
	require.NoError(t, s.Transition(j.ID, StateVideoPending, Payload{}))
	require.NoError(t, s.Transition(j.ID, StateVideoReady, Payload{ResultVideoRef: "out.mp4"}))

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateVideoReady, got.State)
	assert.Equal(t, "img.jpeg", got.ImageRef)
	assert.Equal(t, "out.mp4", got.ResultVideoRef)
	assert.Nil(t, got.ErrorDetail)
}

func TestStateNeverRegresses(t *testing.T) {
	s := NewStore()
	j := s.Create("sess-1", "in.jpg", "Boy")

	require.NoError(t, s.Transition(j.ID, StateImagePending, Payload{}))
	require.NoError(t, s.Transition(j.ID, StateImageReady, Payload{}))

	var ite *InvalidTransitionError
	err := s.Transition(j.ID, StateImagePending, Payload{})
	require.Error(t, err)
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, StateImageReady, ite.From)

	// Skipping a stage is also rejected.
	err = s.Transition(j.ID, StateVideoReady, Payload{ResultVideoRef: "x.mp4"})
	assert.Error(t, err)

	// The failed attempt must not have mutated the record.
	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateImageReady, got.State)
	assert.Empty(t, got.ResultVideoRef)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	s := NewStore()
	j := s.Create("sess-1", "in.jpg", "Girl")

	require.NoError(t, s.Transition(j.ID, StateImagePending, Payload{}))
	require.NoError(t, s.Transition(j.ID, StateFailed, Payload{
		ErrorDetail: &ErrorDetail{Kind: ErrKindImageGeneration, Message: "boom"},
	}))

	assert.Error(t, s.Transition(j.ID, StateImageReady, Payload{}))
	assert.Error(t, s.Transition(j.ID, StateFailed, Payload{}))

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorDetail)
	assert.Equal(t, ErrKindImageGeneration, got.ErrorDetail.Kind)
}

// resultVideoRef present iff video_ready, errorDetail present iff failed.
func TestPayloadInvariants(t *testing.T) {
	s := NewStore()
	j := s.Create("sess-1", "in.jpg", "Male")

	states := []State{StateImagePending, StateImageReady, StateVideoPending}
	for _, st := range states {
		require.NoError(t, s.Transition(j.ID, st, Payload{}))
		got, err := s.Get(j.ID)
		require.NoError(t, err)
		assert.Empty(t, got.ResultVideoRef, "state %s", st)
		assert.Nil(t, got.ErrorDetail, "state %s", st)
	}

	require.NoError(t, s.Transition(j.ID, StateVideoReady, Payload{ResultVideoRef: "v.mp4"}))
	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ResultVideoRef)
	assert.Nil(t, got.ErrorDetail)
}

func TestNewCaptureSupersedes(t *testing.T) {
	s := NewStore()
	first := s.Create("sess-1", "one.jpg", "Male")
	second := s.Create("sess-1", "two.jpg", "Male")

	// The superseded job is gone; its driver's late writes are rejected.
	_, err := s.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Transition(first.ID, StateImagePending, Payload{}), ErrNotFound)

	active, err := s.ActiveForSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, 1, s.Len())
}

func TestSweep(t *testing.T) {
	s := NewStore()
	j := s.Create("sess-1", "in.jpg", "Male")

	assert.Equal(t, 0, s.Sweep(time.Hour), "fresh jobs survive")

	// Age the record directly.
	s.mu.Lock()
	s.jobs[j.ID].UpdatedAt = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	assert.Equal(t, 1, s.Sweep(time.Hour))
	_, err := s.Get(j.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ActiveForSession("sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := NewStore()
	j := s.Create("sess-1", "in.jpg", "Male")

	snap, err := s.Get(j.ID)
	require.NoError(t, err)
	snap.State = StateVideoReady
	snap.ResultVideoRef = "tampered.mp4"

	fresh, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, fresh.State)
	assert.Empty(t, fresh.ResultVideoRef)
}

func TestObserverSeesOrderedSequence(t *testing.T) {
	s := NewStore()

	var mu sync.Mutex
	var seen []State
	s.OnTransition(func(j *Job) {
		mu.Lock()
		seen = append(seen, j.State)
		mu.Unlock()
	})

	j := s.Create("sess-1", "in.jpg", "Male")
	require.NoError(t, s.Transition(j.ID, StateImagePending, Payload{}))
	require.NoError(t, s.Transition(j.ID, StateImageReady, Payload{}))
	require.NoError(t, s.Transition(j.ID, StateVideoPending, Payload{}))
	require.NoError(t, s.Transition(j.ID, StateVideoReady, Payload{ResultVideoRef: "v.mp4"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateCreated, StateImagePending, StateImageReady, StateVideoPending, StateVideoReady}, seen)
}

func TestConcurrentReadersDuringTransitions(t *testing.T) {
	s := NewStore()
	j := s.Create("sess-1", "in.jpg", "Male")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Transition(j.ID, StateImagePending, Payload{})
		s.Transition(j.ID, StateImageReady, Payload{ImageRef: "img.jpeg"})
		s.Transition(j.ID, StateVideoPending, Payload{})
		s.Transition(j.ID, StateVideoReady, Payload{ResultVideoRef: "v.mp4"})
	}()

	// Readers must only ever observe consistent snapshots.
	for {
		got, err := s.Get(j.ID)
		require.NoError(t, err)
		if got.State == StateVideoReady {
			assert.NotEmpty(t, got.ResultVideoRef)
			break
		}
		assert.Empty(t, got.ResultVideoRef)
	}
	<-done
}
