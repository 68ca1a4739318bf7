package db_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/db"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "anthem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestInit(t *testing.T) {
	d := newTestDB(t)
	require.NotNil(t, d)
}

func TestQuizResultRoundTrip(t *testing.T) {
	d := newTestDB(t)

	_, err := d.GetQuizResult("job-1")
	assert.ErrorIs(t, err, db.ErrNoResult)

	require.NoError(t, d.SaveQuizResult(db.QuizResult{
		JobID: "job-1", SessionID: "sess-1", Score: 0.8, Correct: 4, Total: 5,
	}))

	r, err := d.GetQuizResult("job-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", r.SessionID)
	assert.Equal(t, 4, r.Correct)
	assert.Equal(t, 5, r.Total)
	assert.InDelta(t, 0.8, r.Score, 1e-9)

	// Upsert replaces the previous grade.
	require.NoError(t, d.SaveQuizResult(db.QuizResult{
		JobID: "job-1", SessionID: "sess-1", Score: 1.0, Correct: 5, Total: 5,
	}))
	r, err = d.GetQuizResult("job-1")
	require.NoError(t, err)
	assert.Equal(t, 5, r.Correct)
}

func TestJobOutcomes(t *testing.T) {
	d := newTestDB(t)

	require.NoError(t, d.SaveJobOutcome(db.JobOutcome{
		JobID: "job-a", SessionID: "s1", Avatar: "Male", State: "video_ready", Duration: 42 * time.Second,
	}))
	require.NoError(t, d.SaveJobOutcome(db.JobOutcome{
		JobID: "job-b", SessionID: "s2", Avatar: "Girl", State: "failed", ErrorKind: "video_generation_failed",
	}))
	require.NoError(t, d.SaveJobOutcome(db.JobOutcome{
		JobID: "job-c", SessionID: "s3", Avatar: "Boy", State: "video_ready",
	}))

	counts, err := d.OutcomeCounts()
	require.NoError(t, err)
	assert.Equal(t, 2, counts["video_ready"])
	assert.Equal(t, 1, counts["failed"])
}

func TestPruneOutcomes(t *testing.T) {
	d := newTestDB(t)

	require.NoError(t, d.SaveJobOutcome(db.JobOutcome{JobID: "old", State: "video_ready"}))
	// Age the row past the retention window.
	_, err := d.Exec(`UPDATE job_outcomes SET created_at = '2020-01-01 00:00:00' WHERE job_id = 'old'`)
	require.NoError(t, err)
	require.NoError(t, d.SaveJobOutcome(db.JobOutcome{JobID: "fresh", State: "video_ready"}))

	require.NoError(t, d.PruneOutcomes(24*time.Hour))

	counts, err := d.OutcomeCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["video_ready"])
}
