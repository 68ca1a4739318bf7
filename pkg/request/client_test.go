package request

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/tracker"
)

func newTestClient(t *testing.T) (*Client, *tracker.Tracker) {
	t.Helper()
	tr := tracker.New()
	c := New(tr, Options{Retries: 3, Timeout: 5 * time.Second, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	return c, tr
}

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c, tr := newTestClient(t)
	body, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	stats := tr.Snapshot()
	assert.Equal(t, int64(1), stats[normalizeProviderFromURL(t, srv.URL)].APISuccess)
}

func TestRetriesOn500ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	body, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFailsFastOn400(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestPostBodyRewindsOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		buf := make([]byte, 16)
		n, _ := r.Body.Read(buf)
		w.Write(buf[:n])
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	body, err := c.Post(context.Background(), srv.URL, []byte("payload"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNormalizeProvider(t *testing.T) {
	assert.Equal(t, "wavespeed", normalizeProvider("api.wavespeed.ai"))
	assert.Equal(t, "gemini", normalizeProvider("generativelanguage.googleapis.com"))
	assert.Equal(t, "example.com", normalizeProvider("example.com"))
}

func normalizeProviderFromURL(t *testing.T, u string) string {
	t.Helper()
	req, err := http.NewRequest("GET", u, http.NoBody)
	require.NoError(t, err)
	return normalizeProvider(req.URL.Host)
}
