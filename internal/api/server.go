package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, jobH *JobHandler, quizH *QuizHandler, sessH *SessionHandler, stats *StatsHandler, hub *Hub, mediaRoot, placeholderDir string, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 3. Stats Endpoint
	mux.Handle("GET /api/stats", stats)

	// 4. Job Endpoints
	mux.HandleFunc("POST /api/jobs", jobH.HandleCreate)
	mux.HandleFunc("GET /api/jobs/{id}", jobH.HandleStatus)

	// 5. Quiz Endpoints
	mux.HandleFunc("GET /api/questions", quizH.HandleQuestions)
	mux.HandleFunc("POST /api/jobs/{id}/answers", quizH.HandleAnswers)

	// 6. Session Endpoints
	mux.HandleFunc("GET /api/session", sessH.HandleStatus)
	mux.HandleFunc("POST /api/session/capture", sessH.HandleCapture)
	mux.HandleFunc("POST /api/session/advance", sessH.HandleAdvance)
	mux.HandleFunc("POST /api/session/keep-waiting", sessH.HandleKeepWaiting)
	mux.HandleFunc("POST /api/session/abort", sessH.HandleAbort)

	// 7. Event Stream (websocket)
	if hub != nil {
		mux.HandleFunc("GET /api/events", hub.HandleWS)
	}

	// 8. Media Serving: generated artifacts plus the mock-mode placeholders.
	mux.Handle("GET /media/placeholder/", http.StripPrefix("/media/placeholder/", http.FileServer(http.Dir(placeholderDir))))
	mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaRoot))))

	// 9. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

// sessionID extracts the client-generated session identifier from a request.
func sessionID(r *http.Request) string {
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("session_id")
}
