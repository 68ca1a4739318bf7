package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/db"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/job"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/tracker"
)

// SessionCounter reports the number of live visitor sessions.
type SessionCounter interface {
	Len() int
}

// StatsHandler serves the operator view: pipeline mode, live counts,
// upstream API counters, and daily outcome totals.
type StatsHandler struct {
	tracker  *tracker.Tracker
	jobs     *job.Store
	sessions SessionCounter
	outcomes *db.DB
	hub      *Hub
	mode     string
	started  time.Time
}

// NewStatsHandler creates a StatsHandler. outcomes and hub may be nil.
func NewStatsHandler(t *tracker.Tracker, jobs *job.Store, sessions SessionCounter, outcomes *db.DB, hub *Hub, mode string) *StatsHandler {
	return &StatsHandler{
		tracker:  t,
		jobs:     jobs,
		sessions: sessions,
		outcomes: outcomes,
		hub:      hub,
		mode:     mode,
		started:  time.Now(),
	}
}

// ProviderStatsDTO is one upstream provider's API counters.
type ProviderStatsDTO struct {
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_errors"`
}

// StatsResponse is the operator stats payload.
type StatsResponse struct {
	Mode          string                      `json:"mode"`
	UptimeSec     int64                       `json:"uptime_sec"`
	ActiveJobs    int                         `json:"active_jobs"`
	StoredJobs    int                         `json:"stored_jobs"`
	Sessions      int                         `json:"sessions"`
	EventClients  int                         `json:"event_clients"`
	Providers     map[string]ProviderStatsDTO `json:"providers"`
	OutcomeTotals map[string]int              `json:"outcome_totals,omitempty"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Mode:       h.mode,
		UptimeSec:  int64(time.Since(h.started).Seconds()),
		ActiveJobs: h.jobs.ActiveCount(),
		StoredJobs: h.jobs.Len(),
		Providers:  make(map[string]ProviderStatsDTO),
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}
	if h.hub != nil {
		resp.EventClients = h.hub.Clients()
	}

	for provider, stats := range h.tracker.Snapshot() {
		resp.Providers[provider] = ProviderStatsDTO{
			APISuccess:  stats.APISuccess,
			APIFailures: stats.APIFailures,
		}
	}

	if h.outcomes != nil {
		totals, err := h.outcomes.OutcomeCounts()
		if err != nil {
			slog.Error("Failed to read outcome totals", "error", err)
		} else {
			resp.OutcomeTotals = totals
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
