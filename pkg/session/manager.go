// Package session tracks per-visitor flow controllers keyed by an opaque
// session ID the kiosk UI generates client-side. Sessions are created on
// first access and evicted after inactivity; eviction aborts the controller
// so an abandoned visitor's completion watch never leaks.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/flow"
)

// cleanupInterval is how often Get() triggers lazy eviction of expired entries.
const cleanupInterval = 100

type entry struct {
	ctrl       *flow.Controller
	lastAccess time.Time
}

// Manager is a thread-safe registry of visitor sessions.
type Manager struct {
	mu       sync.Mutex
	entries  map[string]*entry
	ttl      time.Duration
	factory  func(sessionID string) *flow.Controller
	getCalls int
}

// NewManager creates a manager that evicts sessions inactive longer than
// ttl. factory builds the controller when a session ID is first seen; wire
// phase observers inside it.
func NewManager(ttl time.Duration, factory func(sessionID string) *flow.Controller) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		ttl:     ttl,
		factory: factory,
	}
}

// Get returns the controller for the given session, creating it if needed.
// Each call refreshes the session's last-access timestamp.
func (m *Manager) Get(id string) *flow.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.getCalls%cleanupInterval == 0 {
		m.cleanupLocked()
	}

	e, ok := m.entries[id]
	if !ok {
		e = &entry{ctrl: m.factory(id)}
		m.entries[id] = e
		slog.Debug("Session created", "session", id)
	}
	e.lastAccess = time.Now()
	return e.ctrl
}

// Cleanup evicts all sessions inactive longer than the TTL, aborting each
// evicted controller.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
}

func (m *Manager) cleanupLocked() {
	cutoff := time.Now().Add(-m.ttl)
	for id, e := range m.entries {
		if e.lastAccess.Before(cutoff) {
			delete(m.entries, id)
			e.ctrl.Abort("session expired")
			slog.Info("Session evicted", "session", id)
		}
	}
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RunSweeper periodically evicts idle sessions until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}
