package session

import (
	"log/slog"
	"sync"
	"time"
)

// Host is the in-memory actor registry: it hands out exactly one *Actor
// per session_id, creating it on first reference (spec §4.4
// "Lifecycle"), and evicts actors idle past a configured threshold.
// Grounded on the teacher's internal/sessions.MemoryStore map-of-state
// shape, replacing its store-wide-lock CRUD with per-actor locks so
// concurrent sessions never contend on each other.
type Host struct {
	mu      sync.RWMutex
	actors  map[string]*Actor
	archive ArchiveFunc
	logger  *slog.Logger
}

// NewHost builds a Host. archive may be nil, in which case overflowed
// history is simply dropped (no external collaborator configured).
func NewHost(archive ArchiveFunc, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		actors:  make(map[string]*Actor),
		archive: archive,
		logger:  logger.With("component", "session_host"),
	}
}

// Get returns the actor for id, creating it if this is the first
// reference. id must already be a resolved session id; minting a fresh
// id for session-less requests is the router's job (spec §4.7).
func (h *Host) Get(id string) *Actor {
	h.mu.RLock()
	a, ok := h.actors[id]
	h.mu.RUnlock()
	if ok {
		return a
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if a, ok := h.actors[id]; ok {
		return a
	}
	a = newActor(id, h.archive, h.logger)
	h.actors[id] = a
	return a
}

// Count reports the number of live actors, used by tests and metrics.
func (h *Host) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.actors)
}

// Sweep evicts actors idle past maxIdle. Intended to be driven by a
// periodic cron job (cmd/storegated), off the request path.
func (h *Host) Sweep(maxIdle time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	evicted := 0
	for id, a := range h.actors {
		if a.IdleSince() >= maxIdle {
			delete(h.actors, id)
			evicted++
		}
	}
	if evicted > 0 {
		h.logger.Info("evicted idle sessions", "count", evicted)
	}
	return evicted
}
