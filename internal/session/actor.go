// Package session implements the per-visitor session actor (C4, spec
// §4.4): a single-threaded store of conversation history, cart id,
// product-view telemetry, the replay-nonce set, and the sliding-window
// rate counter. It is grounded on the teacher's internal/sessions.MemoryStore
// (deep-clone-on-read discipline) combined with the per-key mutex
// serialization pattern from internal/agent.Runtime.lockSession, since the
// spec requires true single-threaded-per-actor semantics rather than a
// single store-wide lock.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/storegate/pkg/chatproto"
)

const (
	// HistoryCap is the maximum retained HistoryEntry count (spec §3).
	HistoryCap = 200
	// ArchiveWatermark is the point past which the actor offers its
	// oldest entries to the archive collaborator (spec §4.4).
	ArchiveWatermark = 150
	// ProductViewCap is the maximum retained ProductView count (spec §3).
	ProductViewCap = 10
	// RateLimit is the sliding-window request ceiling (spec §3, §4.4).
	RateLimit = 20
	// RateWindow is the sliding-window duration (spec §3, §4.4).
	RateWindow = 60 * time.Second
	// ReplayTTL is the minimum retention for accepted signatures (spec §4.4).
	ReplayTTL = 10 * time.Minute
)

// ArchiveFunc offers entries trimmed past ArchiveWatermark to the
// external archive collaborator (spec §6.4). It runs off the append path
// and its error, if any, is only logged (spec §4.4: "must not block append").
type ArchiveFunc func(sessionID string, entries []chatproto.HistoryEntry)

// rateWindow tracks admitted-request timestamps within the trailing
// RateWindow duration so the ceiling holds over any sliding span, not just
// between fixed reset boundaries.
type rateWindow struct {
	hits []time.Time
}

type replayEntry struct {
	recordedAt time.Time
}

// Actor is a single visitor's session state, serialized by its own mutex:
// every method takes mu, so concurrent operations on one actor run one at
// a time. The Host hands out one *Actor per session_id, so all operations
// for that id go through the same mutex.
type Actor struct {
	mu sync.Mutex

	id              string
	history         []chatproto.HistoryEntry
	cartID          string
	lastProductView *chatproto.ProductView
	productViews    []chatproto.ProductView
	rate            rateWindow
	replayNonces    map[string]replayEntry
	lastActivity    time.Time

	archive ArchiveFunc
	logger  *slog.Logger
}

func newActor(id string, archive ArchiveFunc, logger *slog.Logger) *Actor {
	return &Actor{
		id:           id,
		replayNonces: make(map[string]replayEntry),
		lastActivity: time.Now(),
		archive:      archive,
		logger:       logger.With("component", "session_actor", "session_id", id),
	}
}

// Append pushes entry and trims history to HistoryCap, offering overflow
// to the archive collaborator asynchronously once ArchiveWatermark is
// exceeded.
func (a *Actor) Append(entry chatproto.HistoryEntry) {
	a.mu.Lock()
	a.lastActivity = time.Now()
	a.history = append(a.history, entry)

	var toArchive []chatproto.HistoryEntry
	if len(a.history) > ArchiveWatermark {
		overflow := len(a.history) - HistoryCap
		if overflow > 0 {
			toArchive = append(toArchive, a.history[:overflow]...)
		}
	}
	if len(a.history) > HistoryCap {
		drop := len(a.history) - HistoryCap
		a.history = append([]chatproto.HistoryEntry(nil), a.history[drop:]...)
	}
	archive := a.archive
	sessionID := a.id
	a.mu.Unlock()

	if archive != nil && len(toArchive) > 0 {
		go archive(sessionID, toArchive)
	}
}

// History returns a defensive copy of the stored sequence.
func (a *Actor) History() []chatproto.HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]chatproto.HistoryEntry, len(a.history))
	copy(out, a.history)
	return out
}

// SetCartID replaces the stored cart id.
func (a *Actor) SetCartID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cartID = id
	a.lastActivity = time.Now()
}

// CartID returns the stored cart id.
func (a *Actor) CartID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cartID
}

// ID returns the actor's session id.
func (a *Actor) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

// TrackProductView records a storefront product impression, updating
// last_product_view and trimming the ring buffer to ProductViewCap.
func (a *Actor) TrackProductView(view chatproto.ProductView) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastActivity = time.Now()
	v := view
	a.lastProductView = &v
	a.productViews = append(a.productViews, view)
	if len(a.productViews) > ProductViewCap {
		drop := len(a.productViews) - ProductViewCap
		a.productViews = append([]chatproto.ProductView(nil), a.productViews[drop:]...)
	}
}

// ProductViews returns a defensive copy of the retained views.
func (a *Actor) ProductViews() []chatproto.ProductView {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]chatproto.ProductView, len(a.productViews))
	copy(out, a.productViews)
	return out
}

// ReplayCheck returns true if signature was already recorded; otherwise
// it records signature and returns false. Entries older than ReplayTTL
// are swept lazily on each call, bounding memory without a background
// goroutine per actor.
func (a *Actor) ReplayCheck(signature string) (used bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	for sig, e := range a.replayNonces {
		if now.Sub(e.recordedAt) > ReplayTTL {
			delete(a.replayNonces, sig)
		}
	}
	if _, ok := a.replayNonces[signature]; ok {
		return true
	}
	a.replayNonces[signature] = replayEntry{recordedAt: now}
	return false
}

// RateOK increments the sliding request counter and reports whether the
// caller stays within RateLimit for the current RateWindow.
func (a *Actor) RateOK() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-RateWindow)
	drop := 0
	for drop < len(a.rate.hits) && a.rate.hits[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		a.rate.hits = append(a.rate.hits[:0], a.rate.hits[drop:]...)
	}
	if len(a.rate.hits) >= RateLimit {
		return false
	}
	a.rate.hits = append(a.rate.hits, now)
	return true
}

// IdleSince reports how long the actor has gone without an operation,
// used by the Host's eviction sweep.
func (a *Actor) IdleSince() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.lastActivity)
}
