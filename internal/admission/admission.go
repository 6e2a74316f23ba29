// Package admission implements the per-shop sliding-window admission
// controller (C2, spec §4.2). It is adapted from the teacher's
// token-bucket internal/ratelimit.Limiter but a sliding window instead of
// a bucket: the spec's session-level rate_counter (§4.4) already uses a
// window, and giving the shop-level gate the same semantics keeps the
// two admission layers behaviorally consistent.
package admission

import (
	"log/slog"
	"sync"
	"time"
)

// Config controls the shared admission gate.
type Config struct {
	Limit  int
	Window time.Duration
}

// window tracks admitted request timestamps within the trailing Window
// duration. hits is kept in arrival order so the oldest entries can be
// dropped off the front; it behaves as a ring via the trim in admit.
type window struct {
	mu   sync.Mutex
	hits []time.Time
}

// Controller gates requests per shop_key with a sliding window, failing
// open (and logging) on unexpected internal errors per spec §4.2.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	windows map[string]*window
}

// New builds a Controller. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	return &Controller{
		cfg:     cfg,
		logger:  logger.With("component", "admission"),
		windows: make(map[string]*window),
	}
}

// Decision is the result of Admit.
type Decision struct {
	Allowed      bool
	RetryAfterMs int64
}

// Admit checks shopKey against the sliding window, incrementing the
// counter when admitted. Any internal inconsistency fails open, per
// spec §4.2 ("Fail-open on internal error, but log").
func (c *Controller) Admit(shopKey string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("admission panic recovered, failing open", "error", r, "shop_key", shopKey)
			d = Decision{Allowed: true}
		}
	}()

	now := time.Now()
	c.mu.Lock()
	w, ok := c.windows[shopKey]
	if !ok {
		w = &window{}
		c.windows[shopKey] = w
	}
	c.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-c.cfg.Window)
	drop := 0
	for drop < len(w.hits) && w.hits[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.hits = append(w.hits[:0], w.hits[drop:]...)
	}

	if len(w.hits) >= c.cfg.Limit {
		retryAfter := c.cfg.Window - now.Sub(w.hits[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{Allowed: false, RetryAfterMs: retryAfter.Milliseconds()}
	}

	w.hits = append(w.hits, now)
	return Decision{Allowed: true}
}

// Prune evicts shop windows whose most recent admitted request is older
// than olderThan (or that hold no requests), bounding memory for shops
// seen once and never again. Nothing in this repository calls it; the
// session eviction sweep (internal/session) evicts only session actors.
func (c *Controller) Prune(olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, w := range c.windows {
		w.mu.Lock()
		stale := len(w.hits) == 0 || w.hits[len(w.hits)-1].Before(cutoff)
		w.mu.Unlock()
		if stale {
			delete(c.windows, key)
		}
	}
}
