package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedSenders caps the number of tracked keys so rotating source
	// addresses cannot exhaust memory.
	maxTrackedSenders = 4096

	defaultWindow  = 60 * time.Second
	defaultMaxHits = 30
)

type hitWindow struct {
	start time.Time
	count int
}

// WebhookRateLimiter bounds per-sender webhook traffic with a fixed window
// counter. Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	maxHits int
	entries map[string]*hitWindow
}

// NewWebhookRateLimiter creates a limiter with the default window
// (30 hits per 60s per key).
func NewWebhookRateLimiter() *WebhookRateLimiter {
	return &WebhookRateLimiter{
		window:  defaultWindow,
		maxHits: defaultMaxHits,
		entries: make(map[string]*hitWindow),
	}
}

// Allow reports whether the key is within its rate budget. Stale entries are
// pruned when the tracked set approaches the cap.
func (r *WebhookRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if len(r.entries) >= maxTrackedSenders {
		for k, e := range r.entries {
			if now.Sub(e.start) >= r.window {
				delete(r.entries, k)
			}
		}
		// Still at cap after pruning: evict arbitrarily rather than grow.
		for len(r.entries) >= maxTrackedSenders {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.start) >= r.window {
		r.entries[key] = &hitWindow{start: now, count: 1}
		return true
	}
	e.count++
	return e.count <= r.maxHits
}
