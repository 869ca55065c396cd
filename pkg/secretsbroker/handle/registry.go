// Package handle implements the opaque, short-lived credential_handle
// the secrets broker returns from lookup instead of plaintext, per
// spec.md §4.6's consumer contract: the execution layer carries the
// handle, and only the automation client resolves it just-in-time at
// the target-host boundary.
package handle

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long a handle remains redeemable.
const DefaultTTL = 90 * time.Second

type entry struct {
	plaintext string
	expiresAt time.Time
}

// Registry issues and redeems one-time, TTL-bounded handles.
type Registry struct {
	mu  sync.Mutex
	ttl time.Duration
	byHandle map[string]entry
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{ttl: ttl, byHandle: make(map[string]entry)}
}

// Issue mints a new opaque handle bound to plaintext.
func (r *Registry) Issue(plaintext string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := uuid.NewString()
	r.byHandle[h] = entry{plaintext: plaintext, expiresAt: time.Now().Add(r.ttl)}
	return h
}

// Redeem consumes a handle, returning its bound plaintext exactly once;
// a second Redeem (or a Redeem past expiry) fails.
func (r *Registry) Redeem(h string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byHandle[h]
	delete(r.byHandle, h)
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.plaintext, true
}

// Purge drops every expired handle; callers run this on a timer so the
// registry doesn't grow unbounded from handles nobody redeemed.
func (r *Registry) Purge(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for h, e := range r.byHandle {
		if now.After(e.expiresAt) {
			delete(r.byHandle, h)
			removed++
		}
	}
	return removed
}
