package transport

import (
	"net/http"
	"sync"
)

// Tracker counts in-flight requests and carries the draining flag set
// during graceful shutdown. The readiness endpoint reports draining so
// load balancers stop routing new work while existing requests finish.
//
// All methods are safe for concurrent access.
type Tracker struct {
	mu       sync.Mutex
	inflight int
	draining bool
}

// NewTracker creates a tracker with no in-flight requests.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Add records the start of a request.
func (t *Tracker) Add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight++
}

// Done records the completion of a request.
func (t *Tracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight--
}

// InFlight returns the number of requests currently being served.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight
}

// SetDraining marks the tracker as draining. There is no way back; a
// draining server only shuts down.
func (t *Tracker) SetDraining() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.draining = true
}

// Draining reports whether shutdown has begun.
func (t *Tracker) Draining() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draining
}

// Track returns middleware that counts each request in the tracker for
// the duration of its handling.
func Track(t *Tracker) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Add()
			defer t.Done()
			next.ServeHTTP(w, r)
		})
	}
}
