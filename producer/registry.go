package producer

import (
	"sync"
	"time"
)

// Handle identifies one Client registered with a Registry. It remains
// valid until the Client is explicitly released or reaped by Sweep.
type Handle uint64

// Registry tracks live Clients via explicit handles rather than
// finalizer-driven weak references: a caller Registers a Client,
// periodically Touches its handle to prove liveness, and Sweep reaps
// handles that have gone quiet for longer than maxAge (spec.md §9,
// "replace the weak-reference client list with an explicit,
// handle-based registry plus a periodic liveness sweep").
type Registry struct {
	mu      sync.Mutex
	next    Handle
	clients map[Handle]*Client
	lastSeen map[Handle]time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:  make(map[Handle]*Client),
		lastSeen: make(map[Handle]time.Time),
	}
}

// Register adds c and returns its Handle.
func (r *Registry) Register(c *Client) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	r.clients[h] = c
	r.lastSeen[h] = time.Now()
	return h
}

// Touch records h as alive as of now, preventing it from being reaped
// by a Sweep until maxAge elapses again.
func (r *Registry) Touch(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[h]; ok {
		r.lastSeen[h] = time.Now()
	}
}

// Release explicitly removes h, e.g. when a producer shuts down
// cleanly and does not want to wait for a Sweep.
func (r *Registry) Release(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, h)
	delete(r.lastSeen, h)
}

// Get returns the Client for h, or nil if it is not registered.
func (r *Registry) Get(h Handle) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[h]
}

// Len returns the number of currently registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// StartAutoSweep runs Sweep(maxAge) every interval until the returned
// stop function is called. It is the registry's own housekeeping
// cadence, independent of any Dispatcher's internal timer.
func (r *Registry) StartAutoSweep(interval, maxAge time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				r.Sweep(maxAge)
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// SweepFunc returns a closure calling Sweep(maxAge), discarding the
// reaped slice, suitable for wiring into dispatch.Config.OnExternalTick
// so a Dispatcher's own ExternalTimerPeriod drives this Registry's
// dead-client GC (spec.md §4.1 step 4, §6 "ExternalTimerDuration...
// drives dead-client GC").
func (r *Registry) SweepFunc(maxAge time.Duration) func() {
	return func() { r.Sweep(maxAge) }
}

// Sweep reaps every handle last touched more than maxAge ago, returning
// the Clients that were reaped. Callers typically run Sweep from a
// ticker alongside the dispatcher's own timer cadence.
func (r *Registry) Sweep(maxAge time.Duration) []*Client {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []*Client
	for h, t := range r.lastSeen {
		if t.Before(cutoff) {
			reaped = append(reaped, r.clients[h])
			delete(r.clients, h)
			delete(r.lastSeen, h)
		}
	}
	return reaped
}
