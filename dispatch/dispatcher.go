package dispatch

import (
	"sync"
	"time"

	"github.com/ArnaudSwail/ckmon/entry"
)

// Dispatcher is the single-consumer log pipeline: producers Submit
// entries from any number of goroutines, a private worker goroutine
// drains them in order and fans them out to the active sink set
// (spec.md §4.1).
type Dispatcher struct {
	q        *queue
	w        *worker
	registry *Registry
	critical *CriticalErrorCollector

	stopOnce  sync.Once
	stoppedCh chan struct{}
}

// New constructs a Dispatcher with the given sink Registry and initial
// Config, and starts its worker goroutine immediately. The initial
// Config's sinks are activated on that goroutine, before it dispatches
// any entry.
func New(registry *Registry, initial Config) *Dispatcher {
	q := newQueue()
	critical := newCriticalErrorCollector()
	w := newWorker(q, registry, critical, initial)

	return &Dispatcher{
		q:         q,
		w:         w,
		registry:  registry,
		critical:  critical,
		stoppedCh: make(chan struct{}),
	}
}

// Submit enqueues e for dispatch. It never blocks and never errors; it
// returns false only once the dispatcher has been stopped, in which
// case e is silently dropped (spec.md §4.1 "Backpressure: none",
// §7 "submissions after Stop are dropped, not errors").
func (d *Dispatcher) Submit(e *entry.Entry) bool {
	return d.q.push(e)
}

// Filter returns the currently active multicast MinimalFilter,
// read without blocking the worker (spec.md §4.8).
func (d *Dispatcher) Filter() entry.Filter {
	return d.w.cfg.Load().MinimalFilter
}

// ExternalFilter returns the currently active external log level floor.
func (d *Dispatcher) ExternalFilter() entry.Level {
	return d.w.cfg.Load().ExternalLogLevelFilter
}

// Stats is a snapshot of the dispatcher's lifetime counters.
type Stats struct {
	// Dropped counts entries still queued, undispatched, at the moment
	// Finalize force-closed the worker on a deadline.
	Dropped int64
}

// Stats returns the dispatcher's current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{Dropped: d.w.dropped.Load()}
}

// CriticalErrors returns the dispatcher's critical-error collector, for
// subscribing to sink faults (e.g. to forward them into another log
// sink or an external alert).
func (d *Dispatcher) CriticalErrors() *CriticalErrorCollector {
	return d.critical
}

// ApplyConfig queues cfg for application on the worker's next
// iteration. If wait is true, ApplyConfig blocks until the worker has
// consumed the batch containing cfg (which, under coalescing, may by
// then have been superseded by a later ApplyConfig call — see
// spec.md §4.2). It returns ErrStopped if called after Stop.
func (d *Dispatcher) ApplyConfig(cfg Config, wait bool) error {
	select {
	case <-d.stoppedCh:
		return ErrStopped
	default:
	}
	done := d.w.enqueueConfig(cfg)
	if wait {
		select {
		case <-done:
		case <-d.w.done:
		}
	}
	return nil
}

// Stop closes the dispatcher to new submissions and returns true the
// first time it is called (subsequent calls are no-ops returning
// false). It does not wait for the queue to drain; call Finalize for
// that.
func (d *Dispatcher) Stop() bool {
	stopped := false
	d.stopOnce.Do(func() {
		stopped = true
		d.q.close()
		close(d.stoppedCh)
	})
	return stopped
}

// StoppedToken returns a channel closed once Stop has been called.
func (d *Dispatcher) StoppedToken() <-chan struct{} {
	return d.stoppedCh
}

// Finalize stops the dispatcher (if not already stopped) and waits for
// the worker to drain and exit, up to deadline. If the deadline
// elapses first, it force-closes the worker — which must observe the
// flag and exit on its next iteration, typically within one
// pollInterval — and returns ErrForceClosed. A deadline of zero means
// "wait forever".
func (d *Dispatcher) Finalize(deadline time.Duration) error {
	d.Stop()

	if deadline <= 0 {
		<-d.w.done
		return nil
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-d.w.done:
		return nil
	case <-timer.C:
		d.w.forceClose.Store(true)
		select {
		case d.q.notify <- struct{}{}:
		default:
		}
		<-d.w.done
		return ErrForceClosed
	}
}
