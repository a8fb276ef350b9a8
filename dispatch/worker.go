package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArnaudSwail/ckmon/entry"
)

// pollInterval bounds how long the worker can sleep before it must
// re-check for pending config, timer deadlines, and the force-close
// flag (spec.md §4.1 "a short poll timeout (≈100ms)").
const pollInterval = 100 * time.Millisecond

// activeSink is one entry in the worker's active set, kept in
// registration order (spec.md §4.1 "dispatched to sinks in
// registration order").
type activeSink struct {
	kind string
	sink Sink
}

// atomicConfig publishes the dispatcher's current Config for lock-free
// reads from producer goroutines (the minimal/external filters are
// checked on every emitted entry, off the hot worker goroutine).
type atomicConfig struct {
	v atomic.Value
}

func (a *atomicConfig) Store(c Config) { a.v.Store(c) }

func (a *atomicConfig) Load() Config {
	c, _ := a.v.Load().(Config)
	return c
}

// worker owns the dispatcher's single consumer goroutine. Every field
// here is touched only from run() and its helpers, except cfg (atomic,
// safe from any goroutine), forceClose (atomic), and pending (guarded
// by pendingMu, written to by ApplyConfig callers).
type worker struct {
	q        *queue
	registry *Registry
	critical *CriticalErrorCollector
	self     *SelfMonitor

	pendingMu sync.Mutex
	pending   []*pendingConfig

	forceClose atomic.Bool
	dropped    atomic.Int64
	done       chan struct{}

	cfg          atomicConfig
	active       []activeSink
	nextTimer    time.Time
	nextExtTimer time.Time
}

func newWorker(q *queue, registry *Registry, critical *CriticalErrorCollector, initial Config) *worker {
	w := &worker{
		q:        q,
		registry: registry,
		critical: critical,
		done:     make(chan struct{}),
	}
	w.self = newSelfMonitor(func(e *entry.Entry) { q.push(e) })
	w.cfg.Store(initial)
	go func() {
		w.applyConfig(initial)
		w.run()
	}()
	return w
}

// enqueueConfig queues cfg for application on the next iteration,
// returning a channel closed once the worker has consumed the batch
// containing cfg (whether or not cfg itself was the one finally
// applied — superseded configs still release their waiters, per
// spec.md §4.2's "last write wins" coalescing).
func (w *worker) enqueueConfig(cfg Config) <-chan struct{} {
	pc := &pendingConfig{cfg: cfg, done: make(chan struct{})}
	w.pendingMu.Lock()
	w.pending = append(w.pending, pc)
	w.pendingMu.Unlock()
	select {
	case w.q.notify <- struct{}{}:
	default:
	}
	return pc.done
}

func (w *worker) pendingLen() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}

func (w *worker) takePending() []*pendingConfig {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	out := w.pending
	w.pending = nil
	return out
}

func (w *worker) run() {
	defer close(w.done)
	defer w.deactivateAll()

	for {
		if w.forceClose.Load() {
			w.dropped.Add(int64(len(w.q.drain())))
			return
		}

		batch := w.takePending()
		if len(batch) > 0 {
			last := batch[len(batch)-1].cfg
			w.applyConfig(last)
			w.cfg.Store(last)
			for _, pc := range batch {
				close(pc.done)
			}
		}

		items := w.q.drain()
		for _, e := range items {
			w.dispatch(e)
		}

		now := time.Now()
		w.fireTimers(now)

		if w.q.isDrained() && w.pendingLen() == 0 {
			return
		}

		select {
		case <-w.q.notify:
		case <-time.After(pollInterval):
		}
	}
}

// applyConfig reconciles the active set against cfg.Handlers,
// preferring ApplyConfiguration over a full Deactivate+Activate cycle
// so sinks can preserve identity (an open file handle, a warmed
// connection) across reconfiguration (spec.md §4.2).
func (w *worker) applyConfig(cfg Config) {
	used := make([]bool, len(w.active))
	next := make([]activeSink, 0, len(cfg.Handlers))

	for _, d := range cfg.Handlers {
		reused := false
		for i, as := range w.active {
			if used[i] || as.kind != d.Kind() {
				continue
			}
			ok, err := as.sink.ApplyConfiguration(d)
			if err != nil {
				w.fault(as, err)
				used[i] = true
				continue
			}
			if !ok {
				// declined: keep probing later active sinks of the
				// same kind, per spec.md §4.2 "the first that returns
				// true keeps the sink".
				continue
			}
			used[i] = true
			next = append(next, as)
			reused = true
			break
		}
		if reused {
			continue
		}
		s, err := w.registry.New(d)
		if err != nil {
			w.critical.report(d.Kind(), err)
			continue
		}
		ok, err := s.Activate(w.self)
		if err != nil {
			w.critical.report(d.Kind(), err)
			continue
		}
		if !ok {
			continue
		}
		next = append(next, activeSink{kind: d.Kind(), sink: s})
	}

	for i, as := range w.active {
		if !used[i] {
			w.deactivate(as)
		}
	}

	if cfg.TimerPeriod > 0 {
		w.nextTimer = time.Now().Add(cfg.TimerPeriod)
	} else {
		w.nextTimer = time.Time{}
	}
	if cfg.ExternalTimerPeriod > 0 {
		w.nextExtTimer = time.Now().Add(cfg.ExternalTimerPeriod)
	} else {
		w.nextExtTimer = time.Time{}
	}

	w.active = next
}

func (w *worker) dispatch(e *entry.Entry) {
	for i := 0; i < len(w.active); i++ {
		as := w.active[i]
		if err := as.sink.Handle(w.self, e); err != nil {
			w.fault(as, err)
			w.active = append(w.active[:i], w.active[i+1:]...)
			i--
		}
	}
}

func (w *worker) fireTimers(now time.Time) {
	cfg := w.cfg.Load()

	if !w.nextTimer.IsZero() && !now.Before(w.nextTimer) {
		for i := 0; i < len(w.active); i++ {
			as := w.active[i]
			if err := as.sink.OnTimer(w.self, cfg.TimerPeriod); err != nil {
				w.fault(as, err)
				w.active = append(w.active[:i], w.active[i+1:]...)
				i--
			}
		}
		w.nextTimer = now.Add(cfg.TimerPeriod)
	}

	if !w.nextExtTimer.IsZero() && !now.Before(w.nextExtTimer) {
		if cfg.OnExternalTick != nil {
			cfg.OnExternalTick()
		}
		w.nextExtTimer = now.Add(cfg.ExternalTimerPeriod)
	}
}

// fault quarantines a misbehaving sink: it is deactivated best-effort
// and reported to the critical-error collector, and its own private
// diagnostic line is written via the worker's self monitor.
func (w *worker) fault(as activeSink, err error) {
	w.critical.report(as.kind, err)
	w.self.Line(entry.LevelError, "sink quarantined: "+as.kind+": "+err.Error(), entry.Tags{})
	_ = as.sink.Deactivate(w.self)
}

func (w *worker) deactivate(as activeSink) {
	if err := as.sink.Deactivate(w.self); err != nil {
		w.critical.report(as.kind, err)
	}
}

func (w *worker) deactivateAll() {
	for _, as := range w.active {
		w.deactivate(as)
	}
	w.active = nil
}
