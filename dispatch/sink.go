package dispatch

import (
	"sync"
	"time"

	"github.com/ArnaudSwail/ckmon/entry"
)

// Descriptor is an opaque, comparable configuration value identifying a
// sink's desired runtime shape. Concrete sink packages define their own
// Descriptor implementations (e.g. a file path + rotation policy) and
// register a Factory for their Kind with a Registry.
//
// Descriptor values are expected to support equality comparison (==) so
// that ApplyConfiguration's "same shape, different detail" probing can
// decide whether an existing Sink may be reused in place — spec.md
// §4.2 "identity-preserving reconfiguration".
type Descriptor interface {
	// Kind identifies which Factory builds this descriptor's Sink.
	// Sink packages should return a constant, package-qualified string.
	Kind() string
}

// Factory builds a fresh Sink from a Descriptor. Factories must not
// retain the Descriptor beyond validating and copying what they need.
type Factory func(d Descriptor) (Sink, error)

// Sink receives dispatched entries from exactly one dispatcher worker
// goroutine; none of its methods are called concurrently (spec.md §5
// "single consumer"). A Sink returning an error from ApplyConfiguration,
// Handle or OnTimer is quarantined: Deactivate is called once,
// best-effort, and it is dropped from future dispatch. An error from
// Activate is reported and the sink never joins the active set
// (Deactivate is not called); an error from Deactivate is reported.
type Sink interface {
	// Activate is called once when the sink joins the active set. The
	// monitor is the dispatcher worker's private self-diagnostic
	// client; sinks may log into it (e.g. "opened log file %s"). A
	// false return (with a nil error) means "do not add me" — the sink
	// opted out without it being a fault.
	Activate(monitor *SelfMonitor) (bool, error)

	// ApplyConfiguration offers a replacement Descriptor to an already
	// active sink. Returning true means the sink adopted the new
	// configuration in place and must continue to be used; returning
	// false means the caller should Deactivate this sink and construct
	// a fresh one from the Factory instead.
	ApplyConfiguration(d Descriptor) (bool, error)

	// Handle delivers one entry. Ordering across calls matches
	// arrival order at the dispatcher queue.
	Handle(monitor *SelfMonitor, e *entry.Entry) error

	// OnTimer fires roughly every period while the sink is active, used
	// for flushing buffered writers or bounded-cost housekeeping.
	OnTimer(monitor *SelfMonitor, period time.Duration) error

	// Deactivate releases any resources. Called exactly once, whether
	// the sink is being dropped for reconfiguration, quarantine, or
	// dispatcher shutdown.
	Deactivate(monitor *SelfMonitor) error
}

// Registry maps Descriptor kinds to the Factory that builds them. It
// holds no reflection — sink packages register themselves explicitly,
// typically from an init() or a top-level wiring function.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates kind with f, overwriting any prior factory for
// the same kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// New builds a Sink for d using the registered factory for d.Kind().
func (r *Registry) New(d Descriptor) (Sink, error) {
	r.mu.RLock()
	f, ok := r.factories[d.Kind()]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownDescriptorKind
	}
	return f(d)
}

// SelfMonitor is the dispatcher worker's own private, unicast logging
// client. It is never visible to external producers; sinks receive it
// as a parameter so they can report their own diagnostics (a file
// opened, a write failure swallowed) through the same pipeline as
// everything else. Its entries are unicast (no Multicast fields), which
// sets them apart from producer-client and external-log traffic.
type SelfMonitor struct {
	src    *entry.Source
	depth  entry.DepthTracker
	submit func(*entry.Entry)
}

func newSelfMonitor(submit func(*entry.Entry)) *SelfMonitor {
	return &SelfMonitor{src: &entry.Source{}, submit: submit}
}

// Line emits a single unicast log line at level, tagged with tags.
func (m *SelfMonitor) Line(level entry.Level, text string, tags entry.Tags) {
	ts := m.src.Next(time.Now())
	m.submit(&entry.Entry{
		Kind:      entry.KindLine,
		Timestamp: ts,
		Level:     entry.LevelFilter{Level: level},
		Text:      text,
		HasText:   true,
		Tags:      tags,
	})
}

// Exception emits a line carrying structured exception data, as the
// collector path produces when a sink faults.
func (m *SelfMonitor) Exception(level entry.Level, text string, ex *entry.ExceptionData, tags entry.Tags) {
	ts := m.src.Next(time.Now())
	m.submit(&entry.Entry{
		Kind:      entry.KindLine,
		Timestamp: ts,
		Level:     entry.LevelFilter{Level: level},
		Text:      text,
		HasText:   true,
		Tags:      tags,
		Exception: ex,
	})
}
