package dispatch

import (
	"time"

	"github.com/ArnaudSwail/ckmon/entry"
)

// Config is the dispatcher's full reconfigurable state (spec.md §4.2,
// §6). Submitting a new Config via Dispatcher.ApplyConfig never blocks
// producers; the worker applies it at the start of its next iteration.
type Config struct {
	// Handlers lists the desired sink shape, in the order sinks should
	// receive entries. The worker reconciles this against its current
	// active set, preferring ApplyConfiguration (identity-preserving)
	// over Deactivate+Activate where a sink accepts the new Descriptor.
	Handlers []Descriptor

	// MinimalFilter is the lower-bound filter applied to multicast
	// producer traffic before it is even queued (spec.md §4.8).
	MinimalFilter entry.Filter

	// ExternalLogLevelFilter lower-bounds the external (contextless)
	// log path, which has no group-level filter of its own.
	ExternalLogLevelFilter entry.Level

	// TimerPeriod is how often OnTimer fires for each active sink.
	// Zero disables timer ticks.
	TimerPeriod time.Duration

	// ExternalTimerPeriod drives a second, independent timer that
	// invokes OnExternalTick; sinks are not notified of it. Zero
	// disables it.
	ExternalTimerPeriod time.Duration

	// OnExternalTick, if set, is invoked by the worker every
	// ExternalTimerPeriod instead of/alongside per-sink OnTimer calls
	// (spec.md §4.1 step 4 "invoke the external timer callback (used
	// for dead-client GC)"). It runs on the worker goroutine, so it
	// must not block; producer.Registry.SweepFunc returns a value
	// suitable for this field.
	OnExternalTick func()
}

// pendingConfig is one queued ApplyConfig call. Multiple pending
// configs coalesce to the last one queued before the worker next reads
// them (spec.md §4.2 "last write wins"); every waiter for a superseded
// config is still released once the worker consumes the batch, since
// from the caller's point of view "my config was applied, possibly
// then immediately replaced" is indistinguishable from a well-ordered
// apply.
type pendingConfig struct {
	cfg  Config
	done chan struct{}
}
