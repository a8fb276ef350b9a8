// Package ckmon wires the dispatcher, sink, and producer packages into
// the ambient, process-level singleton described in spec.md §6
// ("Process-level singleton"): ensure-active-default, dispose, and the
// critical-error-to-external-log re-emission hook.
package ckmon

import (
	"sync"

	"github.com/ArnaudSwail/ckmon/dispatch"
	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/ArnaudSwail/ckmon/producer"
	"github.com/ArnaudSwail/ckmon/sink"
)

// criticalErrorTag is the fixed tag attached to every critical error
// re-emitted via the external log path (spec.md §6).
var criticalErrorTag = entry.NewTags(nil, "CriticalError")

var (
	defaultMu   sync.Mutex
	defaultDisp *dispatch.Dispatcher
)

// NewRegistry returns a Registry with the four built-in sink kinds
// (text-file, binary-file, console, pipe) registered.
func NewRegistry() *dispatch.Registry {
	reg := dispatch.NewRegistry()
	sink.RegisterTextFile(reg)
	sink.RegisterBinaryFile(reg)
	sink.RegisterConsole(reg)
	sink.RegisterPipe(reg)
	return reg
}

// EnsureActiveDefault returns the process-wide default Dispatcher,
// creating it from cfg if none exists yet, or applying cfg to the
// existing one otherwise. The default dispatcher always re-emits its
// own critical errors via the external log path, tagged
// "CriticalError" (spec.md §6).
func EnsureActiveDefault(cfg dispatch.Config) *dispatch.Dispatcher {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultDisp != nil {
		_ = defaultDisp.ApplyConfig(cfg, false)
		return defaultDisp
	}

	d := dispatch.New(NewRegistry(), cfg)
	d.CriticalErrors().Subscribe(func(ce dispatch.CriticalError) {
		producer.LogException(d,
			entry.LevelFilter{Level: entry.LevelError},
			"critical error in sink "+ce.SinkKind,
			&entry.ExceptionData{Message: ce.Err.Error(), Type: "sink-fault"},
			criticalErrorTag,
		)
	})
	defaultDisp = d
	return d
}

// DefaultDispatcher returns the current default Dispatcher and true,
// or (nil, false) if none is active.
func DefaultDispatcher() (*dispatch.Dispatcher, bool) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultDisp, defaultDisp != nil
}

// Dispose finalizes the default Dispatcher (if any) and resets the
// ambient slot to empty, per spec.md §6's "dispose" operation.
func Dispose() {
	defaultMu.Lock()
	d := defaultDisp
	defaultDisp = nil
	defaultMu.Unlock()

	if d != nil {
		_ = d.Finalize(0)
	}
}
