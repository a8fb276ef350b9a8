package dispatch

import "errors"

var (
	// ErrStopped is returned by ApplyConfig once the dispatcher has
	// been stopped.
	ErrStopped = errors.New("ckmon/dispatch: dispatcher is stopped")

	// ErrUnknownDescriptorKind is returned by Registry.New when no
	// factory is registered for a Descriptor's Kind.
	ErrUnknownDescriptorKind = errors.New("ckmon/dispatch: no sink factory registered for descriptor kind")

	// ErrForceClosed is observable via Finalize's return value when the
	// deadline elapsed before the queue drained.
	ErrForceClosed = errors.New("ckmon/dispatch: finalize deadline elapsed, forced close")
)
