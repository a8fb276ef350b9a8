package entry

import "errors"

// ErrNegativeDepth is returned by DepthTracker.Close when called at
// depth 0, which would violate the group-depth invariant (spec.md §3,
// §8 "Group-depth" testable property).
var ErrNegativeDepth = errors.New("ckmon/entry: close-group at depth 0")

// DepthTracker tracks one monitor's group-depth: the count of currently
// open, unmatched OpenGroup entries. It is not safe for concurrent use;
// callers (producer.Client) serialize access per monitor.
type DepthTracker struct {
	depth uint32
}

// Depth returns the current group depth.
func (d *DepthTracker) Depth() uint32 { return d.depth }

// Open increments the depth and returns the depth *before* the
// increment (the depth at which the OpenGroup entry itself is recorded).
func (d *DepthTracker) Open() uint32 {
	before := d.depth
	d.depth++
	return before
}

// Close decrements the depth and returns the depth *before* the
// decrement. It errors if depth is already 0.
func (d *DepthTracker) Close() (uint32, error) {
	if d.depth == 0 {
		return 0, ErrNegativeDepth
	}
	before := d.depth
	d.depth--
	return before, nil
}
