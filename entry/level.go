package entry

import "strconv"

// Level is the severity of a log entry.
type Level uint8

const (
	LevelDebug Level = iota
	LevelTrace
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (x Level) String() string {
	switch x {
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "level(" + strconv.FormatUint(uint64(x), 10) + ")"
	}
}

// LevelFilter pairs a Level with the IsFiltered bit: "upstream already
// decided" whether this entry passed a filter. Decoders must preserve
// IsFiltered bit-for-bit; it is not derived from Level.
type LevelFilter struct {
	Level      Level
	IsFiltered bool
}

// Filter is a paired {group, line} filter threshold, e.g. MinimalFilter
// in the configuration surface.
type Filter struct {
	Group Level
	Line  Level
}

// Allows reports whether lf should be emitted given this Filter's Line
// threshold. A LevelFilter with IsFiltered set always passes, regardless
// of threshold, per the external-log filter-gate semantics (spec.md §4.8).
func (f Filter) Allows(lf LevelFilter) bool {
	if lf.IsFiltered {
		return true
	}
	return lf.Level >= f.Line
}

// AllowsGroup reports whether lf should be emitted given this Filter's
// Group threshold, the paired counterpart to Allows used for
// OpenGroup/CloseGroup gating rather than Line entries.
func (f Filter) AllowsGroup(lf LevelFilter) bool {
	if lf.IsFiltered {
		return true
	}
	return lf.Level >= f.Group
}
