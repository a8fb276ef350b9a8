package entry

import "github.com/google/uuid"

// Kind discriminates the three base log-entry variants.
type Kind uint8

const (
	KindLine Kind = iota
	KindOpenGroup
	KindCloseGroup
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindOpenGroup:
		return "open-group"
	case KindCloseGroup:
		return "close-group"
	default:
		return "unknown"
	}
}

// PrevKind is the kind of the previous entry emitted for a monitor, with
// an additional sentinel value (PrevKindNone) meaning "no prior entry".
type PrevKind uint8

const (
	PrevKindNone PrevKind = iota
	PrevKindLine
	PrevKindOpenGroup
	PrevKindCloseGroup
)

// FromKind converts a base Kind to the corresponding PrevKind.
func FromKind(k Kind) PrevKind {
	switch k {
	case KindLine:
		return PrevKindLine
	case KindOpenGroup:
		return PrevKindOpenGroup
	case KindCloseGroup:
		return PrevKindCloseGroup
	default:
		return PrevKindNone
	}
}

// ZeroMonitorID is the sentinel monitor identity used by the external
// (contextless) log path.
var ZeroMonitorID uuid.UUID

// Multicast carries the fields that make a single interleaved stream
// self-descriptive per monitor: the monitor's identity, its group depth
// at the time of this entry, and a back-pointer to its previous entry.
type Multicast struct {
	MonitorID     uuid.UUID
	GroupDepth    uint32
	PrevTimestamp Timestamp
	PrevKind      PrevKind
}

// Entry is one serialisable log record. The Kind field selects which of
// Text, Conclusions is meaningful; Multicast is non-nil iff this is a
// multicast-wrapped entry (spec.md §3 "Log entry (variant)").
//
// Invariants (enforced by the producer client, not by Entry itself):
// group-depth >= 0 for any monitor; CloseGroup only appears when depth
// > 0 and decrements it; OpenGroup increments it; Line leaves it
// unchanged.
type Entry struct {
	Kind      Kind
	Timestamp Timestamp
	Level     LevelFilter

	Text    string
	HasText bool

	Tags Tags

	File string
	Line int
	// HasFileLine mirrors the wire "present" bit for file/line: File and
	// Line are written only when it is set, and decoders set it when
	// they read them back.
	HasFileLine bool

	Exception *ExceptionData

	// Conclusions is meaningful only when Kind == KindCloseGroup.
	Conclusions []string

	// Multicast is non-nil for entries produced via a producer client
	// (as opposed to the unicast pipe protocol, spec.md §4.9).
	Multicast *Multicast
}

// IsMulticast reports whether e carries per-monitor multicast fields.
func (e *Entry) IsMulticast() bool { return e.Multicast != nil }
