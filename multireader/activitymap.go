package multireader

import (
	"sort"

	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/google/uuid"
)

// Segment is one monitor's activity within a single indexed file.
type Segment struct {
	FileIndex   int
	FirstOffset int64
	LastOffset  int64
	FirstDepth  uint32
	LastDepth   uint32
	FirstTime   entry.Timestamp
	LastTime    entry.Timestamp
	Tags        entry.Tags
}

// MonitorActivity is one monitor's ordered activity, possibly spanning
// several files.
type MonitorActivity struct {
	MonitorID uuid.UUID
	Segments  []Segment // ordered by FileIndex (== indexing/Add order)
}

// FirstTime returns the earliest timestamp observed for this monitor.
func (m MonitorActivity) FirstTime() entry.Timestamp { return m.Segments[0].FirstTime }

// ActivityMap is a snapshot of all indexed monitors, sorted by first-time.
type ActivityMap struct {
	Monitors    []MonitorActivity
	GlobalFirst entry.Timestamp
	GlobalLast  entry.Timestamp
}

// GetActivityMap returns a snapshot of the current index. Segments from
// files marked Duplicate are left out, so a gzip/raw pair contributes a
// single segment per monitor.
func (r *Reader) GetActivityMap() ActivityMap {
	out := ActivityMap{GlobalFirst: r.globalFirst, GlobalLast: r.globalLast}

	ids := make([]uuid.UUID, 0, len(r.monitors))
	for id := range r.monitors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		segs := make([]segment, 0, len(r.monitors[id]))
		for _, s := range r.monitors[id] {
			if !r.files[s.fileIndex].Duplicate {
				segs = append(segs, s)
			}
		}
		sort.Slice(segs, func(i, j int) bool { return segs[i].fileIndex < segs[j].fileIndex })

		ma := MonitorActivity{MonitorID: id, Segments: make([]Segment, len(segs))}
		for i, s := range segs {
			ma.Segments[i] = Segment{
				FileIndex:   s.fileIndex,
				FirstOffset: s.firstOffset,
				LastOffset:  s.lastOffset,
				FirstDepth:  s.firstDepth,
				LastDepth:   s.lastDepth,
				FirstTime:   s.firstTime,
				LastTime:    s.lastTime,
				Tags:        s.tags,
			}
		}
		out.Monitors = append(out.Monitors, ma)
	}

	sort.SliceStable(out.Monitors, func(i, j int) bool {
		return out.Monitors[i].FirstTime().Before(out.Monitors[j].FirstTime())
	})

	return out
}
