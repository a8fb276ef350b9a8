// Package multireader indexes one or more binary log files (raw or
// gzip) into a per-monitor activity map, and creates per-monitor
// filtered readers by seeking to an indexed byte offset (spec.md §4.6).
package multireader

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ArnaudSwail/ckmon/codec"
	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/ArnaudSwail/ckmon/logreader"
	"github.com/google/uuid"
)

// FileInfo describes one indexed file.
type FileInfo struct {
	Path     string // as given to Add
	AbsPath  string
	Size     int64
	IsGzip   bool
	// Duplicate is true if every per-monitor segment this file contributes
	// (same monitor, first/last time, first/last offset) was already
	// contributed by an earlier-indexed file — its usual gzip/raw twin.
	// Both files remain listed; GetActivityMap leaves out the segments
	// of duplicate files (spec.md §4.6).
	Duplicate bool
}

// segment is one monitor's activity within a single file.
type segment struct {
	fileIndex             int
	firstOffset, lastOffset int64
	firstDepth, lastDepth   uint32
	firstTime, lastTime     entry.Timestamp
	tags                    entry.Tags
}

// Reader indexes a set of files and answers activity-map / filtered-read
// queries over them. It is not safe for concurrent use.
type Reader struct {
	files    []FileInfo
	byAbs    map[string]int // abspath+size+first-timestamp probe -> files index, for Add dedup
	monitors map[uuid.UUID][]segment

	globalFirst, globalLast entry.Timestamp
	haveGlobal              bool
}

// New returns an empty Reader.
func New() *Reader {
	return &Reader{byAbs: make(map[string]int), monitors: make(map[uuid.UUID][]segment)}
}

// Add indexes each of paths not already indexed, returning per-path
// whether it was newly indexed. Dedup is by absolute path, file size,
// and a first-timestamp probe (spec.md §4.6 "dedup by absolute path and
// size+first-timestamp probe") so two distinct files that happen to
// share a path and size are never mistaken for the same file.
func (r *Reader) Add(paths []string) ([]bool, error) {
	added := make([]bool, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return added, fmt.Errorf("ckmon/multireader: abs path %q: %w", p, err)
		}
		fi, err := os.Stat(abs)
		if err != nil {
			return added, fmt.Errorf("ckmon/multireader: stat %q: %w", p, err)
		}
		probe, err := firstTimestampProbe(abs)
		if err != nil {
			return added, fmt.Errorf("ckmon/multireader: probe %q: %w", p, err)
		}
		key := fmt.Sprintf("%s:%d:%s", abs, fi.Size(), probe)
		if _, ok := r.byAbs[key]; ok {
			continue
		}

		fileIndex := len(r.files)
		info := FileInfo{Path: p, AbsPath: abs, Size: fi.Size()}

		if err := r.indexFile(fileIndex, abs, &info); err != nil {
			return added, fmt.Errorf("ckmon/multireader: index %q: %w", p, err)
		}

		r.files = append(r.files, info)
		r.byAbs[key] = fileIndex
		added[i] = true
	}
	r.dedupeAcrossFiles()
	return added, nil
}

// Files returns the indexed file list, in Add order.
func (r *Reader) Files() []FileInfo {
	out := make([]FileInfo, len(r.files))
	copy(out, r.files)
	return out
}

// firstTimestampProbe returns a key derived from the first multicast
// entry's timestamp in the file at abs, or "" if the file has none. It
// is the "+first-timestamp probe" half of Add's dedup key.
func firstTimestampProbe(abs string) (string, error) {
	f, err := os.Open(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()

	br, isGzip, err := codec.DetectGzip(f)
	if err != nil {
		return "", err
	}

	var stream io.Reader = br
	if isGzip {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return "", err
		}
		defer gz.Close()
		stream = gz
	}

	lr, err := logreader.New(stream)
	if err != nil {
		return "", err
	}
	for lr.MoveNext() {
		if e := lr.Current(); e.Multicast != nil {
			return e.Timestamp.String(), nil
		}
	}
	return "", nil
}

func (r *Reader) indexFile(fileIndex int, abs string, info *FileInfo) error {
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	br, isGzip, err := codec.DetectGzip(f)
	if err != nil {
		return err
	}
	info.IsGzip = isGzip

	var stream io.Reader = br
	if isGzip {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return err
		}
		defer gz.Close()
		stream = gz
	}

	lr, err := logreader.New(stream)
	if err != nil {
		return err
	}

	for lr.MoveNext() {
		e := lr.Current()
		if e.Multicast == nil {
			continue
		}
		r.observe(fileIndex, lr.Offset(), e)
	}
	// A bad tail is tolerated at index time: whatever was read so far is
	// kept, matching logreader's own truncation tolerance.
	return nil
}

func (r *Reader) observe(fileIndex int, offset int64, e *entry.Entry) {
	id := e.Multicast.MonitorID
	depth := e.Multicast.GroupDepth

	segs := r.monitors[id]
	if n := len(segs); n > 0 && segs[n-1].fileIndex == fileIndex {
		s := &segs[n-1]
		s.lastOffset = offset
		s.lastDepth = depth
		s.lastTime = e.Timestamp
		s.tags = entry.Union(s.tags, e.Tags)
	} else {
		segs = append(segs, segment{
			fileIndex:   fileIndex,
			firstOffset: offset,
			lastOffset:  offset,
			firstDepth:  depth,
			lastDepth:   depth,
			firstTime:   e.Timestamp,
			lastTime:    e.Timestamp,
			tags:        e.Tags,
		})
	}
	r.monitors[id] = segs

	if !r.haveGlobal || e.Timestamp.Before(r.globalFirst) {
		r.globalFirst = e.Timestamp
		r.haveGlobal = true
	}
	if !r.haveGlobal || r.globalLast.Before(e.Timestamp) {
		r.globalLast = e.Timestamp
	}
}

// dedupeAcrossFiles marks files whose every monitor segment is an exact
// duplicate — identical {monitor, first-time, last-time, first-offset,
// last-offset} — of a segment contributed by an earlier file (its
// gzip/raw twin).
func (r *Reader) dedupeAcrossFiles() {
	type key struct {
		id                      uuid.UUID
		firstTime, lastTime     string
		firstOffset, lastOffset int64
	}
	seen := make(map[key]bool)
	contributed := make(map[int]bool) // file produced >=1 segment
	unique := make(map[int]bool)      // file produced >=1 non-duplicate segment

	for id, segs := range r.monitors {
		sorted := append([]segment(nil), segs...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].fileIndex < sorted[j].fileIndex })
		for _, s := range sorted {
			contributed[s.fileIndex] = true
			k := key{
				id:          id,
				firstTime:   s.firstTime.String(),
				lastTime:    s.lastTime.String(),
				firstOffset: s.firstOffset,
				lastOffset:  s.lastOffset,
			}
			if !seen[k] {
				seen[k] = true
				unique[s.fileIndex] = true
			}
		}
	}

	for i := range r.files {
		if contributed[i] && !unique[i] {
			r.files[i].Duplicate = true
		}
	}
}
