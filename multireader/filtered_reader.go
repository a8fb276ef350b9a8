package multireader

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ArnaudSwail/ckmon/codec"
	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/google/uuid"
)

// ErrOffsetMismatch is returned by OpenAt when the entry read at the
// given offset is not a multicast entry for the expected monitor. An
// offset at which no entry can be parsed yields the wrapped parse error
// instead.
var ErrOffsetMismatch = errors.New("ckmon/multireader: offset does not start a multicast entry for the expected monitor")

// FilteredReader yields only the entries belonging to one monitor,
// skipping interleaved entries from other monitors in the same file
// (spec.md §4.6).
type FilteredReader struct {
	dec       *codec.Reader
	closer    io.Closer
	monitorID uuid.UUID
	current   *entry.Entry
	pending   *entry.Entry // the entry found by OpenAt, not yet surfaced via MoveNext
	badEOF    bool
	readErr   error
	done      bool
}

// OpenAt seeks file at the given file index to offset and returns a
// FilteredReader for monitorID, asserting the tag byte there starts a
// multicast entry for that monitor.
func (r *Reader) OpenAt(fileIndex int, offset int64, monitorID uuid.UUID) (*FilteredReader, error) {
	if fileIndex < 0 || fileIndex >= len(r.files) {
		return nil, fmt.Errorf("ckmon/multireader: file index %d out of range", fileIndex)
	}
	info := r.files[fileIndex]

	f, err := os.Open(info.AbsPath)
	if err != nil {
		return nil, err
	}

	var stream io.Reader
	var closer io.Closer = f

	if info.IsGzip {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		if _, err := io.CopyN(io.Discard, gz, offset); err != nil {
			gz.Close()
			f.Close()
			return nil, fmt.Errorf("ckmon/multireader: seek gzip to offset %d: %w", offset, err)
		}
		stream = gz
		closer = multiCloser{gz, f}
	} else {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		stream = f
	}

	dec := codec.NewReader(bufio.NewReader(stream))

	fr := &FilteredReader{dec: dec, closer: closer, monitorID: monitorID}

	e, err := dec.ReadEntry()
	if err != nil {
		fr.Close()
		return nil, fmt.Errorf("ckmon/multireader: read at offset %d: %w", offset, err)
	}
	if e.Multicast == nil || e.Multicast.MonitorID != monitorID {
		fr.Close()
		return nil, ErrOffsetMismatch
	}
	fr.pending = e
	return fr, nil
}

// MoveNext advances to this monitor's next entry, skipping any
// interleaved entries belonging to other monitors. The entry found by
// OpenAt is surfaced on the first call, matching the logreader.Reader
// "call MoveNext, then Current" idiom.
func (fr *FilteredReader) MoveNext() bool {
	if fr.done {
		return false
	}
	if fr.pending != nil {
		fr.current = fr.pending
		fr.pending = nil
		return true
	}
	for {
		e, err := fr.dec.ReadEntry()
		if err != nil {
			fr.current = nil
			fr.done = true
			if errors.Is(err, codec.ErrCleanEOF) {
				return false
			}
			fr.badEOF = true
			fr.readErr = err
			return false
		}
		if e.Multicast != nil && e.Multicast.MonitorID == fr.monitorID {
			fr.current = e
			return true
		}
		// skip: belongs to another monitor
	}
}

// Current returns the entry found by the most recent MoveNext call.
// Call MoveNext before the first Current, matching logreader.Reader's
// idiom: the entry located by OpenAt is surfaced by the first MoveNext,
// not before.
func (fr *FilteredReader) Current() *entry.Entry { return fr.current }

// BadEndOfFile reports whether the underlying file ended without the
// EOF sentinel.
func (fr *FilteredReader) BadEndOfFile() bool { return fr.badEOF }

// ReadException returns the captured parse error, if any.
func (fr *FilteredReader) ReadException() error { return fr.readErr }

// Close releases the underlying file handle(s).
func (fr *FilteredReader) Close() error {
	if fr.closer == nil {
		return nil
	}
	return fr.closer.Close()
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
