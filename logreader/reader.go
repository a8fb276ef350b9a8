// Package logreader implements the sequential forward iterator over one
// binary log file (spec.md §4.5), tolerating truncated tails.
package logreader

import (
	"errors"
	"io"

	"github.com/ArnaudSwail/ckmon/codec"
	"github.com/ArnaudSwail/ckmon/entry"
)

// State is the reader's lifecycle state.
type State uint8

const (
	StateFresh State = iota
	StateReading
	StateEnd
	StateCorrupt
)

// Reader is a forward-only iterator over one stream's entries. It is not
// safe for concurrent use; each Reader instance is single-threaded
// (spec.md §5).
//
// Reader tracks the byte offset of each entry's leading tag byte, so
// callers (package multireader) can record exact seek targets without
// re-deriving framing lengths.
type Reader struct {
	cr      *countingReader
	dec     *codec.Reader
	state   State
	current *entry.Entry
	offset  int64 // offset of Current's tag byte
	badEOF  bool
	readErr error
	version uint32
}

// New wraps r, positioned at the start of a stream (before its version
// header), as a fresh Reader.
func New(r io.Reader) (*Reader, error) {
	cr := &countingReader{r: r}
	out := &Reader{cr: cr, dec: codec.NewReader(cr), state: StateFresh}
	v, err := out.dec.ReadHeader()
	if err != nil {
		out.state = StateCorrupt
		out.readErr = err
		return out, err
	}
	out.version = v
	return out, nil
}

// Version returns the stream-version read from the header.
func (r *Reader) Version() uint32 { return r.version }

// MoveNext advances to the next entry, returning false when the stream
// ends (cleanly or otherwise) or is already Corrupt. Callers must check
// ReadException after a false return to distinguish a clean end from a
// parse failure.
func (r *Reader) MoveNext() bool {
	if r.state == StateEnd || r.state == StateCorrupt {
		return false
	}
	r.state = StateReading

	startOffset := r.cr.n
	e, err := r.dec.ReadEntry()
	if err == nil {
		r.current = e
		r.offset = startOffset
		return true
	}

	if errors.Is(err, codec.ErrCleanEOF) {
		r.state = StateEnd
		r.current = nil
		return false
	}

	// Any other error (truncated field, bad tag, short read hitting the
	// underlying io.EOF before the sentinel) means the tail is bad.
	r.state = StateCorrupt
	r.current = nil
	r.badEOF = true
	r.readErr = err
	return false
}

// Current returns the last entry parsed by MoveNext, or nil before the
// first call or after the stream has ended/corrupted.
func (r *Reader) Current() *entry.Entry { return r.current }

// Offset returns the byte offset of Current's leading tag byte, within
// this stream's logical (post-decompression) byte sequence.
func (r *Reader) Offset() int64 { return r.offset }

// BadEndOfFile reports whether the stream ended without the EOF
// sentinel (a truncated or corrupt tail), per spec.md §3, §8.
func (r *Reader) BadEndOfFile() bool { return r.badEOF }

// ReadException returns the captured parse error, or nil if the stream
// ended cleanly (or hasn't ended yet).
func (r *Reader) ReadException() error { return r.readErr }

// State returns the reader's current lifecycle state.
func (r *Reader) State() State { return r.state }

// countingReader tracks the number of bytes read through it, giving
// Reader a logical byte offset without requiring the underlying stream
// to support io.Seeker (e.g. a gzip.Reader does not).
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(c, b[:])
	return b[0], err
}
