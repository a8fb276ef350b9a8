package codec

import (
	"encoding/binary"
	"io"

	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/google/uuid"
)

// Writer frames entry.Entry values onto an underlying io.Writer per the
// wire format in spec.md §4.4.
type Writer struct {
	w   io.Writer
	buf []byte // reused scratch buffer
}

// NewWriter wraps w. WriteHeader must be called exactly once before any
// WriteEntry call.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, buf: make([]byte, 0, 256)}
}

// WriteHeader writes the 4-byte little-endian stream-version header.
func (x *Writer) WriteHeader(version uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], version)
	_, err := x.w.Write(b[:])
	return err
}

// WriteEOF writes the single zero-byte end-of-file sentinel. Writers
// must call this on graceful close (spec.md §4.4, §8).
func (x *Writer) WriteEOF() error {
	_, err := x.w.Write([]byte{EOFSentinel})
	return err
}

// WriteEntry frames and writes one entry.
func (x *Writer) WriteEntry(e *entry.Entry) error {
	x.buf = x.buf[:0]

	var v variant
	if e.IsMulticast() {
		switch e.Kind {
		case entry.KindLine:
			v = variantMulticastLine
		case entry.KindOpenGroup:
			v = variantMulticastOpenGroup
		case entry.KindCloseGroup:
			v = variantMulticastCloseGroup
		}
	} else {
		switch e.Kind {
		case entry.KindLine:
			v = variantLine
		case entry.KindOpenGroup:
			v = variantOpenGroup
		case entry.KindCloseGroup:
			v = variantCloseGroup
		}
	}

	var fields byte
	if e.HasText {
		fields |= fieldText
	}
	if !e.Tags.Empty() {
		fields |= fieldTags
	}
	if e.HasFileLine {
		fields |= fieldFileLine
	}
	if e.Exception != nil {
		fields |= fieldException
	}

	x.buf = append(x.buf, packTag(v, fields))

	if e.IsMulticast() {
		x.buf = appendMonitorID(x.buf, e.Multicast.MonitorID)
		x.buf = append(x.buf, byte(e.Multicast.PrevKind))
		x.buf = appendTimestamp(x.buf, e.Multicast.PrevTimestamp)
		x.buf = putUvarint(x.buf, uint64(e.Multicast.GroupDepth))
	}

	x.buf = appendTimestamp(x.buf, e.Timestamp)
	x.buf = append(x.buf, byte(e.Level.Level))
	if e.Level.IsFiltered {
		x.buf = append(x.buf, 1)
	} else {
		x.buf = append(x.buf, 0)
	}

	if e.HasText {
		x.buf = appendString(x.buf, e.Text)
	}
	if fields&fieldTags != 0 {
		x.buf = appendString(x.buf, e.Tags.String())
	}
	if e.HasFileLine {
		x.buf = appendString(x.buf, e.File)
		x.buf = putUvarint(x.buf, uint64(e.Line))
	}
	if e.Exception != nil {
		x.buf = appendException(x.buf, e.Exception)
	}

	if e.Kind == entry.KindCloseGroup {
		x.buf = putUvarint(x.buf, uint64(len(e.Conclusions)))
		for _, c := range e.Conclusions {
			x.buf = appendString(x.buf, c)
		}
	}

	_, err := x.w.Write(x.buf)
	return err
}

func appendTimestamp(buf []byte, ts entry.Timestamp) []byte {
	var b [9]byte
	binary.LittleEndian.PutUint64(b[:8], uint64(ts.Instant.UnixNano()))
	b[8] = ts.Uniquifier
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = putUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendMonitorID(buf []byte, id uuid.UUID) []byte {
	return append(buf, id[:]...)
}

func appendException(buf []byte, e *entry.ExceptionData) []byte {
	if e == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = appendString(buf, e.Message)
	buf = appendString(buf, e.Type)
	buf = appendString(buf, e.Stack)
	buf = appendException(buf, e.Inner)

	buf = putUvarint(buf, uint64(len(e.InnerAggr)))
	for _, i := range e.InnerAggr {
		buf = appendException(buf, i)
	}

	buf = putUvarint(buf, uint64(len(e.LoaderErrors)))
	for _, i := range e.LoaderErrors {
		buf = appendException(buf, i)
	}

	buf = appendString(buf, e.FusionLog)
	return buf
}
