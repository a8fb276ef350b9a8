package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/google/uuid"
)

// ErrCleanEOF is returned by ReadEntry when the stream's end-of-file
// sentinel was read. It is the only "expected" terminal error; any other
// error (including io.EOF / io.ErrUnexpectedEOF reached without first
// seeing the sentinel) indicates a truncated or corrupt stream.
var ErrCleanEOF = errors.New("ckmon/codec: clean end of file")

// Reader parses entry.Entry values from an underlying io.Reader per the
// wire format in spec.md §4.4. It is a thin, stateless frame parser; the
// stateful iteration/corruption-tracking behavior lives in package
// logreader, which wraps a Reader.
type Reader struct {
	r io.Reader
}

// NewReader wraps r. ReadHeader must be called exactly once before any
// ReadEntry call.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadHeader reads the 4-byte little-endian stream-version header.
func (x *Reader) ReadHeader() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(x.r, b[:]); err != nil {
		return 0, fmt.Errorf("ckmon/codec: read header: %w", err)
	}
	v := binary.LittleEndian.Uint32(b[:])
	if v > StreamVersion {
		return v, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	return v, nil
}

// ReadEntry parses one entry, or returns ErrCleanEOF on the sentinel
// byte, or a wrapped error on truncation/corruption.
func (x *Reader) ReadEntry() (*entry.Entry, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(x.r, tagBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if tagBuf[0] == EOFSentinel {
		return nil, ErrCleanEOF
	}

	v, fields := unpackTag(tagBuf[0])

	e := &entry.Entry{}

	switch v {
	case variantLine, variantMulticastLine:
		e.Kind = entry.KindLine
	case variantOpenGroup, variantMulticastOpenGroup:
		e.Kind = entry.KindOpenGroup
	case variantCloseGroup, variantMulticastCloseGroup:
		e.Kind = entry.KindCloseGroup
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadTag, tagBuf[0])
	}

	isMulticast := v == variantMulticastLine || v == variantMulticastOpenGroup || v == variantMulticastCloseGroup
	if isMulticast {
		mc := &entry.Multicast{}

		var idBuf [16]byte
		if _, err := io.ReadFull(x.r, idBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: monitor id: %v", ErrTruncated, err)
		}
		mc.MonitorID = uuid.UUID(idBuf)

		var pkBuf [1]byte
		if _, err := io.ReadFull(x.r, pkBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: prev kind: %v", ErrTruncated, err)
		}
		mc.PrevKind = entry.PrevKind(pkBuf[0])

		prevTS, err := x.readTimestamp()
		if err != nil {
			return nil, fmt.Errorf("%w: prev timestamp: %v", ErrTruncated, err)
		}
		mc.PrevTimestamp = prevTS

		depth, err := x.readUvarint()
		if err != nil {
			return nil, fmt.Errorf("%w: group depth: %v", ErrTruncated, err)
		}
		mc.GroupDepth = uint32(depth)

		e.Multicast = mc
	}

	ts, err := x.readTimestamp()
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrTruncated, err)
	}
	e.Timestamp = ts

	var lvlBuf [2]byte
	if _, err := io.ReadFull(x.r, lvlBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: level: %v", ErrTruncated, err)
	}
	e.Level = entry.LevelFilter{Level: entry.Level(lvlBuf[0]), IsFiltered: lvlBuf[1] != 0}

	if fields&fieldText != 0 {
		s, err := x.readString()
		if err != nil {
			return nil, fmt.Errorf("%w: text: %v", ErrTruncated, err)
		}
		e.Text = s
		e.HasText = true
	}

	if fields&fieldTags != 0 {
		s, err := x.readString()
		if err != nil {
			return nil, fmt.Errorf("%w: tags: %v", ErrTruncated, err)
		}
		e.Tags = entry.ParseTags(nil, s)
	}

	if fields&fieldFileLine != 0 {
		f, err := x.readString()
		if err != nil {
			return nil, fmt.Errorf("%w: file: %v", ErrTruncated, err)
		}
		l, err := x.readUvarint()
		if err != nil {
			return nil, fmt.Errorf("%w: line: %v", ErrTruncated, err)
		}
		e.File = f
		e.Line = int(l)
		e.HasFileLine = true
	}

	if fields&fieldException != 0 {
		exc, err := x.readException()
		if err != nil {
			return nil, fmt.Errorf("%w: exception: %v", ErrTruncated, err)
		}
		e.Exception = exc
	}

	if e.Kind == entry.KindCloseGroup {
		n, err := x.readUvarint()
		if err != nil {
			return nil, fmt.Errorf("%w: conclusion count: %v", ErrTruncated, err)
		}
		conclusions := make([]string, n)
		for i := range conclusions {
			s, err := x.readString()
			if err != nil {
				return nil, fmt.Errorf("%w: conclusion %d: %v", ErrTruncated, i, err)
			}
			conclusions[i] = s
		}
		e.Conclusions = conclusions
	}

	return e, nil
}

func (x *Reader) readTimestamp() (entry.Timestamp, error) {
	var b [9]byte
	if _, err := io.ReadFull(x.r, b[:]); err != nil {
		return entry.Timestamp{}, err
	}
	nanos := int64(binary.LittleEndian.Uint64(b[:8]))
	return entry.Timestamp{
		Instant:    unixNano(nanos),
		Uniquifier: b[8],
	}, nil
}

func (x *Reader) readString() (string, error) {
	n, err := x.readUvarint()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(x.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (x *Reader) readUvarint() (uint64, error) {
	br, ok := x.r.(io.ByteReader)
	if !ok {
		br = &singleByteReader{r: x.r}
	}
	return binary.ReadUvarint(br)
}

func (x *Reader) readException() (*entry.ExceptionData, error) {
	var present [1]byte
	if _, err := io.ReadFull(x.r, present[:]); err != nil {
		return nil, err
	}
	if present[0] == 0 {
		return nil, nil
	}

	e := &entry.ExceptionData{}
	var err error
	if e.Message, err = x.readString(); err != nil {
		return nil, err
	}
	if e.Type, err = x.readString(); err != nil {
		return nil, err
	}
	if e.Stack, err = x.readString(); err != nil {
		return nil, err
	}
	if e.Inner, err = x.readException(); err != nil {
		return nil, err
	}

	n, err := x.readUvarint()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		e.InnerAggr = make([]*entry.ExceptionData, n)
		for i := range e.InnerAggr {
			if e.InnerAggr[i], err = x.readException(); err != nil {
				return nil, err
			}
		}
	}

	n, err = x.readUvarint()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		e.LoaderErrors = make([]*entry.ExceptionData, n)
		for i := range e.LoaderErrors {
			if e.LoaderErrors[i], err = x.readException(); err != nil {
				return nil, err
			}
		}
	}

	if e.FusionLog, err = x.readString(); err != nil {
		return nil, err
	}

	return e, nil
}

func unixNano(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}

// singleByteReader adapts an io.Reader without ReadByte to io.ByteReader,
// for binary.ReadUvarint. Used only for Readers not already buffered.
type singleByteReader struct {
	r   io.Reader
	buf [1]byte
}

func (s *singleByteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
		return 0, err
	}
	return s.buf[0], nil
}
