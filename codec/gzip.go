package codec

import (
	"bufio"
	"compress/gzip"
	"io"
)

// gzipMagic is the two leading bytes of any gzip stream (RFC 1952 §2.3.1).
var gzipMagic = [2]byte{0x1f, 0x8b}

// NewGzipWriter wraps w in a gzip.Writer using deterministic settings: a
// fixed compression level, no filename, and no modification time, so
// that recompressing a raw file with the same parameters reproduces a
// byte-identical gzip file (spec.md §4.4, §8 "Gzip round-trip").
//
// Callers must Close the returned writer to flush the gzip footer;
// Close does not close w.
func NewGzipWriter(w io.Writer) (*gzip.Writer, error) {
	gw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return nil, err
	}
	gw.Name = ""
	gw.ModTime = zeroTime
	return gw, nil
}

// DetectGzip peeks at the first two bytes available from r to determine
// whether it is a gzip stream, per spec.md §4.4 "reader auto-detects by
// gzip magic bytes". It returns a *bufio.Reader over the un-consumed
// bytes so the peek does not lose data, and whether the stream is gzip.
func DetectGzip(r io.Reader) (br *bufio.Reader, isGzip bool, err error) {
	br = bufio.NewReaderSize(r, 4096)
	peek, err := br.Peek(2)
	if err != nil {
		if err == io.EOF {
			// an empty or 1-byte file is never gzip; let the caller's
			// header read surface the real truncation error.
			return br, false, nil
		}
		return nil, false, err
	}
	return br, peek[0] == gzipMagic[0] && peek[1] == gzipMagic[1], nil
}
