package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry(t *testing.T) *entry.Entry {
	t.Helper()
	return &entry.Entry{
		Kind:      entry.KindLine,
		Timestamp: entry.Timestamp{Instant: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), Uniquifier: 3},
		Level:     entry.LevelFilter{Level: entry.LevelWarn, IsFiltered: true},
		Text:      "hello world",
		HasText:   true,
		Tags:      entry.NewTags(nil, "a", "b"),
		File:      "main.go",
		Line:      42,
		HasFileLine: true,
		Exception: &entry.ExceptionData{
			Message: "boom",
			Type:    "ArgumentError",
			Inner:   &entry.ExceptionData{Message: "inner"},
		},
		Multicast: &entry.Multicast{
			MonitorID:     uuid.New(),
			GroupDepth:    2,
			PrevKind:      entry.PrevKindOpenGroup,
			PrevTimestamp: entry.Timestamp{Instant: time.Date(2026, 3, 4, 5, 6, 6, 0, time.UTC), Uniquifier: 1},
		},
	}
}

func TestWriter_Reader_RoundTrip_AllVariants(t *testing.T) {
	cases := []*entry.Entry{
		sampleEntry(t),
		{Kind: entry.KindOpenGroup, Timestamp: entry.Timestamp{Instant: time.Now().UTC()}, Level: entry.LevelFilter{Level: entry.LevelInfo}},
		{
			Kind:        entry.KindCloseGroup,
			Timestamp:   entry.Timestamp{Instant: time.Now().UTC()},
			Level:       entry.LevelFilter{Level: entry.LevelInfo},
			Conclusions: []string{"done", "ok"},
		},
		{
			Kind:      entry.KindLine,
			Timestamp: entry.Timestamp{Instant: time.Now().UTC()},
			Level:     entry.LevelFilter{Level: entry.LevelDebug},
		},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(StreamVersion))
	for _, e := range cases {
		require.NoError(t, w.WriteEntry(e))
	}
	require.NoError(t, w.WriteEOF())

	r := NewReader(&buf)
	version, err := r.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, StreamVersion, version)

	for i, want := range cases {
		got, err := r.ReadEntry()
		require.NoError(t, err, "entry %d", i)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Level, got.Level)
		assert.True(t, want.Timestamp.Compare(got.Timestamp) == 0)
		assert.Equal(t, want.Text, got.Text)
		assert.Equal(t, want.HasText, got.HasText)
		assert.Equal(t, want.Tags.String(), got.Tags.String())
		assert.Equal(t, want.Conclusions, got.Conclusions)
		if want.Multicast != nil {
			require.NotNil(t, got.Multicast)
			assert.Equal(t, want.Multicast.MonitorID, got.Multicast.MonitorID)
			assert.Equal(t, want.Multicast.GroupDepth, got.Multicast.GroupDepth)
			assert.Equal(t, want.Multicast.PrevKind, got.Multicast.PrevKind)
		} else {
			assert.Nil(t, got.Multicast)
		}
		if want.Exception != nil {
			require.NotNil(t, got.Exception)
			assert.Equal(t, want.Exception.Message, got.Exception.Message)
			assert.Equal(t, want.Exception.Type, got.Exception.Type)
			require.NotNil(t, got.Exception.Inner)
			assert.Equal(t, want.Exception.Inner.Message, got.Exception.Inner.Message)
		}
	}

	_, err = r.ReadEntry()
	assert.ErrorIs(t, err, ErrCleanEOF)
}

func TestReader_TruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(StreamVersion))
	require.NoError(t, w.WriteEntry(sampleEntry(t)))
	// no EOF sentinel written: simulates a crash mid-write, and also
	// truncate the last few bytes of the entry itself.
	full := buf.Bytes()
	truncated := full[:len(full)-3]

	r := NewReader(bytes.NewReader(truncated))
	_, err := r.ReadHeader()
	require.NoError(t, err)
	_, err = r.ReadEntry()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCleanEOF)
}

func TestReader_UnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(StreamVersion + 1))
	r := NewReader(&buf)
	_, err := r.ReadHeader()
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestGzip_DeterministicByteIdentical(t *testing.T) {
	var raw bytes.Buffer
	w := NewWriter(&raw)
	require.NoError(t, w.WriteHeader(StreamVersion))
	require.NoError(t, w.WriteEntry(sampleEntry(t)))
	require.NoError(t, w.WriteEOF())

	compressOnce := func() []byte {
		var out bytes.Buffer
		gw, err := NewGzipWriter(&out)
		require.NoError(t, err)
		_, err = gw.Write(raw.Bytes())
		require.NoError(t, err)
		require.NoError(t, gw.Close())
		return out.Bytes()
	}

	a := compressOnce()
	b := compressOnce()
	assert.Equal(t, a, b, "recompressing the same raw bytes with the same parameters must be byte-identical")
}

func TestDetectGzip(t *testing.T) {
	var raw bytes.Buffer
	w := NewWriter(&raw)
	require.NoError(t, w.WriteHeader(StreamVersion))
	require.NoError(t, w.WriteEOF())

	br, isGzip, err := DetectGzip(bytes.NewReader(raw.Bytes()))
	require.NoError(t, err)
	assert.False(t, isGzip)
	header := make([]byte, 4)
	_, err = br.Read(header)
	require.NoError(t, err)

	var gz bytes.Buffer
	gw, err := NewGzipWriter(&gz)
	require.NoError(t, err)
	_, _ = gw.Write(raw.Bytes())
	require.NoError(t, gw.Close())

	_, isGzip, err = DetectGzip(bytes.NewReader(gz.Bytes()))
	require.NoError(t, err)
	assert.True(t, isGzip)
}
