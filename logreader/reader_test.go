package logreader

import (
	"bytes"
	"testing"
	"time"

	"github.com/ArnaudSwail/ckmon/codec"
	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSample(t *testing.T, n int, withEOF bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(codec.StreamVersion))
	for i := 0; i < n; i++ {
		require.NoError(t, w.WriteEntry(&entry.Entry{
			Kind:      entry.KindLine,
			Timestamp: entry.Timestamp{Instant: time.Now().UTC()},
			Level:     entry.LevelFilter{Level: entry.LevelInfo},
			Text:      "line",
			HasText:   true,
		}))
	}
	if withEOF {
		require.NoError(t, w.WriteEOF())
	}
	return buf.Bytes()
}

func TestReader_CleanFile(t *testing.T) {
	data := writeSample(t, 5, true)
	r, err := New(bytes.NewReader(data))
	require.NoError(t, err)

	count := 0
	for r.MoveNext() {
		count++
	}
	assert.Equal(t, 5, count)
	assert.False(t, r.BadEndOfFile())
	assert.NoError(t, r.ReadException())
	assert.Equal(t, StateEnd, r.State())
}

func TestReader_TruncatedTail(t *testing.T) {
	data := writeSample(t, 5, false) // no EOF sentinel: simulates a crash
	r, err := New(bytes.NewReader(data))
	require.NoError(t, err)

	count := 0
	for r.MoveNext() {
		count++
	}
	assert.Equal(t, 5, count, "entries read prior to the bad tail must be preserved")
	assert.True(t, r.BadEndOfFile())
	assert.Error(t, r.ReadException())
	assert.Equal(t, StateCorrupt, r.State())
}

func TestReader_OffsetsMonotonicallyIncrease(t *testing.T) {
	data := writeSample(t, 4, true)
	r, err := New(bytes.NewReader(data))
	require.NoError(t, err)

	var last int64 = -1
	for r.MoveNext() {
		assert.Greater(t, r.Offset(), last)
		last = r.Offset()
	}
}

func TestReader_CorruptIsSticky(t *testing.T) {
	data := writeSample(t, 2, false)
	r, err := New(bytes.NewReader(data))
	require.NoError(t, err)
	for r.MoveNext() {
	}
	require.Equal(t, StateCorrupt, r.State())
	assert.False(t, r.MoveNext(), "MoveNext must keep returning false once Corrupt")
}
