package entry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_Next_StrictlyIncreasing(t *testing.T) {
	var src Source
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := src.Next(base)
	b := src.Next(base) // same instant -> uniquifier bump
	c := src.Next(base.Add(-time.Second)) // time went backwards -> still bumps

	require.True(t, a.Before(b))
	require.True(t, b.Before(c))
	assert.Equal(t, uint8(0), a.Uniquifier)
	assert.Equal(t, uint8(1), b.Uniquifier)
	assert.Equal(t, uint8(2), c.Uniquifier)

	d := src.Next(base.Add(time.Hour))
	require.True(t, c.Before(d))
	assert.Equal(t, uint8(0), d.Uniquifier)
}

func TestTimestamp_Compare(t *testing.T) {
	t0 := time.Now()
	x := Timestamp{Instant: t0, Uniquifier: 0}
	y := Timestamp{Instant: t0, Uniquifier: 1}
	assert.Equal(t, -1, x.Compare(y))
	assert.Equal(t, 1, y.Compare(x))
	assert.Equal(t, 0, x.Compare(x))
}

func TestTags_CanonicalRoundTrip(t *testing.T) {
	ctx := NewContext()
	tags := NewTags(ctx, "b", "a", "a", "c")
	assert.Equal(t, "a|b|c", tags.String())

	parsed := ParseTags(ctx, tags.String())
	assert.Equal(t, tags.String(), parsed.String())
	assert.True(t, parsed.Contains(ctx, "a"))
	assert.False(t, parsed.Contains(ctx, "z"))
}

func TestTags_ReferenceEquality(t *testing.T) {
	ctx := NewContext()
	a1 := ctx.Intern("x")
	a2 := ctx.Intern("x")
	assert.True(t, a1 == a2, "interning the same name twice must yield the same atom")
}

func TestTags_Union(t *testing.T) {
	ctx := NewContext()
	a := NewTags(ctx, "a", "b")
	b := NewTags(ctx, "b", "c")
	u := Union(a, b)
	assert.Equal(t, "a|b|c", u.String())
}

func TestFilter_Allows(t *testing.T) {
	f := Filter{Line: LevelInfo}
	assert.False(t, f.Allows(LevelFilter{Level: LevelTrace}))
	assert.True(t, f.Allows(LevelFilter{Level: LevelWarn}))
	assert.True(t, f.Allows(LevelFilter{Level: LevelTrace, IsFiltered: true}))
}

func TestDepthTracker_Invariants(t *testing.T) {
	var d DepthTracker
	_, err := d.Close()
	require.ErrorIs(t, err, ErrNegativeDepth)

	before := d.Open()
	assert.Equal(t, uint32(0), before)
	assert.Equal(t, uint32(1), d.Depth())

	before = d.Open()
	assert.Equal(t, uint32(1), before)
	assert.Equal(t, uint32(2), d.Depth())

	before, err = d.Close()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), before)
	assert.Equal(t, uint32(1), d.Depth())
}
