package producer

import (
	"sync"
	"testing"
	"time"

	"github.com/ArnaudSwail/ckmon/dispatch"
	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingDescriptor struct{}

func (capturingDescriptor) Kind() string { return "capturing" }

type capturingSink struct {
	mu      sync.Mutex
	entries []*entry.Entry
}

func (s *capturingSink) Activate(m *dispatch.SelfMonitor) (bool, error) { return true, nil }
func (s *capturingSink) ApplyConfiguration(d dispatch.Descriptor) (bool, error) { return true, nil }
func (s *capturingSink) Handle(m *dispatch.SelfMonitor, e *entry.Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}
func (s *capturingSink) OnTimer(m *dispatch.SelfMonitor, period time.Duration) error { return nil }
func (s *capturingSink) Deactivate(m *dispatch.SelfMonitor) error                    { return nil }

func (s *capturingSink) snapshot() []*entry.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entry.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func newHarness(t *testing.T) (*dispatch.Dispatcher, *capturingSink) {
	t.Helper()
	cs := &capturingSink{}
	reg := dispatch.NewRegistry()
	reg.Register("capturing", func(d dispatch.Descriptor) (dispatch.Sink, error) { return cs, nil })
	d := dispatch.New(reg, dispatch.Config{Handlers: []dispatch.Descriptor{capturingDescriptor{}}})
	t.Cleanup(func() { d.Finalize(time.Second) })
	time.Sleep(10 * time.Millisecond) // let the worker activate the sink before submitting
	return d, cs
}

func TestClient_GroupDepthTracking(t *testing.T) {
	d, cs := newHarness(t)
	c := New(d)

	c.OpenGroup(entry.LevelFilter{Level: entry.LevelInfo}, "outer", entry.Tags{})
	c.OpenGroup(entry.LevelFilter{Level: entry.LevelInfo}, "inner", entry.Tags{})
	c.Log(entry.LevelFilter{Level: entry.LevelInfo}, "line", entry.Tags{})
	require.NoError(t, c.CloseGroup(nil))
	require.NoError(t, c.CloseGroup([]string{"done"}))

	err := c.CloseGroup(nil)
	assert.ErrorIs(t, err, ErrNoOpenGroup)

	require.NoError(t, d.Finalize(time.Second))

	entries := cs.snapshot()
	require.Len(t, entries, 5)
	assert.Equal(t, entry.KindOpenGroup, entries[0].Kind)
	assert.EqualValues(t, 0, entries[0].Multicast.GroupDepth)
	assert.Equal(t, entry.KindOpenGroup, entries[1].Kind)
	assert.EqualValues(t, 1, entries[1].Multicast.GroupDepth)
	assert.Equal(t, entry.KindLine, entries[2].Kind)
	assert.EqualValues(t, 2, entries[2].Multicast.GroupDepth)
	assert.Equal(t, entry.KindCloseGroup, entries[3].Kind)
	assert.EqualValues(t, 1, entries[3].Multicast.GroupDepth)
	assert.Equal(t, entry.KindCloseGroup, entries[4].Kind)
	assert.EqualValues(t, 0, entries[4].Multicast.GroupDepth)
	assert.Equal(t, []string{"done"}, entries[4].Conclusions)
}

func TestClient_MonotoneTimestampsAndBackPointers(t *testing.T) {
	d, cs := newHarness(t)
	c := New(d)

	for i := 0; i < 5; i++ {
		c.Log(entry.LevelFilter{Level: entry.LevelInfo}, "tick", entry.Tags{})
	}
	require.NoError(t, d.Finalize(time.Second))

	entries := cs.snapshot()
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i-1].Timestamp.Before(entries[i].Timestamp))
		assert.Equal(t, entries[i-1].Timestamp, entries[i].Multicast.PrevTimestamp)
		assert.Equal(t, entry.PrevKindLine, entries[i].Multicast.PrevKind)
	}
	assert.Equal(t, entry.PrevKindNone, entries[0].Multicast.PrevKind)
}

func TestClient_FilterGate(t *testing.T) {
	d, cs := newHarness(t)
	require.NoError(t, d.ApplyConfig(dispatch.Config{
		Handlers:      []dispatch.Descriptor{capturingDescriptor{}},
		MinimalFilter: entry.Filter{Line: entry.LevelWarn},
	}, true))

	c := New(d)
	c.Log(entry.LevelFilter{Level: entry.LevelInfo}, "filtered out", entry.Tags{})
	c.Log(entry.LevelFilter{Level: entry.LevelError}, "passes", entry.Tags{})
	c.Log(entry.LevelFilter{Level: entry.LevelInfo, IsFiltered: true}, "forced through", entry.Tags{})

	require.NoError(t, d.Finalize(time.Second))

	entries := cs.snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, "passes", entries[0].Text)
	assert.Equal(t, "forced through", entries[1].Text)
}

func TestClient_AutoTagsUnion(t *testing.T) {
	d, cs := newHarness(t)
	c := New(d)
	c.SetAutoTags(entry.NewTags(nil, "component:test"))
	c.Log(entry.LevelFilter{Level: entry.LevelInfo}, "tagged", entry.NewTags(nil, "extra"))

	require.NoError(t, d.Finalize(time.Second))

	entries := cs.snapshot()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Tags.Contains(nil, "component:test"))
	assert.True(t, entries[0].Tags.Contains(nil, "extra"))
}

func TestExternalLog_ZeroMonitorID(t *testing.T) {
	d, cs := newHarness(t)
	Log(d, entry.LevelFilter{Level: entry.LevelInfo}, "ambient", entry.Tags{})
	require.NoError(t, d.Finalize(time.Second))

	entries := cs.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ZeroMonitorID, entries[0].Multicast.MonitorID)
}

func TestRegistry_SweepReapsStaleHandles(t *testing.T) {
	d, _ := newHarness(t)
	reg := NewRegistry()
	c1 := New(d)
	c2 := New(d)
	h1 := reg.Register(c1)
	_ = reg.Register(c2)

	time.Sleep(20 * time.Millisecond)
	reg.Touch(h1) // only c1 proves liveness after the sleep

	reaped := reg.Sweep(5 * time.Millisecond)
	require.Len(t, reaped, 1)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_SweepFunc_WiredToDispatcherExternalTimer(t *testing.T) {
	reg := NewRegistry()
	c := New(nil)
	reg.Register(c)

	d := dispatch.New(dispatch.NewRegistry(), dispatch.Config{
		ExternalTimerPeriod: 10 * time.Millisecond,
		OnExternalTick:      reg.SweepFunc(5 * time.Millisecond),
	})
	defer d.Finalize(time.Second)

	waitFor(t, time.Second, func() bool { return reg.Len() == 0 })
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestRegistry_StartAutoSweep_ReapsOnItsOwnCadence(t *testing.T) {
	d, _ := newHarness(t)
	reg := NewRegistry()
	c2 := New(d)
	reg.Register(c2)

	stop := reg.StartAutoSweep(5*time.Millisecond, 10*time.Millisecond)
	defer stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, reg.Len(), "the untouched handle must be reaped by the background sweep")
}
