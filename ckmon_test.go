package ckmon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ArnaudSwail/ckmon/dispatch"
	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/ArnaudSwail/ckmon/producer"
	"github.com/ArnaudSwail/ckmon/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureActiveDefault_CreatesThenReconfigures(t *testing.T) {
	defer Dispose()

	dir := t.TempDir()
	d1 := EnsureActiveDefault(dispatch.Config{
		Handlers: []dispatch.Descriptor{sink.TextFileDescriptor{Path: filepath.Join(dir, "a.log")}},
	})
	d2 := EnsureActiveDefault(dispatch.Config{
		Handlers: []dispatch.Descriptor{sink.TextFileDescriptor{Path: filepath.Join(dir, "a.log")}},
	})
	assert.Same(t, d1, d2, "ensure-active-default must reuse the existing dispatcher")

	got, ok := DefaultDispatcher()
	require.True(t, ok)
	assert.Same(t, d1, got)
}

func TestDispose_ResetsAmbientSlot(t *testing.T) {
	EnsureActiveDefault(dispatch.Config{})
	Dispose()

	_, ok := DefaultDispatcher()
	assert.False(t, ok)
}

type faultyDescriptor struct{}

func (faultyDescriptor) Kind() string { return "faulty" }

type faultySink struct{}

func (faultySink) Activate(m *dispatch.SelfMonitor) (bool, error)          { return true, nil }
func (faultySink) ApplyConfiguration(d dispatch.Descriptor) (bool, error)  { return true, nil }
func (faultySink) Handle(m *dispatch.SelfMonitor, e *entry.Entry) error {
	return assert.AnError
}
func (faultySink) OnTimer(m *dispatch.SelfMonitor, period time.Duration) error { return nil }
func (faultySink) Deactivate(m *dispatch.SelfMonitor) error                   { return nil }

// TestCriticalError_ReemittedViaExternalLog exercises the same
// critical-error-to-external-log wiring EnsureActiveDefault installs,
// using a registry the test controls so it can force a sink fault.
func TestCriticalError_ReemittedViaExternalLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "errors.log")

	reg := dispatch.NewRegistry()
	reg.Register("faulty", func(d dispatch.Descriptor) (dispatch.Sink, error) { return faultySink{}, nil })
	sink.RegisterTextFile(reg)

	d := dispatch.New(reg, dispatch.Config{
		Handlers: []dispatch.Descriptor{
			faultyDescriptor{},
			sink.TextFileDescriptor{Path: logPath},
		},
	})
	d.CriticalErrors().Subscribe(func(ce dispatch.CriticalError) {
		producer.LogException(d,
			entry.LevelFilter{Level: entry.LevelError},
			"critical error in sink "+ce.SinkKind,
			&entry.ExceptionData{Message: ce.Err.Error(), Type: "sink-fault"},
			criticalErrorTag,
		)
	})

	time.Sleep(10 * time.Millisecond)
	d.Submit(&entry.Entry{Kind: entry.KindLine, Text: "trigger", HasText: true})
	// give the worker time to fault the sink and re-emit the critical
	// error before Stop (via Finalize) starts refusing new submissions.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, d.Finalize(time.Second))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CriticalError")
}
