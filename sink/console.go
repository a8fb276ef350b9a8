package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ArnaudSwail/ckmon/dispatch"
	"github.com/ArnaudSwail/ckmon/entry"
)

// ConsoleKind is the Descriptor.Kind for ConsoleDescriptor.
const ConsoleKind = "ckmon/sink.console"

// ConsoleDescriptor configures a sink that writes formatted lines to
// an io.Writer, defaulting to os.Stdout. It exists mainly for local
// development and tests; two ConsoleDescriptors are == only when they
// share the same Writer value, so swapping the Writer always forces a
// fresh sink rather than reusing the buffered state of the old one.
type ConsoleDescriptor struct {
	Writer    io.Writer
	MinLevel  entry.Level
}

func (d ConsoleDescriptor) Kind() string { return ConsoleKind }

// RegisterConsole registers the console sink's factory with reg.
func RegisterConsole(reg *dispatch.Registry) {
	reg.Register(ConsoleKind, func(d dispatch.Descriptor) (dispatch.Sink, error) {
		cd, ok := d.(ConsoleDescriptor)
		if !ok {
			return nil, fmt.Errorf("ckmon/sink: %T is not a ConsoleDescriptor", d)
		}
		if cd.Writer == nil {
			cd.Writer = os.Stdout
		}
		return &consoleSink{desc: cd, w: bufio.NewWriter(cd.Writer)}, nil
	})
}

type consoleSink struct {
	desc ConsoleDescriptor
	w    *bufio.Writer
}

func (s *consoleSink) Activate(m *dispatch.SelfMonitor) (bool, error) { return true, nil }

func (s *consoleSink) ApplyConfiguration(d dispatch.Descriptor) (bool, error) {
	cd, ok := d.(ConsoleDescriptor)
	if !ok || cd.Writer != s.desc.Writer {
		return false, nil
	}
	s.desc.MinLevel = cd.MinLevel
	return true, nil
}

func (s *consoleSink) Handle(m *dispatch.SelfMonitor, e *entry.Entry) error {
	if e.Level.Level < s.desc.MinLevel && !e.Level.IsFiltered {
		return nil
	}
	_, err := s.w.WriteString(formatLine(e))
	if err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *consoleSink) OnTimer(m *dispatch.SelfMonitor, period time.Duration) error {
	return s.w.Flush()
}

func (s *consoleSink) Deactivate(m *dispatch.SelfMonitor) error {
	return s.w.Flush()
}
