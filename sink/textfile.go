package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ArnaudSwail/ckmon/dispatch"
	"github.com/ArnaudSwail/ckmon/entry"
)

// TextFileKind is the Descriptor.Kind for TextFileDescriptor.
const TextFileKind = "ckmon/sink.textfile"

// TextFileDescriptor configures a human-readable text-file sink.
// ApplyConfiguration absorbs a FlushEveryN change in place; a different
// Path always needs a fresh sink, which opens the new file.
type TextFileDescriptor struct {
	Path        string
	FlushEveryN int // flush bufio.Writer every N lines; 0 means "on every line"
}

func (d TextFileDescriptor) Kind() string { return TextFileKind }

// RegisterTextFile registers the text-file sink's factory with reg.
func RegisterTextFile(reg *dispatch.Registry) {
	reg.Register(TextFileKind, func(d dispatch.Descriptor) (dispatch.Sink, error) {
		td, ok := d.(TextFileDescriptor)
		if !ok {
			return nil, fmt.Errorf("ckmon/sink: %T is not a TextFileDescriptor", d)
		}
		return &textFileSink{desc: td}, nil
	})
}

type textFileSink struct {
	desc    TextFileDescriptor
	f       *os.File
	w       *bufio.Writer
	sinceFlush int
}

func (s *textFileSink) Activate(m *dispatch.SelfMonitor) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(s.desc.Path), 0o755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(s.desc.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false, err
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	m.Line(entry.LevelInfo, "text file sink opened: "+s.desc.Path, entry.Tags{})
	return true, nil
}

func (s *textFileSink) ApplyConfiguration(d dispatch.Descriptor) (bool, error) {
	td, ok := d.(TextFileDescriptor)
	if !ok {
		return false, nil
	}
	if td.Path != s.desc.Path {
		return false, nil // path change requires a fresh sink (reopen a new file)
	}
	s.desc = td
	return true, nil
}

func (s *textFileSink) Handle(m *dispatch.SelfMonitor, e *entry.Entry) error {
	if _, err := s.w.WriteString(formatLine(e)); err != nil {
		return err
	}
	s.sinceFlush++
	if s.desc.FlushEveryN <= 0 || s.sinceFlush >= s.desc.FlushEveryN {
		s.sinceFlush = 0
		return s.w.Flush()
	}
	return nil
}

func (s *textFileSink) OnTimer(m *dispatch.SelfMonitor, period time.Duration) error {
	return s.w.Flush()
}

func (s *textFileSink) Deactivate(m *dispatch.SelfMonitor) error {
	if s.w == nil {
		return nil
	}
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// formatLine renders e in the loggable single-line form used by the
// text-file sink: "timestamp level text  {tags}", with ">[depth]" or
// "<[depth]" after the level for open and close group entries, and an
// exception's type and message on a second, indented line.
func formatLine(e *entry.Entry) string {
	depth := uint32(0)
	if e.Multicast != nil {
		depth = e.Multicast.GroupDepth
	}
	prefix := e.Timestamp.String() + " " + e.Level.Level.String()
	switch e.Kind {
	case entry.KindOpenGroup:
		prefix += fmt.Sprintf(" >[%d]", depth)
	case entry.KindCloseGroup:
		prefix += fmt.Sprintf(" <[%d]", depth)
	}
	line := prefix + " " + e.Text
	if !e.Tags.Empty() {
		line += "  {" + e.Tags.String() + "}"
	}
	if e.Exception != nil {
		line += "\n    ! " + e.Exception.Type + ": " + e.Exception.Message
	}
	return line + "\n"
}
