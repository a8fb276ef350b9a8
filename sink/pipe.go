package sink

import (
	"fmt"
	"io"
	"time"

	"github.com/ArnaudSwail/ckmon/codec"
	"github.com/ArnaudSwail/ckmon/dispatch"
	"github.com/ArnaudSwail/ckmon/entry"
)

// PipeKind is the Descriptor.Kind for PipeDescriptor.
const PipeKind = "ckmon/sink.pipe"

// PipeDescriptor configures a one-way inter-process pipe sink: a
// version header on open, unicast Line/OpenGroup/CloseGroup entries in
// between, and a single zero byte followed by a clean close on dispose
// (spec.md §4.9, §6 "Pipe protocol"). Conn is typically a net.Conn or
// the write end of an os.Pipe. On reconfiguration a PipeDescriptor
// carrying the same Conn is absorbed in place; a different Conn always
// gets a fresh sink.
type PipeDescriptor struct {
	Conn io.WriteCloser
}

func (d PipeDescriptor) Kind() string { return PipeKind }

// RegisterPipe registers the pipe sink's factory with reg.
func RegisterPipe(reg *dispatch.Registry) {
	reg.Register(PipeKind, func(d dispatch.Descriptor) (dispatch.Sink, error) {
		pd, ok := d.(PipeDescriptor)
		if !ok {
			return nil, fmt.Errorf("ckmon/sink: %T is not a PipeDescriptor", d)
		}
		if pd.Conn == nil {
			return nil, fmt.Errorf("ckmon/sink: pipe descriptor has a nil connection")
		}
		return &pipeSink{desc: pipeDescriptorHolder{conn: pd.Conn}}, nil
	})
}

type pipeSink struct {
	desc pipeDescriptorHolder
	enc  *codec.Writer
}

// pipeDescriptorHolder keeps only the connection from the
// PipeDescriptor; ApplyConfiguration's identity check compares that
// Conn interface value directly with the offered one.
type pipeDescriptorHolder struct {
	conn io.WriteCloser
}

func (s *pipeSink) Activate(m *dispatch.SelfMonitor) (bool, error) {
	s.enc = codec.NewWriter(s.desc.conn)
	if err := s.enc.WriteHeader(codec.StreamVersion); err != nil {
		return false, err
	}
	return true, nil
}

func (s *pipeSink) ApplyConfiguration(d dispatch.Descriptor) (bool, error) {
	pd, ok := d.(PipeDescriptor)
	if !ok {
		return false, nil
	}
	// a pipe's identity IS its connection; a new connection always
	// means a fresh sink, never an in-place reconfiguration.
	return pd.Conn == s.desc.conn, nil
}

// Handle strips any multicast wrapper before writing, since the pipe
// protocol is unicast-only (spec.md §4.9): the remote end is always
// exactly one producer.
func (s *pipeSink) Handle(m *dispatch.SelfMonitor, e *entry.Entry) error {
	if e.Multicast == nil {
		return s.enc.WriteEntry(e)
	}
	unicast := *e
	unicast.Multicast = nil
	return s.enc.WriteEntry(&unicast)
}

func (s *pipeSink) OnTimer(m *dispatch.SelfMonitor, period time.Duration) error {
	return nil
}

func (s *pipeSink) Deactivate(m *dispatch.SelfMonitor) error {
	if s.enc == nil {
		return nil
	}
	err := s.enc.WriteEOF()
	if cerr := s.desc.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
