package producer

import (
	"fmt"
	"sync"
	"time"

	"github.com/ArnaudSwail/ckmon/dispatch"
	"github.com/ArnaudSwail/ckmon/entry"
	"github.com/google/uuid"
)

// ErrNoOpenGroup is returned by CloseGroup when called at depth zero.
var ErrNoOpenGroup = fmt.Errorf("ckmon/producer: CloseGroup called with no open group")

// Client is one producer's handle onto a Dispatcher: it owns a stable
// monitor identity, a monotone per-monitor timestamp source, and the
// group-depth and previous-entry bookkeeping needed to multicast-wrap
// every entry it emits (spec.md §4.5, §3 "Multicast").
//
// A Client is safe for concurrent use; entries from concurrent callers
// interleave but each is stamped with a strictly increasing timestamp
// and a consistent view of group depth, since both are guarded by the
// same mutex that orders the emitted sequence.
type Client struct {
	id   uuid.UUID
	disp *dispatch.Dispatcher
	src  entry.Source
	depth entry.DepthTracker

	mu       sync.Mutex
	prevTS   entry.Timestamp
	prevKind entry.PrevKind
	topic    string
	autoTags entry.Tags
}

// New returns a Client with a fresh random monitor identity, submitting
// through disp.
func New(disp *dispatch.Dispatcher) *Client {
	return &Client{id: uuid.New(), disp: disp}
}

// ID returns this client's stable monitor identity.
func (c *Client) ID() uuid.UUID { return c.id }

// Depth returns the client's current group nesting depth.
func (c *Client) Depth() uint32 { return c.depth.Depth() }

// SetTopic changes the client's topic, emitting an unfiltered line
// entry recording the change (spec.md §4.5 "on-topic-changed").
func (c *Client) SetTopic(topic string) {
	c.mu.Lock()
	c.topic = topic
	c.mu.Unlock()
	c.emitLine(entry.LevelInfo, false, "Topic changed to \""+topic+"\"", entry.Tags{}, nil)
}

// Topic returns the client's current topic.
func (c *Client) Topic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic
}

// SetAutoTags replaces the tags automatically unioned into every entry
// this client emits from now on (spec.md §4.5 "on-auto-tags-changed").
func (c *Client) SetAutoTags(tags entry.Tags) {
	c.mu.Lock()
	c.autoTags = tags
	c.mu.Unlock()
}

// AutoTags returns the client's current automatic tag set.
func (c *Client) AutoTags() entry.Tags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoTags
}

// OpenGroup begins a new nested group at the given level, gated by the
// dispatcher's current MinimalFilter. It always advances group depth,
// even when the entry itself is filtered out, so CloseGroup bookkeeping
// stays balanced regardless of filtering (spec.md §4.8 "filtering never
// changes group-depth accounting").
func (c *Client) OpenGroup(lf entry.LevelFilter, text string, tags entry.Tags) {
	allowed := c.disp.Filter().AllowsGroup(lf)
	c.mu.Lock()
	tags = entry.Union(c.autoTags, tags)
	depth := c.depth.Open()
	c.mu.Unlock()

	if !allowed {
		return
	}
	c.emit(entry.KindOpenGroup, lf, text, tags, nil, nil, depth)
}

// CloseGroup ends the innermost open group, attaching conclusions. It
// returns ErrNoOpenGroup if called with no group open.
func (c *Client) CloseGroup(conclusions []string) error {
	c.mu.Lock()
	before, err := c.depth.Close()
	if err != nil {
		c.mu.Unlock()
		return ErrNoOpenGroup
	}
	depth := before - 1
	c.mu.Unlock()

	e := c.buildEntry(entry.KindCloseGroup, entry.LevelFilter{}, "", entry.Tags{}, nil, nil, depth)
	e.Conclusions = conclusions
	c.disp.Submit(e)
	return nil
}

// Log emits an unfiltered-log line at lf's level, gated by the
// dispatcher's MinimalFilter.Line threshold unless lf.IsFiltered is
// set (spec.md §4.5 "on-unfiltered-log", §4.8).
func (c *Client) Log(lf entry.LevelFilter, text string, tags entry.Tags) {
	if !c.disp.Filter().Allows(lf) {
		return
	}
	c.emitLine(lf.Level, lf.IsFiltered, text, tags, nil)
}

// LogException emits a line carrying structured exception data.
func (c *Client) LogException(lf entry.LevelFilter, text string, ex *entry.ExceptionData, tags entry.Tags) {
	if !c.disp.Filter().Allows(lf) {
		return
	}
	c.emitLine(lf.Level, lf.IsFiltered, text, tags, ex)
}

func (c *Client) emitLine(level entry.Level, isFiltered bool, text string, tags entry.Tags, ex *entry.ExceptionData) {
	lf := entry.LevelFilter{Level: level, IsFiltered: isFiltered}
	c.mu.Lock()
	tags = entry.Union(c.autoTags, tags)
	depth := c.depth.Depth()
	c.mu.Unlock()
	c.emit(entry.KindLine, lf, text, tags, ex, nil, depth)
}

func (c *Client) emit(kind entry.Kind, lf entry.LevelFilter, text string, tags entry.Tags, ex *entry.ExceptionData, conclusions []string, depth uint32) {
	e := c.buildEntry(kind, lf, text, tags, ex, conclusions, depth)
	c.disp.Submit(e)
}

func (c *Client) buildEntry(kind entry.Kind, lf entry.LevelFilter, text string, tags entry.Tags, ex *entry.ExceptionData, conclusions []string, depth uint32) *entry.Entry {
	ts := c.src.Next(time.Now())

	c.mu.Lock()
	prevTS, prevKind := c.prevTS, c.prevKind
	c.prevTS, c.prevKind = ts, entry.FromKind(kind)
	c.mu.Unlock()

	return &entry.Entry{
		Kind:      kind,
		Timestamp: ts,
		Level:     lf,
		Text:      text,
		HasText:   text != "",
		Tags:      tags,
		Exception: ex,
		Conclusions: conclusions,
		Multicast: &entry.Multicast{
			MonitorID:     c.id,
			GroupDepth:    depth,
			PrevTimestamp: prevTS,
			PrevKind:      prevKind,
		},
	}
}
