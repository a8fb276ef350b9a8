package producer

import (
	"time"

	"github.com/ArnaudSwail/ckmon/dispatch"
	"github.com/ArnaudSwail/ckmon/entry"
)

// externalSource is the process-wide monotone timestamp source for the
// contextless (no monitor) log path, shared by every call to Log on
// every Dispatcher (spec.md §4.8 "external log path").
var externalSource entry.Source

// Log emits a single multicast line through disp's external log path,
// gated by disp.ExternalFilter() unless lf.IsFiltered is set. It carries
// ZeroMonitorID as its monitor identity and group depth 0, signalling
// "not attributable to a producer client" to readers.
func Log(disp *dispatch.Dispatcher, lf entry.LevelFilter, text string, tags entry.Tags) {
	if !lf.IsFiltered && lf.Level < disp.ExternalFilter() {
		return
	}
	ts := externalSource.Next(time.Now())
	disp.Submit(&entry.Entry{
		Kind:      entry.KindLine,
		Timestamp: ts,
		Level:     lf,
		Text:      text,
		HasText:   text != "",
		Tags:      tags,
		Multicast: &entry.Multicast{
			MonitorID: entry.ZeroMonitorID,
		},
	})
}

// LogException is Log's counterpart for entries carrying structured
// exception data.
func LogException(disp *dispatch.Dispatcher, lf entry.LevelFilter, text string, ex *entry.ExceptionData, tags entry.Tags) {
	if !lf.IsFiltered && lf.Level < disp.ExternalFilter() {
		return
	}
	ts := externalSource.Next(time.Now())
	disp.Submit(&entry.Entry{
		Kind:      entry.KindLine,
		Timestamp: ts,
		Level:     lf,
		Text:      text,
		HasText:   text != "",
		Tags:      tags,
		Exception: ex,
		Multicast: &entry.Multicast{
			MonitorID: entry.ZeroMonitorID,
		},
	})
}
