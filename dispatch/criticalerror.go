package dispatch

import (
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
)

// CriticalError describes a fault raised by a Sink method, surfaced to
// subscribers alongside the sink's Descriptor.Kind so operators can
// tell which handler misbehaved without correlating against logs.
type CriticalError struct {
	SinkKind string
	Err      error
	Time     time.Time
}

// CriticalErrorHandler receives one CriticalError per faulting call
// that was not suppressed by the rate limiter.
type CriticalErrorHandler func(CriticalError)

// CriticalErrorCollector fans out sink faults to subscribers, throttled
// per sink kind so a sink failing on every entry cannot flood whatever
// the subscribers do (log, page, metrics) — grounded on catrate's
// sliding-window Limiter, used here for its designed purpose rather
// than reimplemented.
type CriticalErrorCollector struct {
	mu        sync.RWMutex
	handlers  []CriticalErrorHandler
	limiter   *catrate.Limiter
}

// defaultCriticalErrorRates caps critical-error re-emission to 5 per
// second and 30 per minute, per sink kind.
func defaultCriticalErrorRates() map[time.Duration]int {
	return map[time.Duration]int{
		time.Second: 5,
		time.Minute: 30,
	}
}

func newCriticalErrorCollector() *CriticalErrorCollector {
	return &CriticalErrorCollector{
		limiter: catrate.NewLimiter(defaultCriticalErrorRates()),
	}
}

// Subscribe registers h to receive future critical errors. It returns
// an unsubscribe function.
func (c *CriticalErrorCollector) Subscribe(h CriticalErrorHandler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.handlers)
	c.handlers = append(c.handlers, h)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.handlers) {
			c.handlers[idx] = nil
		}
	}
}

// report delivers a fault for sinkKind, subject to rate limiting.
func (c *CriticalErrorCollector) report(sinkKind string, err error) {
	if _, ok := c.limiter.Allow(sinkKind); !ok {
		return
	}
	ce := CriticalError{SinkKind: sinkKind, Err: err, Time: time.Now()}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, h := range c.handlers {
		if h != nil {
			h(ce)
		}
	}
}
