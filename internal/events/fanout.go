// Package events distributes relay lifecycle events to persistence, metrics and
// an optional Redis pub/sub channel.
package events

import (
	"log/slog"

	"github.com/jmylchreest/restreamer/internal/relay"
)

// Fanout delivers each event to every sink in order. A panicking sink is
// logged and does not stop delivery to the others.
type Fanout struct {
	sinks  []relay.EventSink
	logger *slog.Logger
}

// NewFanout creates a fan-out over sinks, skipping nil entries.
func NewFanout(sinks ...relay.EventSink) *Fanout {
	f := &Fanout{logger: slog.Default()}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// WithLogger sets the logger.
func (f *Fanout) WithLogger(logger *slog.Logger) *Fanout {
	f.logger = logger
	return f
}

// Add appends a sink.
func (f *Fanout) Add(sink relay.EventSink) {
	if sink != nil {
		f.sinks = append(f.sinks, sink)
	}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish implements relay.EventSink.
func (f *Fanout) Publish(ev relay.Event) {
	for _, s := range f.sinks {
		f.deliver(s, ev)
	}
}

func (f *Fanout) deliver(s relay.EventSink, ev relay.Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event sink panicked",
				slog.String("kind", string(ev.Kind)),
				slog.String("stream_id", ev.StreamID),
				slog.Any("panic", r))
		}
	}()
	s.Publish(ev)
}
