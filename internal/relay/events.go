package relay

import "time"

// EventKind names a session lifecycle event.
type EventKind string

const (
	EventLive             EventKind = "live"
	EventEnded            EventKind = "ended"
	EventError            EventKind = "error"
	EventPlaylistProgress EventKind = "playlist-progress"
)

// Terminal reports whether the event closes a session.
func (k EventKind) Terminal() bool {
	return k == EventEnded || k == EventError
}

// Event is delivered to an EventSink on each session transition.
type Event struct {
	Kind     EventKind    `json:"kind"`
	StreamID string       `json:"stream_id"`
	OwnerID  string       `json:"owner_id,omitempty"`
	At       time.Time    `json:"at"`
	Status   StreamStatus `json:"status"`
}

// EventSink receives orchestrator events. Publish is called synchronously from
// supervisor goroutines, never while the orchestrator holds its lock, and in
// order for any single stream.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Publish calls f(e).
func (f EventSinkFunc) Publish(e Event) { f(e) }

type discardSink struct{}

func (discardSink) Publish(Event) {}
