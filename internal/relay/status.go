package relay

import "time"

// State is the lifecycle state of a stream.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateLive     State = "live"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// Active reports whether the state belongs to a running session.
func (s State) Active() bool {
	return s == StateStarting || s == StateLive || s == StateStopping
}

// StreamConfig is the immutable input for one relay session.
type StreamConfig struct {
	StreamID string
	OwnerID  string
	Platform Platform
	// StreamKey is appended to the ingest URL and must not be logged.
	StreamKey string
	// RTMPURL overrides the platform's default ingest endpoint when set.
	RTMPURL string
	Quality Quality
	Mode    PlaybackMode
	// RepeatPlaylist wraps sequential and random playlists back to the first item.
	RepeatPlaylist bool
	// Media is the primary media path, used when Playlist is empty.
	Media string
	// Playlist holds ordered media paths.
	Playlist []string
}

// Telemetry is best-effort progress reported by the relay process.
type Telemetry struct {
	FPS     float64 `json:"fps"`
	Bitrate string  `json:"bitrate,omitempty"`
	Frame   int64   `json:"frame,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

// StreamStatus is a point-in-time snapshot of a session. Callers own their copy.
type StreamStatus struct {
	StreamID     string        `json:"stream_id"`
	State        State         `json:"state"`
	CurrentMedia string        `json:"current_media,omitempty"`
	CurrentIndex int           `json:"current_index"`
	TotalItems   int           `json:"total_items"`
	LegsStarted  int           `json:"legs_started"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Uptime       time.Duration `json:"uptime"`
	Error        string        `json:"error,omitempty"`
	Telemetry    *Telemetry    `json:"telemetry,omitempty"`
}

// UptimeSeconds returns the uptime truncated to whole seconds.
func (s StreamStatus) UptimeSeconds() int64 {
	return int64(s.Uptime / time.Second)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
