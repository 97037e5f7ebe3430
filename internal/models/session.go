package models

import "time"

// StreamSession records one completed relay session for history and analytics.
type StreamSession struct {
	BaseModel

	StreamID ULID `gorm:"type:varchar(26);not null;index" json:"stream_id"`

	StartedAt time.Time `gorm:"not null;index" json:"started_at"`
	EndedAt   time.Time `gorm:"not null" json:"ended_at"`

	// DurationSeconds is EndedAt minus StartedAt, truncated.
	DurationSeconds int64 `gorm:"not null;default:0" json:"duration_seconds"`

	// Outcome is the terminal state the session reached (idle or error).
	Outcome string `gorm:"size:20" json:"outcome"`

	// Error holds the terminal error message, if any.
	Error string `gorm:"size:4096" json:"error,omitempty"`

	// ItemsPlayed counts playlist legs started during the session.
	ItemsPlayed int `gorm:"default:0" json:"items_played"`
}

// TableName returns the table name for StreamSession.
func (StreamSession) TableName() string {
	return "stream_sessions"
}

// SessionSummary aggregates a stream's session history.
type SessionSummary struct {
	TotalSessions        int64 `json:"total_sessions"`
	TotalDurationSeconds int64 `json:"total_duration_seconds"`
	FailedSessions       int64 `json:"failed_sessions"`
}

// AverageDurationSeconds returns the mean session length, or zero without history.
func (s SessionSummary) AverageDurationSeconds() int64 {
	if s.TotalSessions == 0 {
		return 0
	}
	return s.TotalDurationSeconds / s.TotalSessions
}
