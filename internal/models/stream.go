package models

import (
	"time"

	"github.com/jmylchreest/restreamer/internal/relay"
)

// Stream is a user-owned relay destination with its last known lifecycle state.
type Stream struct {
	BaseModel

	// OwnerID identifies the user that owns the stream.
	OwnerID string `gorm:"not null;size:64;index" json:"owner_id"`

	// Name is a human-readable label.
	Name string `gorm:"not null;size:255" json:"name"`

	// Description is optional free text.
	Description string `gorm:"size:4096" json:"description,omitempty"`

	Platform relay.Platform `gorm:"not null;size:20" json:"platform"`

	// StreamKey is the secret appended to the ingest URL. Never serialized.
	StreamKey string `gorm:"not null;size:512" json:"-"`

	// RTMPURL overrides the platform's default ingest endpoint.
	RTMPURL string `gorm:"size:1024" json:"rtmp_url,omitempty"`

	Quality relay.Quality `gorm:"not null;size:10;default:'1080p'" json:"quality"`

	// VideoID is the primary media used when the stream is started without a playlist.
	VideoID *ULID `gorm:"type:varchar(26)" json:"video_id,omitempty"`

	// Status mirrors the orchestrator's state for API consumers.
	Status relay.State `gorm:"not null;size:20;default:'idle';index" json:"status"`

	// LastError holds the message of the last terminal failure.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`

	// LastStartedAt is when the most recent session began.
	LastStartedAt *time.Time `json:"last_started_at,omitempty"`
}

// TableName returns the table name for Stream.
func (Stream) TableName() string {
	return "streams"
}

// Validate checks required fields and enum values.
func (s *Stream) Validate() error {
	if s.OwnerID == "" {
		return ErrOwnerRequired
	}
	if s.Name == "" {
		return ErrNameRequired
	}
	if s.StreamKey == "" {
		return ErrStreamKeyRequired
	}
	if !s.Platform.Valid() {
		return ErrValidation{Field: "platform", Message: "must be one of youtube, facebook, twitch, custom"}
	}
	if s.Platform == relay.PlatformCustom && s.RTMPURL == "" {
		return ErrValidation{Field: "rtmp_url", Message: "required for custom platform"}
	}
	if s.Quality == "" {
		s.Quality = relay.DefaultQuality
	}
	if !s.Quality.Valid() {
		return ErrValidation{Field: "quality", Message: "must be one of 720p, 1080p, 4k"}
	}
	return nil
}

// IsActive reports whether the persisted status belongs to a running session.
func (s *Stream) IsActive() bool {
	return s.Status.Active()
}
