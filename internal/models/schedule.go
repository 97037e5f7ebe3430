package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/jmylchreest/restreamer/internal/relay"
)

// ScheduleKind is the recurrence kind of a schedule.
type ScheduleKind string

const (
	// ScheduleOnce runs a single time at ScheduledAt.
	ScheduleOnce ScheduleKind = "once"
	// ScheduleDaily runs every day at TimeOfDay.
	ScheduleDaily ScheduleKind = "daily"
	// ScheduleWeekly runs at TimeOfDay on each of Days.
	ScheduleWeekly ScheduleKind = "weekly"
	// ScheduleCron runs on a standard five-field cron expression.
	ScheduleCron ScheduleKind = "cron"
)

// Valid reports whether k is a known schedule kind.
func (k ScheduleKind) Valid() bool {
	switch k {
	case ScheduleOnce, ScheduleDaily, ScheduleWeekly, ScheduleCron:
		return true
	}
	return false
}

// SourceType selects what a schedule plays.
type SourceType string

const (
	SourceVideo    SourceType = "video"
	SourcePlaylist SourceType = "playlist"
)

var (
	timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)
	daysPattern      = regexp.MustCompile(`^[0-6](,[0-6])*$`)
)

// StreamSchedule is a durable definition that starts a stream on a recurrence.
type StreamSchedule struct {
	BaseModel

	OwnerID     string `gorm:"not null;size:64;index" json:"owner_id"`
	Name        string `gorm:"not null;size:255" json:"name"`
	Description string `gorm:"size:4096" json:"description,omitempty"`

	// StreamID is bound on first dispatch when the schedule has no stream yet.
	StreamID *ULID `gorm:"type:varchar(26);index" json:"stream_id,omitempty"`

	Kind ScheduleKind `gorm:"column:schedule_type;not null;size:10" json:"schedule_type"`

	// ScheduledAt is the instant of a once schedule.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// TimeOfDay is HH:MM for daily and weekly schedules.
	TimeOfDay string `gorm:"size:5" json:"time_of_day,omitempty"`

	// Days is a comma separated weekday list, 0=Sunday..6=Saturday.
	Days string `gorm:"size:20" json:"days,omitempty"`

	// CronExpr is a five-field cron expression for cron schedules.
	CronExpr string `gorm:"size:100" json:"cron_expr,omitempty"`

	// Timezone is an IANA zone name. Empty means UTC.
	Timezone string `gorm:"size:64" json:"timezone,omitempty"`

	SourceType SourceType `gorm:"not null;size:10" json:"source_type"`
	VideoID    *ULID      `gorm:"type:varchar(26)" json:"video_id,omitempty"`
	PlaylistID *ULID      `gorm:"type:varchar(26)" json:"playlist_id,omitempty"`

	PlaybackMode   relay.PlaybackMode `gorm:"not null;size:12;default:'loop'" json:"playback_mode"`
	RepeatPlaylist bool               `gorm:"default:false" json:"repeat_playlist"`
	Platform       relay.Platform     `gorm:"not null;size:20" json:"platform"`
	StreamKey      string             `gorm:"not null;size:512" json:"-"`
	RTMPURL        string             `gorm:"size:1024" json:"rtmp_url,omitempty"`
	Quality        relay.Quality      `gorm:"not null;size:10;default:'1080p'" json:"quality"`

	IsActive bool `gorm:"default:true;index" json:"is_active"`

	// NextRunAt is nil when the schedule will not run again.
	NextRunAt *time.Time `gorm:"index" json:"next_run_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	RunCount  int        `gorm:"default:0" json:"run_count"`
	LastError string     `gorm:"size:4096" json:"last_error,omitempty"`
}

// TableName returns the table name for StreamSchedule.
func (StreamSchedule) TableName() string {
	return "stream_schedules"
}

// Validate checks field presence and formats for the schedule's kind and source.
// It does not check that referenced media exists or that ScheduledAt is in the future.
func (s *StreamSchedule) Validate() error {
	if s.OwnerID == "" {
		return ErrOwnerRequired
	}
	if s.Name == "" {
		return ErrNameRequired
	}
	if s.StreamKey == "" {
		return ErrStreamKeyRequired
	}
	if !s.Kind.Valid() {
		return ErrValidation{Field: "schedule_type", Message: "must be one of once, daily, weekly, cron"}
	}

	switch s.Kind {
	case ScheduleOnce:
		if s.ScheduledAt == nil {
			return ErrValidation{Field: "scheduled_at", Message: "required for once schedules"}
		}
	case ScheduleDaily, ScheduleWeekly:
		if !timeOfDayPattern.MatchString(s.TimeOfDay) {
			return ErrValidation{Field: "time_of_day", Message: "must be HH:MM (24 hour)"}
		}
		if s.Kind == ScheduleWeekly && !daysPattern.MatchString(s.Days) {
			return ErrValidation{Field: "days", Message: "must be comma separated weekday numbers 0-6"}
		}
	case ScheduleCron:
		if strings.TrimSpace(s.CronExpr) == "" {
			return ErrValidation{Field: "cron_expr", Message: "required for cron schedules"}
		}
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return ErrValidation{Field: "timezone", Message: "unknown IANA timezone"}
		}
	}

	switch s.SourceType {
	case SourceVideo:
		if s.VideoID == nil || s.VideoID.IsZero() {
			return ErrValidation{Field: "video_id", Message: "required for video source"}
		}
	case SourcePlaylist:
		if s.PlaylistID == nil || s.PlaylistID.IsZero() {
			return ErrValidation{Field: "playlist_id", Message: "required for playlist source"}
		}
	default:
		return ErrValidation{Field: "source_type", Message: "must be video or playlist"}
	}

	if s.PlaybackMode == "" {
		s.PlaybackMode = relay.ModeLoop
	}
	if !s.PlaybackMode.Valid() {
		return ErrValidation{Field: "playback_mode", Message: "must be one of loop, sequential, random"}
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

// Location returns the schedule's timezone, falling back to UTC.
func (s *StreamSchedule) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsOnce reports whether the schedule runs a single time.
func (s *StreamSchedule) IsOnce() bool {
	return s.Kind == ScheduleOnce
}

// IsDue reports whether the schedule should be dispatched at now.
func (s *StreamSchedule) IsDue(now time.Time) bool {
	return s.IsActive && s.NextRunAt != nil && !s.NextRunAt.After(now)
}

// ScheduleRun is the bookkeeping written after a schedule is dispatched.
type ScheduleRun struct {
	RanAt time.Time
	// NextRunAt is nil when the schedule will not run again.
	NextRunAt *time.Time
	// Deactivate clears is_active, used after a once schedule fires.
	Deactivate bool
	// Error is the dispatch failure, empty on success.
	Error string
}
