// Package handlers provides HTTP API handlers for restreamer.
package handlers

import (
	"path/filepath"
	"time"

	"github.com/jmylchreest/restreamer/internal/ffmpeg"
	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
	"github.com/jmylchreest/restreamer/internal/service"
	"github.com/jmylchreest/restreamer/pkg/format"
)

// DeleteOutput is the empty response for deletions.
type DeleteOutput struct{}

// Stream types

// StreamResponse represents a stream in API responses. The stream key is never returned.
type StreamResponse struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Platform      relay.Platform `json:"platform"`
	RTMPURL       string         `json:"rtmp_url,omitempty"`
	Quality       relay.Quality  `json:"quality"`
	VideoID       string         `json:"video_id,omitempty"`
	Status        relay.State    `json:"status"`
	LastError     string         `json:"last_error,omitempty"`
	LastStartedAt *time.Time     `json:"last_started_at,omitempty"`
	HasStreamKey  bool           `json:"has_stream_key"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// StreamFromModel converts a model to a response.
func StreamFromModel(s *models.Stream) StreamResponse {
	return StreamResponse{
		ID:            s.ID.String(),
		OwnerID:       s.OwnerID,
		Name:          s.Name,
		Description:   s.Description,
		Platform:      s.Platform,
		RTMPURL:       s.RTMPURL,
		Quality:       s.Quality,
		VideoID:       optionalIDString(s.VideoID),
		Status:        s.Status,
		LastError:     s.LastError,
		LastStartedAt: s.LastStartedAt,
		HasStreamKey:  s.StreamKey != "",
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// StreamRequest is the request body for creating or updating a stream.
type StreamRequest struct {
	OwnerID     string `json:"owner_id,omitempty" maxLength:"64" doc:"Owner identifier (required on create, ignored on update)"`
	Name        string `json:"name" minLength:"1" maxLength:"255"`
	Description string `json:"description,omitempty" maxLength:"4096"`
	Platform    string `json:"platform" enum:"youtube,facebook,twitch,custom"`
	StreamKey   string `json:"stream_key,omitempty" maxLength:"512" doc:"Ingest stream key (required on create, kept when empty on update)"`
	RTMPURL     string `json:"rtmp_url,omitempty" maxLength:"1024" doc:"Custom ingest URL (required for the custom platform)"`
	Quality     string `json:"quality,omitempty" enum:"720p,1080p,4k" doc:"Output quality (default 1080p)"`
	VideoID     string `json:"video_id,omitempty" doc:"Primary video played when started without a playlist"`
}

// toModel builds a stream model from the request.
func (r StreamRequest) toModel() (*models.Stream, error) {
	videoID, err := parseOptionalID(r.VideoID, "video_id")
	if err != nil {
		return nil, err
	}
	return &models.Stream{
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Description: r.Description,
		Platform:    relay.Platform(r.Platform),
		StreamKey:   r.StreamKey,
		RTMPURL:     r.RTMPURL,
		Quality:     relay.Quality(r.Quality),
		VideoID:     videoID,
	}, nil
}

// StatusResponse is a runtime snapshot of a relay session.
type StatusResponse struct {
	StreamID      string           `json:"stream_id"`
	State         relay.State      `json:"state"`
	CurrentMedia  string           `json:"current_media,omitempty" doc:"File name of the item being relayed"`
	CurrentIndex  int              `json:"current_index"`
	TotalItems    int              `json:"total_items"`
	LegsStarted   int              `json:"legs_started"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Uptime        string           `json:"uptime"`
	Error         string           `json:"error,omitempty"`
	Telemetry     *relay.Telemetry `json:"telemetry,omitempty"`
}

// StatusFromRelay converts a relay snapshot to a response. Server paths are
// reduced to file names.
func StatusFromRelay(st relay.StreamStatus) StatusResponse {
	resp := StatusResponse{
		StreamID:      st.StreamID,
		State:         st.State,
		CurrentIndex:  st.CurrentIndex,
		TotalItems:    st.TotalItems,
		LegsStarted:   st.LegsStarted,
		EndedAt:       st.EndedAt,
		UptimeSeconds: st.UptimeSeconds(),
		Uptime:        format.Uptime(st.Uptime),
		Error:         st.Error,
		Telemetry:     st.Telemetry,
	}
	if st.CurrentMedia != "" {
		resp.CurrentMedia = filepath.Base(st.CurrentMedia)
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		resp.StartedAt = &started
	}
	return resp
}

// LiveStatusResponse is a running stream's status with a process sample.
type LiveStatusResponse struct {
	StatusResponse
	Process *ffmpeg.ProcessStats `json:"process,omitempty"`
}

// LiveStatusFromService converts a service live status to a response.
func LiveStatusFromService(ls *service.LiveStatus) LiveStatusResponse {
	return LiveStatusResponse{
		StatusResponse: StatusFromRelay(ls.StreamStatus),
		Process:        ls.Process,
	}
}

// SessionResponse is one completed session.
type SessionResponse struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	Outcome         string    `json:"outcome"`
	Error           string    `json:"error,omitempty"`
	ItemsPlayed     int       `json:"items_played"`
}

// SessionSummaryResponse aggregates a stream's history.
type SessionSummaryResponse struct {
	TotalSessions          int64  `json:"total_sessions"`
	TotalDurationSeconds   int64  `json:"total_duration_seconds"`
	TotalDuration          string `json:"total_duration"`
	AverageDurationSeconds int64  `json:"average_duration_seconds"`
	FailedSessions         int64  `json:"failed_sessions"`
}

// SessionHistoryFromService converts session history to a response body.
func SessionHistoryFromService(h *service.SessionHistory) ([]SessionResponse, SessionSummaryResponse) {
	sessions := make([]SessionResponse, 0, len(h.Sessions))
	for _, s := range h.Sessions {
		sessions = append(sessions, SessionResponse{
			ID:              s.ID.String(),
			StartedAt:       s.StartedAt,
			EndedAt:         s.EndedAt,
			DurationSeconds: s.DurationSeconds,
			Outcome:         s.Outcome,
			Error:           s.Error,
			ItemsPlayed:     s.ItemsPlayed,
		})
	}
	return sessions, SessionSummaryResponse{
		TotalSessions:          h.Summary.TotalSessions,
		TotalDurationSeconds:   h.Summary.TotalDurationSeconds,
		TotalDuration:          format.Hours(h.Summary.TotalDurationSeconds),
		AverageDurationSeconds: h.Summary.AverageDurationSeconds(),
		FailedSessions:         h.Summary.FailedSessions,
	}
}

// Schedule types

// ScheduleResponse represents a schedule in API responses.
type ScheduleResponse struct {
	ID             string              `json:"id"`
	OwnerID        string              `json:"owner_id"`
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	StreamID       string              `json:"stream_id,omitempty"`
	ScheduleType   models.ScheduleKind `json:"schedule_type"`
	Summary        string              `json:"summary" doc:"Plain English description of the recurrence"`
	ScheduledAt    *time.Time          `json:"scheduled_at,omitempty"`
	TimeOfDay      string              `json:"time_of_day,omitempty"`
	Days           string              `json:"days,omitempty"`
	CronExpr       string              `json:"cron_expr,omitempty"`
	Timezone       string              `json:"timezone,omitempty"`
	SourceType     models.SourceType   `json:"source_type"`
	VideoID        string              `json:"video_id,omitempty"`
	PlaylistID     string              `json:"playlist_id,omitempty"`
	PlaybackMode   relay.PlaybackMode  `json:"playback_mode"`
	RepeatPlaylist bool                `json:"repeat_playlist"`
	Platform       relay.Platform      `json:"platform"`
	RTMPURL        string              `json:"rtmp_url,omitempty"`
	Quality        relay.Quality       `json:"quality"`
	IsActive       bool                `json:"is_active"`
	NextRunAt      *time.Time          `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time          `json:"last_run_at,omitempty"`
	RunCount       int                 `json:"run_count"`
	LastError      string              `json:"last_error,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// ScheduleFromModel converts a model to a response.
func ScheduleFromModel(s *models.StreamSchedule) ScheduleResponse {
	return ScheduleResponse{
		ID:             s.ID.String(),
		OwnerID:        s.OwnerID,
		Name:           s.Name,
		Description:    s.Description,
		StreamID:       optionalIDString(s.StreamID),
		ScheduleType:   s.Kind,
		Summary:        format.Schedule(string(s.Kind), s.TimeOfDay, s.Days, s.CronExpr, s.ScheduledAt, s.Timezone),
		ScheduledAt:    s.ScheduledAt,
		TimeOfDay:      s.TimeOfDay,
		Days:           s.Days,
		CronExpr:       s.CronExpr,
		Timezone:       s.Timezone,
		SourceType:     s.SourceType,
		VideoID:        optionalIDString(s.VideoID),
		PlaylistID:     optionalIDString(s.PlaylistID),
		PlaybackMode:   s.PlaybackMode,
		RepeatPlaylist: s.RepeatPlaylist,
		Platform:       s.Platform,
		RTMPURL:        s.RTMPURL,
		Quality:        s.Quality,
		IsActive:       s.IsActive,
		NextRunAt:      s.NextRunAt,
		LastRunAt:      s.LastRunAt,
		RunCount:       s.RunCount,
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// RecurrenceRequest describes when a schedule runs.
type RecurrenceRequest struct {
	ScheduleType string     `json:"schedule_type" enum:"once,daily,weekly,cron"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty" doc:"Instant of a once schedule (RFC 3339)"`
	TimeOfDay    string     `json:"time_of_day,omitempty" doc:"HH:MM for daily and weekly schedules" example:"09:00"`
	Days         string     `json:"days,omitempty" doc:"Comma separated weekdays, 0=Sunday" example:"1,2,3,4,5"`
	CronExpr     string     `json:"cron_expr,omitempty" doc:"Five-field cron expression" example:"30 18 * * 1-5"`
	Timezone     string     `json:"timezone,omitempty" doc:"IANA timezone, default UTC" example:"Europe/London"`
}

func (r RecurrenceRequest) apply(s *models.StreamSchedule) {
	s.Kind = models.ScheduleKind(r.ScheduleType)
	s.ScheduledAt = r.ScheduledAt
	s.TimeOfDay = r.TimeOfDay
	s.Days = r.Days
	s.CronExpr = r.CronExpr
	s.Timezone = r.Timezone
}

// ScheduleRequest is the request body for creating or updating a schedule.
type ScheduleRequest struct {
	RecurrenceRequest

	OwnerID        string `json:"owner_id,omitempty" maxLength:"64" doc:"Owner identifier (required on create, ignored on update)"`
	Name           string `json:"name" minLength:"1" maxLength:"255"`
	Description    string `json:"description,omitempty" maxLength:"4096"`
	StreamID       string `json:"stream_id,omitempty" doc:"Existing stream to start; created on first run when empty"`
	SourceType     string `json:"source_type" enum:"video,playlist"`
	VideoID        string `json:"video_id,omitempty"`
	PlaylistID     string `json:"playlist_id,omitempty"`
	PlaybackMode   string `json:"playback_mode,omitempty" enum:"loop,sequential,random"`
	RepeatPlaylist bool   `json:"repeat_playlist,omitempty"`
	Platform       string `json:"platform" enum:"youtube,facebook,twitch,custom"`
	StreamKey      string `json:"stream_key,omitempty" maxLength:"512"`
	RTMPURL        string `json:"rtmp_url,omitempty" maxLength:"1024"`
	Quality        string `json:"quality,omitempty" enum:"720p,1080p,4k"`
}

// toModel builds a schedule model from the request.
func (r ScheduleRequest) toModel() (*models.StreamSchedule, error) {
	streamID, err := parseOptionalID(r.StreamID, "stream_id")
	if err != nil {
		return nil, err
	}
	videoID, err := parseOptionalID(r.VideoID, "video_id")
	if err != nil {
		return nil, err
	}
	playlistID, err := parseOptionalID(r.PlaylistID, "playlist_id")
	if err != nil {
		return nil, err
	}

	s := &models.StreamSchedule{
		OwnerID:        r.OwnerID,
		Name:           r.Name,
		Description:    r.Description,
		StreamID:       streamID,
		SourceType:     models.SourceType(r.SourceType),
		VideoID:        videoID,
		PlaylistID:     playlistID,
		PlaybackMode:   relay.PlaybackMode(r.PlaybackMode),
		RepeatPlaylist: r.RepeatPlaylist,
		Platform:       relay.Platform(r.Platform),
		StreamKey:      r.StreamKey,
		RTMPURL:        r.RTMPURL,
		Quality:        relay.Quality(r.Quality),
	}
	r.apply(s)
	return s, nil
}

// Media types

// VideoResponse represents a registered video.
type VideoResponse struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Title           string    `json:"title"`
	Filename        string    `json:"filename"`
	SizeBytes       int64     `json:"size_bytes"`
	Size            string    `json:"size"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// VideoFromModel converts a model to a response.
func VideoFromModel(v *models.Video) VideoResponse {
	return VideoResponse{
		ID:              v.ID.String(),
		OwnerID:         v.OwnerID,
		Title:           v.Title,
		Filename:        v.Filename,
		SizeBytes:       v.SizeBytes,
		Size:            format.Bytes(v.SizeBytes),
		DurationSeconds: v.DurationSeconds,
		CreatedAt:       v.CreatedAt,
	}
}

// PlaylistItemResponse is one entry of a playlist.
type PlaylistItemResponse struct {
	Position int    `json:"position"`
	VideoID  string `json:"video_id"`
	Title    string `json:"title,omitempty"`
}

// PlaylistResponse represents a playlist.
type PlaylistResponse struct {
	ID          string                 `json:"id"`
	OwnerID     string                 `json:"owner_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Items       []PlaylistItemResponse `json:"items"`
	CreatedAt   time.Time              `json:"created_at"`
}

// PlaylistFromModel converts a model to a response.
func PlaylistFromModel(p *models.Playlist) PlaylistResponse {
	items := make([]PlaylistItemResponse, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, PlaylistItemResponse{
			Position: it.Position,
			VideoID:  it.VideoID.String(),
			Title:    it.Video.Title,
		})
	}
	return PlaylistResponse{
		ID:          p.ID.String(),
		OwnerID:     p.OwnerID,
		Name:        p.Name,
		Description: p.Description,
		Items:       items,
		CreatedAt:   p.CreatedAt,
	}
}
