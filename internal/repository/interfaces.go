// Package repository defines data access interfaces for restreamer entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
)

// StreamRepository defines operations for stream persistence.
type StreamRepository interface {
	Create(ctx context.Context, stream *models.Stream) error
	// GetByID returns models.ErrNotFound when the stream does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.Stream, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Stream, error)
	Update(ctx context.Context, stream *models.Stream) error
	Delete(ctx context.Context, id models.ULID) error
	// UpdateStatus records a lifecycle transition. startedAt is only written when non-nil.
	UpdateStatus(ctx context.Context, id models.ULID, status relay.State, lastError string, startedAt *time.Time) error
	// ResetActive marks streams left in an active state by a previous process as idle.
	ResetActive(ctx context.Context) (int64, error)
	// ProvisionStream creates a stream carrying a schedule's destination settings.
	ProvisionStream(ctx context.Context, schedule *models.StreamSchedule) (models.ULID, error)
}

// ScheduleRepository defines operations for schedule persistence.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *models.StreamSchedule) error
	// GetByID returns models.ErrNotFound when the schedule does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.StreamSchedule, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.StreamSchedule, error)
	Update(ctx context.Context, schedule *models.StreamSchedule) error
	Delete(ctx context.Context, id models.ULID) error
	// GetDue returns active schedules whose next run is at or before now.
	GetDue(ctx context.Context, now time.Time) ([]*models.StreamSchedule, error)
	BindStream(ctx context.Context, scheduleID, streamID models.ULID) error
	// RecordRun advances bookkeeping after a dispatch attempt.
	RecordRun(ctx context.Context, scheduleID models.ULID, run models.ScheduleRun) error
	SetActive(ctx context.Context, id models.ULID, active bool, nextRunAt *time.Time) error
}

// MediaRepository defines operations for videos and playlists and resolves
// them to files on disk.
type MediaRepository interface {
	CreateVideo(ctx context.Context, video *models.Video) error
	GetVideo(ctx context.Context, id models.ULID) (*models.Video, error)
	ListVideos(ctx context.Context, ownerID string) ([]*models.Video, error)
	DeleteVideo(ctx context.Context, id models.ULID) error
	// StorageSummary counts an owner's videos and sums their sizes.
	StorageSummary(ctx context.Context, ownerID string) (models.StorageSummary, error)

	// CreatePlaylist stores the playlist with videoIDs as its items in order.
	CreatePlaylist(ctx context.Context, playlist *models.Playlist, videoIDs []models.ULID) error
	// GetPlaylist returns the playlist with items ordered by position.
	GetPlaylist(ctx context.Context, id models.ULID) (*models.Playlist, error)
	ListPlaylists(ctx context.Context, ownerID string) ([]*models.Playlist, error)
	DeletePlaylist(ctx context.Context, id models.ULID) error
	// AddPlaylistItem appends a video at the next position. It reports false
	// when the video is already in the playlist.
	AddPlaylistItem(ctx context.Context, playlistID, videoID models.ULID) (bool, error)
	// RemovePlaylistItem removes every occurrence of a video and closes the
	// gaps in the remaining positions.
	RemovePlaylistItem(ctx context.Context, playlistID, videoID models.ULID) error

	// ResolveVideo returns the absolute path of an owner's video or models.ErrMediaNotFound.
	ResolveVideo(ctx context.Context, ownerID string, videoID models.ULID) (string, error)
	// ResolvePlaylist returns absolute paths in playlist order, models.ErrMediaNotFound
	// for an unknown playlist, or models.ErrEmptyPlaylist when no item resolves.
	ResolvePlaylist(ctx context.Context, ownerID string, playlistID models.ULID) ([]string, error)
}

// SessionRepository defines operations for session history.
type SessionRepository interface {
	Create(ctx context.Context, session *models.StreamSession) error
	// ListByStream returns the newest sessions first, at most limit rows.
	ListByStream(ctx context.Context, streamID models.ULID, limit int) ([]*models.StreamSession, error)
	Summary(ctx context.Context, streamID models.ULID) (models.SessionSummary, error)
	// DeleteOlderThan removes sessions that ended before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
