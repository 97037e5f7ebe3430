package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/repository"
	"github.com/jmylchreest/restreamer/internal/storage"
)

// MediaService registers videos already present in the media directory and
// manages playlists built from them.
type MediaService struct {
	media   repository.MediaRepository
	library *storage.Library
	logger  *slog.Logger
}

// NewMediaService creates a new media service backed by library.
func NewMediaService(media repository.MediaRepository, library *storage.Library) *MediaService {
	return &MediaService{
		media:   media,
		library: library,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the service.
func (s *MediaService) WithLogger(logger *slog.Logger) *MediaService {
	s.logger = logger
	return s
}

// CreateVideo registers a file under <media_dir>/<owner_id>. The file must
// exist; its size is read from disk.
func (s *MediaService) CreateVideo(ctx context.Context, video *models.Video) error {
	if err := video.Validate(); err != nil {
		return err
	}

	info, err := s.library.Stat(video.OwnerID, video.Filename)
	switch {
	case errors.Is(err, storage.ErrEscapesLibrary):
		return models.ErrValidation{Field: "owner_id", Message: "must be a single path segment"}
	case errors.Is(err, fs.ErrNotExist):
		return models.ErrValidation{Field: "filename", Message: "file does not exist in the media directory"}
	case err != nil:
		return fmt.Errorf("reading video file: %w", err)
	case info.IsDir():
		return models.ErrValidation{Field: "filename", Message: "is a directory"}
	}
	video.SizeBytes = info.Size()

	if err := s.media.CreateVideo(ctx, video); err != nil {
		return err
	}
	s.logger.Info("registered video",
		slog.String("video_id", video.ID.String()),
		slog.String("owner_id", video.OwnerID),
		slog.Int64("size_bytes", video.SizeBytes))
	return nil
}

// GetVideo retrieves a video.
func (s *MediaService) GetVideo(ctx context.Context, id models.ULID) (*models.Video, error) {
	return s.media.GetVideo(ctx, id)
}

// ListVideos retrieves an owner's videos.
func (s *MediaService) ListVideos(ctx context.Context, ownerID string) ([]*models.Video, error) {
	return s.media.ListVideos(ctx, ownerID)
}

// MediaFile is a file in an owner's media directory.
type MediaFile struct {
	storage.File
	Registered bool
}

// ListFiles returns the video files on disk for an owner, flagging those
// already registered as videos.
func (s *MediaService) ListFiles(ctx context.Context, ownerID string) ([]MediaFile, error) {
	files, err := s.library.ListFiles(ownerID)
	if errors.Is(err, storage.ErrEscapesLibrary) {
		return nil, models.ErrValidation{Field: "owner_id", Message: "must be a single path segment"}
	}
	if err != nil {
		return nil, err
	}

	videos, err := s.media.ListVideos(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	registered := make(map[string]bool, len(videos))
	for _, v := range videos {
		registered[filepath.ToSlash(v.Filename)] = true
	}

	result := make([]MediaFile, len(files))
	for i, f := range files {
		result[i] = MediaFile{File: f, Registered: registered[f.Name]}
	}
	return result, nil
}

// DeleteVideo removes a video record and its playlist entries. The file stays on disk.
func (s *MediaService) DeleteVideo(ctx context.Context, id models.ULID) error {
	return s.media.DeleteVideo(ctx, id)
}

// CreatePlaylist stores a playlist of the owner's videos in the given order.
func (s *MediaService) CreatePlaylist(ctx context.Context, playlist *models.Playlist, videoIDs []models.ULID) error {
	if err := playlist.Validate(); err != nil {
		return err
	}
	if len(videoIDs) == 0 {
		return models.ErrValidation{Field: "video_ids", Message: "at least one video is required"}
	}
	if err := s.media.CreatePlaylist(ctx, playlist, videoIDs); err != nil {
		return mediaValidation("video_ids", err)
	}
	return nil
}

// GetPlaylist retrieves a playlist with its items in order.
func (s *MediaService) GetPlaylist(ctx context.Context, id models.ULID) (*models.Playlist, error) {
	return s.media.GetPlaylist(ctx, id)
}

// ListPlaylists retrieves an owner's playlists.
func (s *MediaService) ListPlaylists(ctx context.Context, ownerID string) ([]*models.Playlist, error) {
	return s.media.ListPlaylists(ctx, ownerID)
}

// DeletePlaylist removes a playlist.
func (s *MediaService) DeletePlaylist(ctx context.Context, id models.ULID) error {
	return s.media.DeletePlaylist(ctx, id)
}

// AddPlaylistVideo appends one of the owner's videos to a playlist. Adding a
// video that is already present leaves the playlist unchanged.
func (s *MediaService) AddPlaylistVideo(ctx context.Context, playlistID, videoID models.ULID) (*models.Playlist, error) {
	added, err := s.media.AddPlaylistItem(ctx, playlistID, videoID)
	if err != nil {
		return nil, mediaValidation("video_id", err)
	}
	if added {
		s.logger.Info("added video to playlist",
			slog.String("playlist_id", playlistID.String()),
			slog.String("video_id", videoID.String()))
	}
	return s.media.GetPlaylist(ctx, playlistID)
}

// RemovePlaylistVideo removes a video from a playlist. Later items move up.
func (s *MediaService) RemovePlaylistVideo(ctx context.Context, playlistID, videoID models.ULID) error {
	if err := s.media.RemovePlaylistItem(ctx, playlistID, videoID); err != nil {
		return err
	}
	s.logger.Info("removed video from playlist",
		slog.String("playlist_id", playlistID.String()),
		slog.String("video_id", videoID.String()))
	return nil
}

// StorageSummary totals the size of an owner's registered videos.
func (s *MediaService) StorageSummary(ctx context.Context, ownerID string) (models.StorageSummary, error) {
	return s.media.StorageSummary(ctx, ownerID)
}
