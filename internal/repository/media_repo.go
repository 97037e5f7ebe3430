package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/restreamer/internal/models"
)

// mediaRepo implements MediaRepository using GORM. Paths are resolved
// under mediaDir.
type mediaRepo struct {
	db       *gorm.DB
	mediaDir string
}

// NewMediaRepository creates a new MediaRepository rooted at mediaDir.
func NewMediaRepository(db *gorm.DB, mediaDir string) *mediaRepo {
	return &mediaRepo{db: db, mediaDir: mediaDir}
}

// CreateVideo registers a video file.
func (r *mediaRepo) CreateVideo(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

// GetVideo retrieves a video by ID.
func (r *mediaRepo) GetVideo(ctx context.Context, id models.ULID) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("getting video by ID: %w", err)
	}
	return &video, nil
}

// ListVideos retrieves an owner's videos, newest first.
func (r *mediaRepo) ListVideos(ctx context.Context, ownerID string) ([]*models.Video, error) {
	var videos []*models.Video
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	return videos, nil
}

// DeleteVideo deletes a video and removes it from every playlist.
func (r *mediaRepo) DeleteVideo(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var playlistIDs []models.ULID
		if err := tx.Model(&models.PlaylistItem{}).
			Where("video_id = ?", id).
			Distinct().
			Pluck("playlist_id", &playlistIDs).Error; err != nil {
			return fmt.Errorf("finding playlists of video: %w", err)
		}
		if err := tx.Where("video_id = ?", id).Delete(&models.PlaylistItem{}).Error; err != nil {
			return fmt.Errorf("deleting playlist items: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Video{})
		if result.Error != nil {
			return fmt.Errorf("deleting video: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrNotFound
		}
		for _, playlistID := range playlistIDs {
			if err := renumberPlaylist(tx, playlistID); err != nil {
				return err
			}
		}
		return nil
	})
}

// StorageSummary counts an owner's videos and sums their sizes.
func (r *mediaRepo) StorageSummary(ctx context.Context, ownerID string) (models.StorageSummary, error) {
	var summary models.StorageSummary
	err := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Select("COUNT(*) AS total_videos, COALESCE(SUM(size_bytes), 0) AS total_size_bytes").
		Where("owner_id = ?", ownerID).
		Scan(&summary).Error
	if err != nil {
		return models.StorageSummary{}, fmt.Errorf("summarising storage: %w", err)
	}
	return summary, nil
}

// CreatePlaylist stores a playlist and its items. Every video must exist and
// belong to the playlist's owner.
func (r *mediaRepo) CreatePlaylist(ctx context.Context, playlist *models.Playlist, videoIDs []models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(videoIDs) > 0 {
			var count int64
			if err := tx.Model(&models.Video{}).
				Where("id IN ? AND owner_id = ?", distinct(videoIDs), playlist.OwnerID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("checking playlist videos: %w", err)
			}
			if count != int64(len(distinct(videoIDs))) {
				return models.ErrMediaNotFound
			}
		}

		playlist.Items = make([]models.PlaylistItem, len(videoIDs))
		for i, id := range videoIDs {
			playlist.Items[i] = models.PlaylistItem{VideoID: id, Position: i}
		}

		if err := tx.Create(playlist).Error; err != nil {
			return fmt.Errorf("creating playlist: %w", err)
		}
		return nil
	})
}

func distinct(ids []models.ULID) []models.ULID {
	seen := make(map[models.ULID]bool, len(ids))
	out := make([]models.ULID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// GetPlaylist retrieves a playlist with its items and videos in position order.
func (r *mediaRepo) GetPlaylist(ctx context.Context, id models.ULID) (*models.Playlist, error) {
	var playlist models.Playlist
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Items.Video").
		Where("id = ?", id).
		First(&playlist).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("getting playlist by ID: %w", err)
	}
	return &playlist, nil
}

// ListPlaylists retrieves an owner's playlists without items.
func (r *mediaRepo) ListPlaylists(ctx context.Context, ownerID string) ([]*models.Playlist, error) {
	var playlists []*models.Playlist
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&playlists).Error; err != nil {
		return nil, fmt.Errorf("listing playlists: %w", err)
	}
	return playlists, nil
}

// DeletePlaylist deletes a playlist and its items.
func (r *mediaRepo) DeletePlaylist(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", id).Delete(&models.PlaylistItem{}).Error; err != nil {
			return fmt.Errorf("deleting playlist items: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Playlist{})
		if result.Error != nil {
			return fmt.Errorf("deleting playlist: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// AddPlaylistItem appends a video at the next position. The video must belong
// to the playlist's owner; a video already in the playlist is left in place.
func (r *mediaRepo) AddPlaylistItem(ctx context.Context, playlistID, videoID models.ULID) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var playlist models.Playlist
		if err := tx.Where("id = ?", playlistID).First(&playlist).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrNotFound
			}
			return fmt.Errorf("getting playlist by ID: %w", err)
		}

		var count int64
		if err := tx.Model(&models.Video{}).
			Where("id = ? AND owner_id = ?", videoID, playlist.OwnerID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("checking video: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("video %s: %w", videoID, models.ErrMediaNotFound)
		}

		if err := tx.Model(&models.PlaylistItem{}).
			Where("playlist_id = ? AND video_id = ?", playlistID, videoID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("checking playlist membership: %w", err)
		}
		if count > 0 {
			return nil
		}

		var next int
		if err := tx.Model(&models.PlaylistItem{}).
			Select("COALESCE(MAX(position), -1) + 1").
			Where("playlist_id = ?", playlistID).
			Scan(&next).Error; err != nil {
			return fmt.Errorf("finding next position: %w", err)
		}

		item := models.PlaylistItem{PlaylistID: playlistID, VideoID: videoID, Position: next}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("adding playlist item: %w", err)
		}
		added = true
		return nil
	})
	return added, err
}

// RemovePlaylistItem removes a video from a playlist and renumbers the rest.
func (r *mediaRepo) RemovePlaylistItem(ctx context.Context, playlistID, videoID models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("playlist_id = ? AND video_id = ?", playlistID, videoID).Delete(&models.PlaylistItem{})
		if result.Error != nil {
			return fmt.Errorf("removing playlist item: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return renumberPlaylist(tx, playlistID)
	})
}

// renumberPlaylist rewrites positions as 0..n-1 keeping their order. Items
// only ever move down, so the position index never sees a duplicate.
func renumberPlaylist(tx *gorm.DB, playlistID models.ULID) error {
	var items []models.PlaylistItem
	if err := tx.Where("playlist_id = ?", playlistID).Order("position ASC").Find(&items).Error; err != nil {
		return fmt.Errorf("loading playlist items: %w", err)
	}
	for i, item := range items {
		if item.Position == i {
			continue
		}
		if err := tx.Model(&models.PlaylistItem{}).
			Where("id = ?", item.ID).
			Update("position", i).Error; err != nil {
			return fmt.Errorf("renumbering playlist items: %w", err)
		}
	}
	return nil
}

// ResolveVideo maps an owner's video to its absolute path.
func (r *mediaRepo) ResolveVideo(ctx context.Context, ownerID string, videoID models.ULID) (string, error) {
	var video models.Video
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", videoID, ownerID).First(&video).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("video %s: %w", videoID, models.ErrMediaNotFound)
		}
		return "", fmt.Errorf("resolving video: %w", err)
	}
	return video.Path(r.mediaDir), nil
}

// ResolvePlaylist maps an owner's playlist to absolute paths in item order.
func (r *mediaRepo) ResolvePlaylist(ctx context.Context, ownerID string, playlistID models.ULID) ([]string, error) {
	var playlist models.Playlist
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", playlistID, ownerID).First(&playlist).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("playlist %s: %w", playlistID, models.ErrMediaNotFound)
		}
		return nil, fmt.Errorf("resolving playlist: %w", err)
	}

	var videos []models.Video
	err = r.db.WithContext(ctx).
		Table("playlist_items").
		Select("videos.*").
		Joins("JOIN videos ON videos.id = playlist_items.video_id").
		Where("playlist_items.playlist_id = ?", playlistID).
		Order("playlist_items.position ASC").
		Scan(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("resolving playlist items: %w", err)
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, models.ErrEmptyPlaylist)
	}

	paths := make([]string, len(videos))
	for i := range videos {
		paths[i] = videos[i].Path(r.mediaDir)
	}
	return paths, nil
}
