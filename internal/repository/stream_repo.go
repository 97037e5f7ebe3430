package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
)

// streamRepo implements StreamRepository using GORM.
type streamRepo struct {
	db *gorm.DB
}

// NewStreamRepository creates a new StreamRepository.
func NewStreamRepository(db *gorm.DB) *streamRepo {
	return &streamRepo{db: db}
}

// Create creates a new stream.
func (r *streamRepo) Create(ctx context.Context, stream *models.Stream) error {
	if stream.Status == "" {
		stream.Status = relay.StateIdle
	}
	if err := r.db.WithContext(ctx).Create(stream).Error; err != nil {
		return fmt.Errorf("creating stream: %w", err)
	}
	return nil
}

// GetByID retrieves a stream by ID.
func (r *streamRepo) GetByID(ctx context.Context, id models.ULID) (*models.Stream, error) {
	var stream models.Stream
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&stream).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("getting stream by ID: %w", err)
	}
	return &stream, nil
}

// ListByOwner retrieves an owner's streams, newest first.
func (r *streamRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.Stream, error) {
	var streams []*models.Stream
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&streams).Error; err != nil {
		return nil, fmt.Errorf("listing streams: %w", err)
	}
	return streams, nil
}

// Update saves all fields of an existing stream.
func (r *streamRepo) Update(ctx context.Context, stream *models.Stream) error {
	if err := r.db.WithContext(ctx).Save(stream).Error; err != nil {
		return fmt.Errorf("updating stream: %w", err)
	}
	return nil
}

// Delete deletes a stream and its session history.
func (r *streamRepo) Delete(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("stream_id = ?", id).Delete(&models.StreamSession{}).Error; err != nil {
			return fmt.Errorf("deleting stream sessions: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Stream{})
		if result.Error != nil {
			return fmt.Errorf("deleting stream: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// UpdateStatus records a lifecycle transition.
func (r *streamRepo) UpdateStatus(ctx context.Context, id models.ULID, status relay.State, lastError string, startedAt *time.Time) error {
	updates := map[string]any{
		"status":     status,
		"last_error": lastError,
	}
	if startedAt != nil {
		updates["last_started_at"] = startedAt.UTC()
	}

	result := r.db.WithContext(ctx).Model(&models.Stream{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating stream status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ResetActive marks every stream in an active state as idle.
func (r *streamRepo) ResetActive(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Stream{}).
		Where("status IN ?", []relay.State{relay.StateStarting, relay.StateLive, relay.StateStopping}).
		Updates(map[string]any{"status": relay.StateIdle})
	if result.Error != nil {
		return 0, fmt.Errorf("resetting active streams: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ProvisionStream creates a stream from a schedule's destination settings.
func (r *streamRepo) ProvisionStream(ctx context.Context, schedule *models.StreamSchedule) (models.ULID, error) {
	stream := &models.Stream{
		OwnerID:     schedule.OwnerID,
		Name:        schedule.Name,
		Description: "Created by schedule " + schedule.ID.String(),
		Platform:    schedule.Platform,
		StreamKey:   schedule.StreamKey,
		RTMPURL:     schedule.RTMPURL,
		Quality:     schedule.Quality,
		VideoID:     schedule.VideoID,
	}
	if err := stream.Validate(); err != nil {
		return models.ULID{}, fmt.Errorf("provisioning stream: %w", err)
	}
	if err := r.Create(ctx, stream); err != nil {
		return models.ULID{}, err
	}
	return stream.ID, nil
}
