package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/restreamer/internal/models"
)

// scheduleRepo implements ScheduleRepository using GORM.
type scheduleRepo struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *gorm.DB) *scheduleRepo {
	return &scheduleRepo{db: db}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func normalizeSchedule(s *models.StreamSchedule) {
	s.ScheduledAt = utcPtr(s.ScheduledAt)
	s.NextRunAt = utcPtr(s.NextRunAt)
	s.LastRunAt = utcPtr(s.LastRunAt)
}

// Create creates a new schedule.
func (r *scheduleRepo) Create(ctx context.Context, schedule *models.StreamSchedule) error {
	normalizeSchedule(schedule)
	if err := r.db.WithContext(ctx).Create(schedule).Error; err != nil {
		return fmt.Errorf("creating schedule: %w", err)
	}
	return nil
}

// GetByID retrieves a schedule by ID.
func (r *scheduleRepo) GetByID(ctx context.Context, id models.ULID) (*models.StreamSchedule, error) {
	var schedule models.StreamSchedule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("getting schedule by ID: %w", err)
	}
	return &schedule, nil
}

// ListByOwner retrieves an owner's schedules, soonest next run first.
func (r *scheduleRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.StreamSchedule, error) {
	var schedules []*models.StreamSchedule
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("next_run_at IS NULL, next_run_at ASC, created_at ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	return schedules, nil
}

// Update saves all fields of an existing schedule.
func (r *scheduleRepo) Update(ctx context.Context, schedule *models.StreamSchedule) error {
	normalizeSchedule(schedule)
	if err := r.db.WithContext(ctx).Save(schedule).Error; err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}
	return nil
}

// Delete deletes a schedule by ID.
func (r *scheduleRepo) Delete(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StreamSchedule{})
	if result.Error != nil {
		return fmt.Errorf("deleting schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetDue retrieves active schedules with next_run_at <= now, oldest first.
func (r *scheduleRepo) GetDue(ctx context.Context, now time.Time) ([]*models.StreamSchedule, error) {
	var schedules []*models.StreamSchedule
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("next_run_at IS NOT NULL AND next_run_at <= ?", now.UTC()).
		Order("next_run_at ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("getting due schedules: %w", err)
	}
	return schedules, nil
}

// BindStream records the stream a schedule starts.
func (r *scheduleRepo) BindStream(ctx context.Context, scheduleID, streamID models.ULID) error {
	return r.updateColumns(ctx, scheduleID, map[string]any{"stream_id": streamID})
}

// RecordRun advances run bookkeeping in a single update.
func (r *scheduleRepo) RecordRun(ctx context.Context, scheduleID models.ULID, run models.ScheduleRun) error {
	updates := map[string]any{
		"last_run_at": run.RanAt.UTC(),
		"next_run_at": utcPtr(run.NextRunAt),
		"run_count":   gorm.Expr("run_count + ?", 1),
		"last_error":  run.Error,
	}
	if run.Deactivate {
		updates["is_active"] = false
	}
	return r.updateColumns(ctx, scheduleID, updates)
}

// SetActive toggles a schedule and replaces its next run.
func (r *scheduleRepo) SetActive(ctx context.Context, id models.ULID, active bool, nextRunAt *time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{
		"is_active":   active,
		"next_run_at": utcPtr(nextRunAt),
	})
}

func (r *scheduleRepo) updateColumns(ctx context.Context, id models.ULID, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.StreamSchedule{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}
