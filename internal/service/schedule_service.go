package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
	"github.com/jmylchreest/restreamer/internal/repository"
	"github.com/jmylchreest/restreamer/internal/scheduler"
)

const (
	// DefaultPreviewCount is the number of runs previewed when none is requested.
	DefaultPreviewCount = 5
	// MaxPreviewCount caps a next-run preview.
	MaxPreviewCount = 50
)

// ScheduleService provides business logic for stream schedules.
type ScheduleService struct {
	schedules repository.ScheduleRepository
	media     repository.MediaRepository
	clock     relay.Clock
	quality   relay.Quality
	logger    *slog.Logger
}

// NewScheduleService creates a new schedule service.
func NewScheduleService(schedules repository.ScheduleRepository, media repository.MediaRepository) *ScheduleService {
	return &ScheduleService{
		schedules: schedules,
		media:     media,
		clock:     relay.SystemClock{},
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger for the service.
func (s *ScheduleService) WithLogger(logger *slog.Logger) *ScheduleService {
	s.logger = logger
	return s
}

// WithDefaultQuality sets the tier given to new schedules that name none.
func (s *ScheduleService) WithDefaultQuality(q relay.Quality) *ScheduleService {
	s.quality = q
	return s
}

// WithClock sets the clock used to compute next runs.
func (s *ScheduleService) WithClock(clock relay.Clock) *ScheduleService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Create validates a schedule, computes its first run and stores it active.
func (s *ScheduleService) Create(ctx context.Context, schedule *models.StreamSchedule) error {
	if schedule.Quality == "" {
		schedule.Quality = s.quality
	}
	if err := s.validate(ctx, schedule); err != nil {
		return err
	}

	next, err := s.initialRun(schedule)
	if err != nil {
		return err
	}

	schedule.IsActive = true
	schedule.NextRunAt = next
	schedule.LastRunAt = nil
	schedule.RunCount = 0
	schedule.LastError = ""

	if err := s.schedules.Create(ctx, schedule); err != nil {
		return err
	}

	s.logger.Info("schedule created",
		slog.String("schedule_id", schedule.ID.String()),
		slog.String("type", string(schedule.Kind)),
		slog.Any("next_run_at", schedule.NextRunAt))
	return nil
}

// GetByID retrieves a schedule.
func (s *ScheduleService) GetByID(ctx context.Context, id models.ULID) (*models.StreamSchedule, error) {
	return s.schedules.GetByID(ctx, id)
}

// List retrieves an owner's schedules.
func (s *ScheduleService) List(ctx context.Context, ownerID string) ([]*models.StreamSchedule, error) {
	return s.schedules.ListByOwner(ctx, ownerID)
}

// Update replaces a schedule's definition and recomputes its next run.
// Run bookkeeping and the bound stream are kept.
func (s *ScheduleService) Update(ctx context.Context, schedule *models.StreamSchedule) error {
	existing, err := s.schedules.GetByID(ctx, schedule.ID)
	if err != nil {
		return err
	}

	schedule.OwnerID = existing.OwnerID
	if schedule.StreamKey == "" {
		schedule.StreamKey = existing.StreamKey
	}
	if err := s.validate(ctx, schedule); err != nil {
		return err
	}

	schedule.CreatedAt = existing.CreatedAt
	schedule.StreamID = existing.StreamID
	schedule.IsActive = existing.IsActive
	schedule.LastRunAt = existing.LastRunAt
	schedule.RunCount = existing.RunCount
	schedule.LastError = existing.LastError
	schedule.NextRunAt = nil

	if schedule.IsActive {
		next, err := s.initialRun(schedule)
		if err != nil {
			return err
		}
		schedule.NextRunAt = next
	}

	return s.schedules.Update(ctx, schedule)
}

// Delete removes a schedule.
func (s *ScheduleService) Delete(ctx context.Context, id models.ULID) error {
	return s.schedules.Delete(ctx, id)
}

// Toggle flips a schedule's active flag. Reactivating recomputes the next run.
func (s *ScheduleService) Toggle(ctx context.Context, id models.ULID) (*models.StreamSchedule, error) {
	schedule, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	active := !schedule.IsActive
	next := schedule.NextRunAt
	if active {
		next, err = s.initialRun(schedule)
		if err != nil {
			return nil, err
		}
	}

	if err := s.schedules.SetActive(ctx, id, active, next); err != nil {
		return nil, err
	}

	schedule.IsActive = active
	schedule.NextRunAt = next
	s.logger.Info("schedule toggled",
		slog.String("schedule_id", id.String()),
		slog.Bool("active", active))
	return schedule, nil
}

// PreviewRuns returns up to count upcoming runs for a definition without storing it.
func (s *ScheduleService) PreviewRuns(def *models.StreamSchedule, count int) ([]time.Time, error) {
	if count <= 0 {
		count = DefaultPreviewCount
	}
	count = min(count, MaxPreviewCount)

	r, err := scheduler.RecurrenceOf(def)
	if err != nil {
		return nil, recurrenceError(err)
	}
	return scheduler.NextRuns(r, s.clock.Now(), count), nil
}

func (s *ScheduleService) validate(ctx context.Context, schedule *models.StreamSchedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	if schedule.Kind == models.ScheduleCron {
		if err := scheduler.ValidateCron(schedule.CronExpr); err != nil {
			return err
		}
	}

	switch schedule.SourceType {
	case models.SourceVideo:
		if _, err := s.media.ResolveVideo(ctx, schedule.OwnerID, *schedule.VideoID); err != nil {
			return mediaValidation("video_id", err)
		}
	case models.SourcePlaylist:
		if _, err := s.media.ResolvePlaylist(ctx, schedule.OwnerID, *schedule.PlaylistID); err != nil {
			return mediaValidation("playlist_id", err)
		}
	}
	return nil
}

func (s *ScheduleService) initialRun(schedule *models.StreamSchedule) (*time.Time, error) {
	r, err := scheduler.RecurrenceOf(schedule)
	if err != nil {
		return nil, recurrenceError(err)
	}
	return scheduler.InitialRun(r, s.clock.Now())
}

// recurrenceError keeps validation errors as they are and wraps anything else
// as a schedule_type validation failure.
func recurrenceError(err error) error {
	if models.IsValidation(err) {
		return err
	}
	return models.ErrValidation{Field: "schedule_type", Message: fmt.Sprint(err)}
}
