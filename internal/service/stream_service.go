package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/restreamer/internal/ffmpeg"
	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
	"github.com/jmylchreest/restreamer/internal/repository"
)

// RelayController is the subset of the orchestrator the stream service drives.
type RelayController interface {
	Start(ctx context.Context, cfg relay.StreamConfig) (relay.StreamStatus, error)
	Stop(ctx context.Context, id string) (relay.StreamStatus, error)
	Status(id string) (relay.StreamStatus, bool)
	ListActive() []relay.StreamStatus
	ProcessID(id string) (int, bool)
}

// ProcessSampler reads resource usage of a relay process.
type ProcessSampler func(ctx context.Context, pid int) (*ffmpeg.ProcessStats, error)

// StartOptions selects what a manually started stream plays.
type StartOptions struct {
	Mode           relay.PlaybackMode
	RepeatPlaylist bool
	// PlaylistID plays a playlist instead of the stream's primary video.
	PlaylistID *models.ULID
}

// LiveStatus is a running stream's snapshot with an optional resource sample.
type LiveStatus struct {
	relay.StreamStatus
	Process *ffmpeg.ProcessStats `json:"process,omitempty"`
}

// SessionHistory is a stream's recent sessions and overall summary.
type SessionHistory struct {
	Sessions []*models.StreamSession `json:"sessions"`
	Summary  models.SessionSummary   `json:"summary"`
}

// StreamService provides business logic for stored streams and their relays.
type StreamService struct {
	streams  repository.StreamRepository
	media    repository.MediaRepository
	sessions repository.SessionRepository
	relays   RelayController
	sampler  ProcessSampler
	quality  relay.Quality
	logger   *slog.Logger
}

// NewStreamService creates a new stream service.
func NewStreamService(
	streams repository.StreamRepository,
	media repository.MediaRepository,
	sessions repository.SessionRepository,
	relays RelayController,
) *StreamService {
	return &StreamService{
		streams:  streams,
		media:    media,
		sessions: sessions,
		relays:   relays,
		sampler:  ffmpeg.SampleProcess,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the service.
func (s *StreamService) WithLogger(logger *slog.Logger) *StreamService {
	s.logger = logger
	return s
}

// WithDefaultQuality sets the tier given to new streams that name none.
func (s *StreamService) WithDefaultQuality(q relay.Quality) *StreamService {
	s.quality = q
	return s
}

// WithSampler replaces the process sampler used by LiveStatus.
func (s *StreamService) WithSampler(sampler ProcessSampler) *StreamService {
	if sampler != nil {
		s.sampler = sampler
	}
	return s
}

// Create validates and stores a new stream.
func (s *StreamService) Create(ctx context.Context, stream *models.Stream) error {
	if stream.Quality == "" {
		stream.Quality = s.quality
	}
	if err := stream.Validate(); err != nil {
		return err
	}
	if stream.VideoID != nil && !stream.VideoID.IsZero() {
		if _, err := s.media.ResolveVideo(ctx, stream.OwnerID, *stream.VideoID); err != nil {
			return mediaValidation("video_id", err)
		}
	}
	stream.Status = relay.StateIdle
	stream.LastError = ""
	return s.streams.Create(ctx, stream)
}

// GetByID retrieves a stream.
func (s *StreamService) GetByID(ctx context.Context, id models.ULID) (*models.Stream, error) {
	return s.streams.GetByID(ctx, id)
}

// List retrieves an owner's streams.
func (s *StreamService) List(ctx context.Context, ownerID string) ([]*models.Stream, error) {
	return s.streams.ListByOwner(ctx, ownerID)
}

// Update replaces a stream's settings. Runtime fields are preserved and changes
// apply from the next start.
func (s *StreamService) Update(ctx context.Context, stream *models.Stream) error {
	existing, err := s.streams.GetByID(ctx, stream.ID)
	if err != nil {
		return err
	}
	stream.OwnerID = existing.OwnerID
	if stream.StreamKey == "" {
		stream.StreamKey = existing.StreamKey
	}
	if err := stream.Validate(); err != nil {
		return err
	}
	if stream.VideoID != nil && !stream.VideoID.IsZero() {
		if _, err := s.media.ResolveVideo(ctx, stream.OwnerID, *stream.VideoID); err != nil {
			return mediaValidation("video_id", err)
		}
	}

	stream.CreatedAt = existing.CreatedAt
	stream.Status = existing.Status
	stream.LastError = existing.LastError
	stream.LastStartedAt = existing.LastStartedAt
	return s.streams.Update(ctx, stream)
}

// Delete removes a stream that is not running.
func (s *StreamService) Delete(ctx context.Context, id models.ULID) error {
	if _, active := s.relays.Status(id.String()); active {
		return fmt.Errorf("deleting stream: %w", relay.ErrStreamActive)
	}
	return s.streams.Delete(ctx, id)
}

// StartStream starts the relay for a stored stream.
func (s *StreamService) StartStream(ctx context.Context, id models.ULID, opts StartOptions) (relay.StreamStatus, error) {
	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return relay.StreamStatus{}, err
	}

	mode := opts.Mode
	if mode == "" {
		mode = relay.ModeLoop
	}
	if !mode.Valid() {
		return relay.StreamStatus{}, models.ErrValidation{Field: "playback_mode", Message: "must be one of loop, sequential, random"}
	}

	cfg := relay.StreamConfig{
		StreamID:       stream.ID.String(),
		OwnerID:        stream.OwnerID,
		Platform:       stream.Platform,
		StreamKey:      stream.StreamKey,
		RTMPURL:        stream.RTMPURL,
		Quality:        stream.Quality,
		Mode:           mode,
		RepeatPlaylist: opts.RepeatPlaylist,
	}

	switch {
	case opts.PlaylistID != nil && !opts.PlaylistID.IsZero():
		paths, err := s.media.ResolvePlaylist(ctx, stream.OwnerID, *opts.PlaylistID)
		if err != nil {
			return relay.StreamStatus{}, fmt.Errorf("resolving playlist: %w", err)
		}
		cfg.Playlist = paths
	case stream.VideoID != nil && !stream.VideoID.IsZero():
		path, err := s.media.ResolveVideo(ctx, stream.OwnerID, *stream.VideoID)
		if err != nil {
			return relay.StreamStatus{}, fmt.Errorf("resolving video: %w", err)
		}
		cfg.Media = path
	default:
		return relay.StreamStatus{}, relay.ErrNoMedia
	}

	return s.Start(ctx, cfg)
}

// Start launches a relay for cfg and keeps the stored status in step with it.
// It satisfies the scheduler's Starter.
func (s *StreamService) Start(ctx context.Context, cfg relay.StreamConfig) (relay.StreamStatus, error) {
	id, err := models.ParseULID(cfg.StreamID)
	if err != nil {
		return relay.StreamStatus{}, fmt.Errorf("starting stream: %w", err)
	}
	if _, active := s.relays.Status(cfg.StreamID); active {
		return relay.StreamStatus{}, fmt.Errorf("%w: %s", relay.ErrStreamActive, cfg.StreamID)
	}

	if err := s.streams.UpdateStatus(ctx, id, relay.StateStarting, "", nil); err != nil {
		return relay.StreamStatus{}, fmt.Errorf("recording starting status: %w", err)
	}

	status, err := s.relays.Start(ctx, cfg)
	if err != nil {
		s.recordStartFailure(ctx, id, cfg.StreamID, err)
		return relay.StreamStatus{}, err
	}
	return status, nil
}

// recordStartFailure fixes up the stored status after a rejected start. Failures
// after the session was registered arrive through the event sink instead.
func (s *StreamService) recordStartFailure(ctx context.Context, id models.ULID, streamID string, startErr error) {
	switch {
	case errors.Is(startErr, relay.ErrMediaNotFound), errors.Is(startErr, relay.ErrSpawnFailed):
		return
	case errors.Is(startErr, relay.ErrStreamActive):
		if st, ok := s.relays.Status(streamID); ok {
			if err := s.streams.UpdateStatus(ctx, id, st.State, "", nil); err != nil {
				s.logger.Error("failed to sync status of running stream",
					slog.String("stream_id", streamID),
					slog.Any("error", err))
			}
		}
		return
	}
	if err := s.streams.UpdateStatus(ctx, id, relay.StateError, startErr.Error(), nil); err != nil {
		s.logger.Error("failed to record start failure",
			slog.String("stream_id", streamID),
			slog.Any("error", err))
	}
}

// StopStream stops a running stream and returns its final snapshot.
func (s *StreamService) StopStream(ctx context.Context, id models.ULID) (relay.StreamStatus, error) {
	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return relay.StreamStatus{}, err
	}

	status, err := s.relays.Stop(ctx, stream.ID.String())
	if err != nil {
		if errors.Is(err, relay.ErrStreamNotActive) && stream.Status.Active() {
			// Left over from a previous process.
			if uerr := s.streams.UpdateStatus(ctx, id, relay.StateIdle, "", nil); uerr != nil {
				s.logger.Error("failed to reset stale stream status",
					slog.String("stream_id", stream.ID.String()),
					slog.Any("error", uerr))
			}
		}
		return relay.StreamStatus{}, err
	}
	return status, nil
}

// LiveStatus returns the runtime snapshot of an active stream together with a
// best-effort resource sample of its relay process.
func (s *StreamService) LiveStatus(ctx context.Context, id models.ULID) (*LiveStatus, error) {
	status, ok := s.relays.Status(id.String())
	if !ok {
		return nil, fmt.Errorf("%w: %s", relay.ErrStreamNotActive, id)
	}

	live := &LiveStatus{StreamStatus: status}
	if pid, ok := s.relays.ProcessID(id.String()); ok {
		stats, err := s.sampler(ctx, pid)
		if err != nil {
			s.logger.Debug("process sample unavailable",
				slog.String("stream_id", id.String()),
				slog.Any("error", err))
		} else {
			live.Process = stats
		}
	}
	return live, nil
}

// Active returns snapshots of every running stream.
func (s *StreamService) Active() []relay.StreamStatus {
	return s.relays.ListActive()
}

// Sessions returns a stream's recent session history and summary.
func (s *StreamService) Sessions(ctx context.Context, id models.ULID, limit int) (*SessionHistory, error) {
	if _, err := s.streams.GetByID(ctx, id); err != nil {
		return nil, err
	}
	list, err := s.sessions.ListByStream(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	summary, err := s.sessions.Summary(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SessionHistory{Sessions: list, Summary: summary}, nil
}

// ResetStale marks streams left active by a previous process as idle.
func (s *StreamService) ResetStale(ctx context.Context) error {
	n, err := s.streams.ResetActive(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("reset stale stream status", slog.Int64("count", n))
	}
	return nil
}

// mediaValidation turns a media lookup miss into a field validation error.
func mediaValidation(field string, err error) error {
	switch {
	case errors.Is(err, models.ErrMediaNotFound):
		return models.ErrValidation{Field: field, Message: "not found"}
	case errors.Is(err, models.ErrEmptyPlaylist):
		return models.ErrValidation{Field: field, Message: "playlist has no videos"}
	}
	return err
}
