package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
)

// ScheduleStore persists schedule definitions and their bookkeeping.
type ScheduleStore interface {
	GetDue(ctx context.Context, now time.Time) ([]*models.StreamSchedule, error)
	BindStream(ctx context.Context, scheduleID, streamID models.ULID) error
	RecordRun(ctx context.Context, scheduleID models.ULID, run models.ScheduleRun) error
}

// MediaResolver maps media identifiers to absolute file paths.
type MediaResolver interface {
	ResolveVideo(ctx context.Context, ownerID string, videoID models.ULID) (string, error)
	ResolvePlaylist(ctx context.Context, ownerID string, playlistID models.ULID) ([]string, error)
}

// StreamProvisioner creates a stream for a schedule that has none yet.
type StreamProvisioner interface {
	ProvisionStream(ctx context.Context, schedule *models.StreamSchedule) (models.ULID, error)
}

// Starter starts relay sessions.
type Starter interface {
	Start(ctx context.Context, cfg relay.StreamConfig) (relay.StreamStatus, error)
}

// DispatchRecorder observes dispatch outcomes.
type DispatchRecorder interface {
	RecordDispatch(kind models.ScheduleKind, err error)
}

// PollerConfig holds configuration for the poller.
type PollerConfig struct {
	// Interval is how often due schedules are checked.
	// Default: 1 minute
	Interval time.Duration
}

// DefaultPollerConfig returns the default poller configuration.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Interval: time.Minute}
}

// CycleReport summarises one poll cycle.
type CycleReport struct {
	Due     int
	Started int
	Failed  int
	// Skipped is set when a previous cycle was still running.
	Skipped bool
}

// Poller periodically dispatches due schedules to the orchestrator.
type Poller struct {
	mu sync.Mutex

	// cycle is held for the duration of a poll so cycles never overlap.
	cycle sync.Mutex

	store    ScheduleStore
	media    MediaResolver
	streams  StreamProvisioner
	starter  Starter
	recorder DispatchRecorder
	clock    relay.Clock
	logger   *slog.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller.
func NewPoller(store ScheduleStore, media MediaResolver, streams StreamProvisioner, starter Starter) *Poller {
	return &Poller{
		store:    store,
		media:    media,
		streams:  streams,
		starter:  starter,
		clock:    relay.SystemClock{},
		logger:   slog.Default(),
		interval: DefaultPollerConfig().Interval,
	}
}

// WithLogger sets a custom logger.
func (p *Poller) WithLogger(logger *slog.Logger) *Poller {
	p.logger = logger
	return p
}

// WithConfig applies configuration to the poller.
func (p *Poller) WithConfig(config PollerConfig) *Poller {
	if config.Interval > 0 {
		p.interval = config.Interval
	}
	return p
}

// WithClock sets the clock that defines "now" for due checks and bookkeeping.
func (p *Poller) WithClock(clock relay.Clock) *Poller {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// WithRecorder sets an observer for dispatch outcomes.
func (p *Poller) WithRecorder(recorder DispatchRecorder) *Poller {
	p.recorder = recorder
	return p
}

// Start begins the background poll loop. The first cycle runs immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.loop(p.ctx)

	p.logger.Info("scheduler started", slog.Duration("poll_interval", p.interval))
	return nil
}

// Stop stops the poll loop and waits for an in-flight cycle to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.ctx = nil
	p.cancel = nil
	p.mu.Unlock()

	p.logger.Info("scheduler stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce loads due schedules and dispatches each. It returns immediately with
// Skipped set if another cycle is in flight.
func (p *Poller) RunOnce(ctx context.Context) CycleReport {
	if !p.cycle.TryLock() {
		p.logger.Warn("previous schedule cycle still running, skipping")
		return CycleReport{Skipped: true}
	}
	defer p.cycle.Unlock()

	now := p.clock.Now()
	due, err := p.store.GetDue(ctx, now)
	if err != nil {
		p.logger.Error("failed to load due schedules", slog.Any("error", err))
		return CycleReport{}
	}

	report := CycleReport{Due: len(due)}
	for _, sched := range due {
		if ctx.Err() != nil {
			break
		}
		if err := p.dispatch(ctx, sched, now); err != nil {
			report.Failed++
		} else {
			report.Started++
		}
	}

	if report.Due > 0 {
		p.logger.Info("schedule cycle complete",
			slog.Int("due", report.Due),
			slog.Int("started", report.Started),
			slog.Int("failed", report.Failed))
	}
	return report
}

// dispatch starts one schedule and always advances its bookkeeping.
func (p *Poller) dispatch(ctx context.Context, sched *models.StreamSchedule, now time.Time) error {
	startErr := p.start(ctx, sched)

	run := models.ScheduleRun{RanAt: now}
	if startErr != nil {
		run.Error = startErr.Error()
	}
	if sched.IsOnce() {
		run.Deactivate = true
	} else if r, err := RecurrenceOf(sched); err != nil {
		p.logger.Warn("schedule recurrence is invalid, it will not run again",
			slog.String("schedule_id", sched.ID.String()),
			slog.Any("error", err))
	} else if next, ok := NextRun(r, now); ok {
		run.NextRunAt = &next
	}

	if err := p.store.RecordRun(ctx, sched.ID, run); err != nil {
		p.logger.Error("failed to record schedule run",
			slog.String("schedule_id", sched.ID.String()),
			slog.Any("error", err))
	}

	if p.recorder != nil {
		p.recorder.RecordDispatch(sched.Kind, startErr)
	}

	if startErr != nil {
		p.logger.Error("scheduled stream failed to start",
			slog.String("schedule_id", sched.ID.String()),
			slog.String("schedule", sched.Name),
			slog.Any("error", startErr))
		return startErr
	}

	p.logger.Info("scheduled stream started",
		slog.String("schedule_id", sched.ID.String()),
		slog.String("schedule", sched.Name),
		slog.String("stream_id", sched.StreamID.String()))
	return nil
}

func (p *Poller) start(ctx context.Context, sched *models.StreamSchedule) error {
	if sched.StreamID == nil || sched.StreamID.IsZero() {
		id, err := p.streams.ProvisionStream(ctx, sched)
		if err != nil {
			return fmt.Errorf("provisioning stream: %w", err)
		}
		if err := p.store.BindStream(ctx, sched.ID, id); err != nil {
			return fmt.Errorf("binding stream: %w", err)
		}
		sched.StreamID = id.Ptr()
	}

	cfg := relay.StreamConfig{
		StreamID:       sched.StreamID.String(),
		OwnerID:        sched.OwnerID,
		Platform:       sched.Platform,
		StreamKey:      sched.StreamKey,
		RTMPURL:        sched.RTMPURL,
		Quality:        sched.Quality,
		Mode:           sched.PlaybackMode,
		RepeatPlaylist: sched.RepeatPlaylist,
	}

	switch sched.SourceType {
	case models.SourcePlaylist:
		if sched.PlaylistID == nil {
			return models.ErrMediaNotFound
		}
		paths, err := p.media.ResolvePlaylist(ctx, sched.OwnerID, *sched.PlaylistID)
		if err != nil {
			return fmt.Errorf("resolving playlist: %w", err)
		}
		cfg.Playlist = paths
	default:
		if sched.VideoID == nil {
			return models.ErrMediaNotFound
		}
		path, err := p.media.ResolveVideo(ctx, sched.OwnerID, *sched.VideoID)
		if err != nil {
			return fmt.Errorf("resolving video: %w", err)
		}
		cfg.Media = path
	}

	if _, err := p.starter.Start(ctx, cfg); err != nil {
		if errors.Is(err, relay.ErrStreamActive) {
			return fmt.Errorf("stream already running: %w", err)
		}
		return fmt.Errorf("starting stream: %w", err)
	}
	return nil
}
