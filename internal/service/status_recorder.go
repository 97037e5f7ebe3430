// Package service provides the business logic layer for restreamer operations.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
	"github.com/jmylchreest/restreamer/internal/repository"
)

const defaultRecordTimeout = 5 * time.Second

// StatusRecorder persists orchestrator events: stream status on every
// transition and a session row when a session ends.
type StatusRecorder struct {
	streams  repository.StreamRepository
	sessions repository.SessionRepository
	logger   *slog.Logger
	timeout  time.Duration
}

// NewStatusRecorder creates a new status recorder.
func NewStatusRecorder(streams repository.StreamRepository, sessions repository.SessionRepository) *StatusRecorder {
	return &StatusRecorder{
		streams:  streams,
		sessions: sessions,
		logger:   slog.Default(),
		timeout:  defaultRecordTimeout,
	}
}

// WithLogger sets the logger for the recorder.
func (r *StatusRecorder) WithLogger(logger *slog.Logger) *StatusRecorder {
	r.logger = logger
	return r
}

// Publish implements relay.EventSink.
func (r *StatusRecorder) Publish(ev relay.Event) {
	id, err := models.ParseULID(ev.StreamID)
	if err != nil {
		r.logger.Warn("ignoring event for unknown stream id",
			slog.String("stream_id", ev.StreamID),
			slog.String("kind", string(ev.Kind)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	switch ev.Kind {
	case relay.EventLive:
		started := ev.Status.StartedAt
		if err := r.streams.UpdateStatus(ctx, id, relay.StateLive, "", &started); err != nil {
			r.logger.Error("failed to record live status",
				slog.String("stream_id", ev.StreamID),
				slog.Any("error", err))
		}
	case relay.EventEnded, relay.EventError:
		r.recordEnd(ctx, id, ev)
	}
}

func (r *StatusRecorder) recordEnd(ctx context.Context, id models.ULID, ev relay.Event) {
	st := ev.Status
	if err := r.streams.UpdateStatus(ctx, id, st.State, st.Error, nil); err != nil {
		r.logger.Error("failed to record final status",
			slog.String("stream_id", ev.StreamID),
			slog.Any("error", err))
	}

	ended := ev.At
	if st.EndedAt != nil {
		ended = *st.EndedAt
	}
	session := &models.StreamSession{
		StreamID:        id,
		StartedAt:       st.StartedAt,
		EndedAt:         ended,
		DurationSeconds: st.UptimeSeconds(),
		Outcome:         string(st.State),
		Error:           st.Error,
		ItemsPlayed:     st.LegsStarted,
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		r.logger.Error("failed to record stream session",
			slog.String("stream_id", ev.StreamID),
			slog.Any("error", err))
		return
	}

	r.logger.Debug("stream session recorded",
		slog.String("stream_id", ev.StreamID),
		slog.String("outcome", session.Outcome),
		slog.Int64("duration_seconds", session.DurationSeconds))
}
