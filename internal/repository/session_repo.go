package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
)

const defaultSessionLimit = 50

// sessionRepo implements SessionRepository using GORM.
type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *gorm.DB) *sessionRepo {
	return &sessionRepo{db: db}
}

// Create records a finished session.
func (r *sessionRepo) Create(ctx context.Context, session *models.StreamSession) error {
	session.StartedAt = session.StartedAt.UTC()
	session.EndedAt = session.EndedAt.UTC()
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// ListByStream retrieves a stream's most recent sessions.
func (r *sessionRepo) ListByStream(ctx context.Context, streamID models.ULID, limit int) ([]*models.StreamSession, error) {
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	var sessions []*models.StreamSession
	err := r.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		Order("started_at DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// Summary aggregates a stream's session history.
func (r *sessionRepo) Summary(ctx context.Context, streamID models.ULID) (models.SessionSummary, error) {
	var summary models.SessionSummary
	err := r.db.WithContext(ctx).
		Model(&models.StreamSession{}).
		Select("COUNT(*) AS total_sessions, "+
			"COALESCE(SUM(duration_seconds), 0) AS total_duration_seconds, "+
			"COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS failed_sessions", string(relay.StateError)).
		Where("stream_id = ?", streamID).
		Scan(&summary).Error
	if err != nil {
		return models.SessionSummary{}, fmt.Errorf("summarising sessions: %w", err)
	}
	return summary, nil
}

// DeleteOlderThan removes sessions that ended before cutoff.
func (r *sessionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("ended_at < ?", cutoff.UTC()).Delete(&models.StreamSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
