package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
)

func createTestSession(t *testing.T, repo *sessionRepo, streamID models.ULID, start time.Time, d time.Duration, outcome relay.State) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &models.StreamSession{
		StreamID:        streamID,
		StartedAt:       start,
		EndedAt:         start.Add(d),
		DurationSeconds: int64(d / time.Second),
		Outcome:         string(outcome),
	}))
}

func TestSessionRepo_ListByStream(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	streamID := models.NewULID()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		createTestSession(t, repo, streamID, base.Add(time.Duration(i)*time.Hour), time.Minute, relay.StateIdle)
	}
	createTestSession(t, repo, models.NewULID(), base, time.Minute, relay.StateIdle)

	list, err := repo.ListByStream(ctx, streamID, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].StartedAt.Equal(base.Add(4*time.Hour)), "newest first")
	assert.True(t, list[2].StartedAt.Equal(base.Add(2*time.Hour)))

	list, err = repo.ListByStream(ctx, streamID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

func TestSessionRepo_Summary(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	streamID := models.NewULID()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	createTestSession(t, repo, streamID, base, 10*time.Minute, relay.StateIdle)
	createTestSession(t, repo, streamID, base.Add(time.Hour), 20*time.Minute, relay.StateError)
	createTestSession(t, repo, streamID, base.Add(2*time.Hour), 30*time.Minute, relay.StateIdle)

	summary, err := repo.Summary(ctx, streamID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalSessions)
	assert.Equal(t, int64(3600), summary.TotalDurationSeconds)
	assert.Equal(t, int64(1), summary.FailedSessions)
	assert.Equal(t, int64(1200), summary.AverageDurationSeconds())
}

func TestSessionRepo_Summary_Empty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)

	summary, err := repo.Summary(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Equal(t, models.SessionSummary{}, summary)
	assert.Zero(t, summary.AverageDurationSeconds())
}

func TestSessionRepo_DeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	streamID := models.NewULID()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	createTestSession(t, repo, streamID, now.AddDate(0, 0, -120), time.Hour, relay.StateIdle)
	createTestSession(t, repo, streamID, now.AddDate(0, 0, -100), time.Hour, relay.StateError)
	createTestSession(t, repo, streamID, now.AddDate(0, 0, -10), time.Hour, relay.StateIdle)

	n, err := repo.DeleteOlderThan(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err := repo.ListByStream(ctx, streamID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
