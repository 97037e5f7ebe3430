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

func newTestStream(owner, name string) *models.Stream {
	return &models.Stream{
		OwnerID:   owner,
		Name:      name,
		Platform:  relay.PlatformTwitch,
		StreamKey: "live_123",
		Quality:   relay.Quality720p,
	}
}

func TestStreamRepo_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	stream := newTestStream("user-1", "gaming")
	require.NoError(t, repo.Create(ctx, stream))
	assert.False(t, stream.ID.IsZero())

	got, err := repo.GetByID(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, "gaming", got.Name)
	assert.Equal(t, relay.StateIdle, got.Status)
	assert.Equal(t, relay.Quality720p, got.Quality)
	assert.Equal(t, "live_123", got.StreamKey)
}

func TestStreamRepo_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)

	_, err := repo.GetByID(context.Background(), models.NewULID())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStreamRepo_ListByOwner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestStream("user-1", "a")))
	require.NoError(t, repo.Create(ctx, newTestStream("user-1", "b")))
	require.NoError(t, repo.Create(ctx, newTestStream("user-2", "c")))

	streams, err := repo.ListByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, streams, 2)

	streams, err = repo.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, streams)
}

func TestStreamRepo_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	stream := newTestStream("user-1", "status")
	require.NoError(t, repo.Create(ctx, stream))

	started := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateStatus(ctx, stream.ID, relay.StateLive, "", &started))

	got, err := repo.GetByID(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, relay.StateLive, got.Status)
	require.NotNil(t, got.LastStartedAt)
	assert.True(t, started.Equal(*got.LastStartedAt))

	require.NoError(t, repo.UpdateStatus(ctx, stream.ID, relay.StateError, "exit status 1", nil))
	got, err = repo.GetByID(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, relay.StateError, got.Status)
	assert.Equal(t, "exit status 1", got.LastError)
	require.NotNil(t, got.LastStartedAt, "started_at is kept when not supplied")

	err = repo.UpdateStatus(ctx, models.NewULID(), relay.StateLive, "", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStreamRepo_ResetActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	states := []relay.State{relay.StateIdle, relay.StateStarting, relay.StateLive, relay.StateStopping, relay.StateError}
	ids := make([]models.ULID, len(states))
	for i, st := range states {
		s := newTestStream("user-1", string(st))
		require.NoError(t, repo.Create(ctx, s))
		require.NoError(t, repo.UpdateStatus(ctx, s.ID, st, "", nil))
		ids[i] = s.ID
	}

	n, err := repo.ResetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for i, id := range ids {
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		if states[i] == relay.StateError {
			assert.Equal(t, relay.StateError, got.Status)
		} else {
			assert.Equal(t, relay.StateIdle, got.Status)
		}
	}
}

func TestStreamRepo_DeleteRemovesSessions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)
	sessions := NewSessionRepository(db)
	ctx := context.Background()

	stream := newTestStream("user-1", "delete")
	require.NoError(t, repo.Create(ctx, stream))

	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, sessions.Create(ctx, &models.StreamSession{
		StreamID:  stream.ID,
		StartedAt: start,
		EndedAt:   start.Add(time.Minute),
		Outcome:   string(relay.StateIdle),
	}))

	require.NoError(t, repo.Delete(ctx, stream.ID))

	_, err := repo.GetByID(ctx, stream.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	list, err := sessions.ListByStream(ctx, stream.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, repo.Delete(ctx, stream.ID), models.ErrNotFound)
}

func TestStreamRepo_ProvisionStream(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	sched := newTestSchedule("user-1", "weekly show", nil)
	sched.ID = models.NewULID()
	sched.Platform = relay.PlatformCustom
	sched.RTMPURL = "rtmp://ingest.example.com/live"
	sched.Quality = relay.Quality4K

	id, err := repo.ProvisionStream(ctx, sched)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, "weekly show", got.Name)
	assert.Equal(t, relay.PlatformCustom, got.Platform)
	assert.Equal(t, "rtmp://ingest.example.com/live", got.RTMPURL)
	assert.Equal(t, relay.Quality4K, got.Quality)
	assert.Equal(t, sched.StreamKey, got.StreamKey)
	assert.Contains(t, got.Description, sched.ID.String())
	assert.Equal(t, relay.StateIdle, got.Status)
}

func TestStreamRepo_ProvisionStream_Invalid(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)

	sched := newTestSchedule("user-1", "broken", nil)
	sched.Platform = relay.PlatformCustom

	_, err := repo.ProvisionStream(context.Background(), sched)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}
