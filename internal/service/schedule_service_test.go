package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
	"github.com/jmylchreest/restreamer/internal/service"
)

// Saturday 2 March 2024, 10:00 UTC.
var saturday = time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

func newScheduleService(repos testRepos, now time.Time) *service.ScheduleService {
	return service.NewScheduleService(repos.schedules, repos.media).WithClock(fixedClock{now: now})
}

func weeklySchedule(videoID models.ULID) *models.StreamSchedule {
	return &models.StreamSchedule{
		OwnerID:    "user-1",
		Name:       "weekday show",
		Kind:       models.ScheduleWeekly,
		TimeOfDay:  "09:00",
		Days:       "1,2,3,4,5",
		SourceType: models.SourceVideo,
		VideoID:    videoID.Ptr(),
		Platform:   relay.PlatformYouTube,
		StreamKey:  "abcd",
	}
}

func TestScheduleService_CreateWeekly(t *testing.T) {
	repos := setupRepos(t)
	svc := newScheduleService(repos, saturday)
	ctx := context.Background()

	video := createVideo(t, repos, "user-1", "show.mp4")
	sched := weeklySchedule(video.ID)
	sched.RunCount = 7
	sched.LastError = "stale"

	require.NoError(t, svc.Create(ctx, sched))

	got, err := svc.GetByID(ctx, sched.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, 0, got.RunCount)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC).Equal(*got.NextRunAt), "next run is Monday 09:00, got %s", got.NextRunAt)
	assert.Equal(t, relay.ModeLoop, got.PlaybackMode)
}

func TestScheduleService_CreateTimezone(t *testing.T) {
	repos := setupRepos(t)
	svc := newScheduleService(repos, saturday)
	ctx := context.Background()

	video := createVideo(t, repos, "user-1", "show.mp4")
	sched := weeklySchedule(video.ID)
	sched.Kind = models.ScheduleDaily
	sched.Days = ""
	sched.Timezone = "America/New_York"

	require.NoError(t, svc.Create(ctx, sched))
	require.NotNil(t, sched.NextRunAt)
	// Saturday 10:00 UTC is 05:00 in New York, so 09:00 EST the same day.
	assert.True(t, time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC).Equal(*sched.NextRunAt), "got %s", sched.NextRunAt)
}

func TestScheduleService_CreateOnce(t *testing.T) {
	repos := setupRepos(t)
	svc := newScheduleService(repos, saturday)
	ctx := context.Background()

	video := createVideo(t, repos, "user-1", "show.mp4")

	at := saturday.Add(3 * time.Hour)
	sched := weeklySchedule(video.ID)
	sched.Kind = models.ScheduleOnce
	sched.ScheduledAt = &at
	require.NoError(t, svc.Create(ctx, sched))
	require.NotNil(t, sched.NextRunAt)
	assert.True(t, at.Equal(*sched.NextRunAt))

	past := saturday.Add(-time.Minute)
	late := weeklySchedule(video.ID)
	late.Kind = models.ScheduleOnce
	late.ScheduledAt = &past
	err := svc.Create(ctx, late)
	var v models.ErrValidation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "scheduled_at", v.Field)
}

func TestScheduleService_CreateValidation(t *testing.T) {
	repos := setupRepos(t)
	svc := newScheduleService(repos, saturday)
	ctx := context.Background()

	video := createVideo(t, repos, "user-1", "show.mp4")
	empty := &models.Playlist{OwnerID: "user-1", Name: "empty"}
	require.NoError(t, repos.media.CreatePlaylist(ctx, empty, nil))

	tests := []struct {
		name   string
		mutate func(*models.StreamSchedule)
		field  string
	}{
		{"missing video", func(s *models.StreamSchedule) { s.VideoID = models.NewULID().Ptr() }, "video_id"},
		{"other owner's video", func(s *models.StreamSchedule) { s.OwnerID = "user-2" }, "video_id"},
		{"empty playlist", func(s *models.StreamSchedule) {
			s.SourceType = models.SourcePlaylist
			s.PlaylistID = empty.ID.Ptr()
		}, "playlist_id"},
		{"bad cron", func(s *models.StreamSchedule) {
			s.Kind = models.ScheduleCron
			s.CronExpr = "every tuesday"
		}, "cron_expr"},
		{"bad days", func(s *models.StreamSchedule) { s.Days = "mon" }, "days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := weeklySchedule(video.ID)
			tt.mutate(sched)
			err := svc.Create(ctx, sched)
			var v models.ErrValidation
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tt.field, v.Field)
		})
	}
}

func TestScheduleService_UpdateKeepsBookkeeping(t *testing.T) {
	repos := setupRepos(t)
	svc := newScheduleService(repos, saturday)
	ctx := context.Background()

	video := createVideo(t, repos, "user-1", "show.mp4")
	sched := weeklySchedule(video.ID)
	require.NoError(t, svc.Create(ctx, sched))

	streamID := models.NewULID()
	require.NoError(t, repos.schedules.BindStream(ctx, sched.ID, streamID))
	next := saturday.Add(time.Hour)
	require.NoError(t, repos.schedules.RecordRun(ctx, sched.ID, models.ScheduleRun{RanAt: saturday, NextRunAt: &next}))

	update := weeklySchedule(video.ID)
	update.ID = sched.ID
	update.StreamKey = ""
	update.Kind = models.ScheduleDaily
	update.TimeOfDay = "18:30"
	update.Days = ""
	require.NoError(t, svc.Update(ctx, update))

	got, err := svc.GetByID(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleDaily, got.Kind)
	assert.Equal(t, "abcd", got.StreamKey)
	assert.Equal(t, 1, got.RunCount)
	require.NotNil(t, got.StreamID)
	assert.Equal(t, streamID, *got.StreamID)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, time.Date(2024, 3, 2, 18, 30, 0, 0, time.UTC).Equal(*got.NextRunAt), "got %s", got.NextRunAt)

	missing := weeklySchedule(video.ID)
	missing.ID = models.NewULID()
	assert.ErrorIs(t, svc.Update(ctx, missing), models.ErrNotFound)
}

func TestScheduleService_Toggle(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	video := createVideo(t, repos, "user-1", "show.mp4")
	sched := weeklySchedule(video.ID)
	require.NoError(t, newScheduleService(repos, saturday).Create(ctx, sched))

	off, err := newScheduleService(repos, saturday).Toggle(ctx, sched.ID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	// Reactivating a week later recomputes from the new now.
	later := saturday.AddDate(0, 0, 7)
	on, err := newScheduleService(repos, later).Toggle(ctx, sched.ID)
	require.NoError(t, err)
	assert.True(t, on.IsActive)
	require.NotNil(t, on.NextRunAt)
	assert.True(t, time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC).Equal(*on.NextRunAt), "got %s", on.NextRunAt)

	got, err := repos.schedules.GetByID(ctx, sched.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = newScheduleService(repos, later).Toggle(ctx, models.NewULID())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestScheduleService_ToggleExpiredOnce(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	video := createVideo(t, repos, "user-1", "show.mp4")
	at := saturday.Add(time.Hour)
	sched := weeklySchedule(video.ID)
	sched.Kind = models.ScheduleOnce
	sched.ScheduledAt = &at
	require.NoError(t, newScheduleService(repos, saturday).Create(ctx, sched))
	require.NoError(t, repos.schedules.RecordRun(ctx, sched.ID, models.ScheduleRun{RanAt: at, Deactivate: true}))

	_, err := newScheduleService(repos, at.Add(time.Hour)).Toggle(ctx, sched.ID)
	assert.True(t, models.IsValidation(err), "a once schedule in the past cannot be reactivated")
}

func TestScheduleService_PreviewRuns(t *testing.T) {
	repos := setupRepos(t)
	svc := newScheduleService(repos, saturday)

	def := &models.StreamSchedule{Kind: models.ScheduleWeekly, TimeOfDay: "09:00", Days: "1,5"}
	runs, err := svc.PreviewRuns(def, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, time.Monday, runs[0].Weekday())
	assert.Equal(t, time.Friday, runs[1].Weekday())
	assert.Equal(t, time.Monday, runs[2].Weekday())

	runs, err = svc.PreviewRuns(&models.StreamSchedule{Kind: models.ScheduleDaily, TimeOfDay: "09:00"}, 0)
	require.NoError(t, err)
	assert.Len(t, runs, service.DefaultPreviewCount)

	runs, err = svc.PreviewRuns(&models.StreamSchedule{Kind: models.ScheduleCron, CronExpr: "*/5 * * * *"}, 1000)
	require.NoError(t, err)
	assert.Len(t, runs, service.MaxPreviewCount)

	_, err = svc.PreviewRuns(&models.StreamSchedule{Kind: models.ScheduleDaily, TimeOfDay: "25:00"}, 1)
	assert.True(t, models.IsValidation(err))
}
