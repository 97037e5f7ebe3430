package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
	"github.com/jmylchreest/restreamer/internal/repository"
)

const testMediaDir = "/srv/media"

type testRepos struct {
	streams   repository.StreamRepository
	schedules repository.ScheduleRepository
	media     repository.MediaRepository
	sessions  repository.SessionRepository
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Video{},
		&models.Playlist{},
		&models.PlaylistItem{},
		&models.Stream{},
		&models.StreamSession{},
		&models.StreamSchedule{},
	))
	return db
}

func setupRepos(t *testing.T) testRepos {
	t.Helper()

	db := openTestDB(t)
	return testRepos{
		streams:   repository.NewStreamRepository(db),
		schedules: repository.NewScheduleRepository(db),
		media:     repository.NewMediaRepository(db, testMediaDir),
		sessions:  repository.NewSessionRepository(db),
	}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// fakeRelays is an in-memory RelayController.
type fakeRelays struct {
	mu       sync.Mutex
	active   map[string]relay.StreamStatus
	started  []relay.StreamConfig
	startErr error
	pid      int
}

func newFakeRelays() *fakeRelays {
	return &fakeRelays{active: make(map[string]relay.StreamStatus)}
}

func (f *fakeRelays) Start(_ context.Context, cfg relay.StreamConfig) (relay.StreamStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return relay.StreamStatus{}, f.startErr
	}
	if _, ok := f.active[cfg.StreamID]; ok {
		return relay.StreamStatus{}, fmt.Errorf("%w: %s", relay.ErrStreamActive, cfg.StreamID)
	}
	f.started = append(f.started, cfg)
	total := len(cfg.Playlist)
	media := cfg.Media
	if total == 0 {
		total = 1
	} else {
		media = cfg.Playlist[0]
	}
	st := relay.StreamStatus{
		StreamID:     cfg.StreamID,
		State:        relay.StateStarting,
		CurrentMedia: media,
		TotalItems:   total,
		LegsStarted:  1,
	}
	f.active[cfg.StreamID] = st
	return st, nil
}

func (f *fakeRelays) Stop(_ context.Context, id string) (relay.StreamStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.active[id]
	if !ok {
		return relay.StreamStatus{}, fmt.Errorf("%w: %s", relay.ErrStreamNotActive, id)
	}
	delete(f.active, id)
	st.State = relay.StateIdle
	return st, nil
}

func (f *fakeRelays) Status(id string) (relay.StreamStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.active[id]
	return st, ok
}

func (f *fakeRelays) ListActive() []relay.StreamStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]relay.StreamStatus, 0, len(f.active))
	for _, st := range f.active {
		out = append(out, st)
	}
	return out
}

func (f *fakeRelays) ProcessID(id string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.active[id]; !ok || f.pid == 0 {
		return 0, false
	}
	return f.pid, true
}

func (f *fakeRelays) lastStarted() relay.StreamConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[len(f.started)-1]
}

func createVideo(t *testing.T, repos testRepos, owner, filename string) *models.Video {
	t.Helper()
	v := &models.Video{OwnerID: owner, Title: filename, Filename: filename}
	require.NoError(t, repos.media.CreateVideo(context.Background(), v))
	return v
}

func createStream(t *testing.T, repos testRepos, owner string, videoID *models.ULID) *models.Stream {
	t.Helper()
	s := &models.Stream{
		OwnerID:   owner,
		Name:      "stream",
		Platform:  relay.PlatformYouTube,
		StreamKey: "abcd-efgh",
		VideoID:   videoID,
	}
	require.NoError(t, repos.streams.Create(context.Background(), s))
	return s
}
