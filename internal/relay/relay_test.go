package relay

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeHandle struct {
	inv   Invocation
	hooks Hooks
	pid   int

	mu         sync.Mutex
	exited     bool
	terminated int
}

func (h *fakeHandle) PID() int { return h.pid }

// Terminate mimics ffmpeg being interrupted: it exits asynchronously with 255.
func (h *fakeHandle) Terminate() {
	h.mu.Lock()
	h.terminated++
	h.mu.Unlock()
	go h.exit(Exit{Code: 255})
}

func (h *fakeHandle) emit(line string) {
	h.hooks.OnLine(line)
}

func (h *fakeHandle) exit(e Exit) {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return
	}
	h.exited = true
	h.mu.Unlock()
	h.hooks.OnExit(e)
}

func (h *fakeHandle) terminateCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

type fakeSpawner struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	failWith error
}

func (f *fakeSpawner) Spawn(_ context.Context, inv Invocation, hooks Hooks) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	h := &fakeHandle{inv: inv, hooks: hooks, pid: 1000 + len(f.handles)}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeSpawner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *fakeSpawner) handle(t *testing.T, i int) *fakeHandle {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() > i }, time.Second, 5*time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *eventRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	orch    *Orchestrator
	spawner *fakeSpawner
	clock   *fakeClock
	events  *eventRecorder
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		spawner: &fakeSpawner{},
		clock:   newFakeClock(),
		events:  &eventRecorder{},
		dir:     t.TempDir(),
	}
	h.orch = NewOrchestrator(h.spawner).
		WithSink(h.events).
		WithClock(h.clock).
		WithRand(rand.New(rand.NewPCG(7, 11)))
	return h
}

// media creates empty media files and returns their paths.
func (h *harness) media(t *testing.T, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(h.dir, n)
		require.NoError(t, os.WriteFile(p, nil, 0o644))
		paths = append(paths, p)
	}
	return paths
}

func youtubeConfig(id string) StreamConfig {
	return StreamConfig{
		StreamID:  id,
		OwnerID:   "user-1",
		Platform:  PlatformYouTube,
		StreamKey: "secret-key",
		Quality:   Quality720p,
		Mode:      ModeLoop,
	}
}

func TestOrchestrator_StartTwiceConflicts(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	status, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, StateStarting, status.State)
	assert.Equal(t, cfg.Media, status.CurrentMedia)

	_, err = h.orch.Start(context.Background(), cfg)
	require.ErrorIs(t, err, ErrStreamActive)

	assert.Equal(t, 1, h.spawner.count())
	inv := h.spawner.handle(t, 0).inv
	assert.True(t, inv.LoopInput)
	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/secret-key", inv.Destination)
	assert.Equal(t, 1280, inv.Profile.Width)
}

func TestOrchestrator_ConcurrentStartsSpawnOnce(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orch.Start(context.Background(), cfg)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ErrStreamActive) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, conflicts)
	assert.Equal(t, 1, h.spawner.count())
}

func TestOrchestrator_LiveEmittedOnce(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)

	leg := h.spawner.handle(t, 0)
	leg.emit("Input #0, mov,mp4 from 'a.mp4':")
	st, ok := h.orch.Status("s1")
	require.True(t, ok)
	assert.Equal(t, StateStarting, st.State)

	leg.emit("Output #0, flv, to 'rtmp://a.rtmp.youtube.com/live2/secret-key':")
	leg.emit("frame=10")
	leg.emit("fps=29.97")
	leg.emit("bitrate=2500.1kbits/s")
	leg.emit("progress=continue")

	assert.Equal(t, []EventKind{EventLive}, h.events.kinds())

	st, ok = h.orch.Status("s1")
	require.True(t, ok)
	assert.Equal(t, StateLive, st.State)
	require.NotNil(t, st.Telemetry)
	assert.InDelta(t, 29.97, st.Telemetry.FPS, 0.001)
	assert.Equal(t, "2500.1kbits/s", st.Telemetry.Bitrate)
	assert.Equal(t, int64(10), st.Telemetry.Frame)
}

func TestOrchestrator_StatusIsACopy(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
	leg := h.spawner.handle(t, 0)
	// A stats fragment without a -progress key carries telemetry but is not
	// a liveness signal.
	leg.emit("dup=0 drop=0 speed=1.5x")

	st, ok := h.orch.Status("s1")
	require.True(t, ok)
	require.Equal(t, StateStarting, st.State)
	require.NotNil(t, st.Telemetry)
	st.State = StateError
	st.Telemetry.Speed = 9

	again, ok := h.orch.Status("s1")
	require.True(t, ok)
	assert.Equal(t, StateStarting, again.State)
	assert.InDelta(t, 1.5, again.Telemetry.Speed, 0.001)
	assert.Empty(t, h.events.kinds())
}

func TestOrchestrator_LiveStatusIsACopy(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
	leg := h.spawner.handle(t, 0)
	leg.emit("fps=30")

	st, ok := h.orch.Status("s1")
	require.True(t, ok)
	require.Equal(t, StateLive, st.State)
	st.State = StateError
	st.Telemetry.FPS = 1

	again, ok := h.orch.Status("s1")
	require.True(t, ok)
	assert.Equal(t, StateLive, again.State)
	assert.InDelta(t, 30.0, again.Telemetry.FPS, 0.001)
}

func TestOrchestrator_StopReturnsFinalUptime(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	started, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
	leg := h.spawner.handle(t, 0)
	leg.emit("Output #0, flv")

	h.clock.Advance(90 * time.Second)
	st, ok := h.orch.Status("s1")
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, st.Uptime)

	final, err := h.orch.Stop(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, StateIdle, final.State)
	assert.Equal(t, 90*time.Second, final.Uptime)
	assert.Equal(t, int64(90), final.UptimeSeconds())
	assert.Equal(t, started.StartedAt, final.StartedAt)
	require.NotNil(t, final.EndedAt)
	assert.Empty(t, final.Error)

	_, ok = h.orch.Status("s1")
	assert.False(t, ok)
	assert.Empty(t, h.orch.ListActive())
	assert.Equal(t, 1, leg.terminateCount())

	assert.Equal(t, []EventKind{EventLive, EventEnded}, h.events.kinds())
	assert.Equal(t, 90*time.Second, h.events.last().Status.Uptime)

	// the stream can be started again once stopped
	_, err = h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, h.spawner.count())
}

func TestOrchestrator_StopBeforeLive(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)

	final, err := h.orch.Stop(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, final.State)
	assert.Equal(t, []EventKind{EventEnded}, h.events.kinds())
}

func TestOrchestrator_StopNotActive(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Stop(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStreamNotActive)
}

func TestOrchestrator_StopHonoursContext(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	spawner := &stubbornSpawner{}
	h.orch.spawner = spawner
	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.orch.Stop(ctx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// still tracked until the process actually exits
	st, ok := h.orch.Status("s1")
	require.True(t, ok)
	assert.Equal(t, StateStopping, st.State)

	spawner.hooks.OnExit(Exit{})
	_, ok = h.orch.Status("s1")
	assert.False(t, ok)
}

// stubbornSpawner returns a handle that ignores Terminate.
type stubbornSpawner struct {
	hooks Hooks
}

func (s *stubbornSpawner) Spawn(_ context.Context, _ Invocation, hooks Hooks) (Handle, error) {
	s.hooks = hooks
	return stubbornHandle{}, nil
}

type stubbornHandle struct{}

func (stubbornHandle) PID() int   { return 1 }
func (stubbornHandle) Terminate() {}

func TestOrchestrator_SequentialFailureAbortsSession(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Mode = ModeSequential
	cfg.Playlist = h.media(t, "1.mp4", "2.mp4", "3.mp4")

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)

	leg0 := h.spawner.handle(t, 0)
	leg0.emit("Output #0, flv")
	leg0.exit(Exit{})

	leg1 := h.spawner.handle(t, 1)
	assert.Equal(t, cfg.Playlist[1], leg1.inv.MediaPath)
	assert.False(t, leg1.inv.LoopInput)
	leg1.emit("frame=1")
	leg1.exit(Exit{Code: 1, Err: errors.New("Connection refused")})

	assert.Equal(t, 2, h.spawner.count())
	assert.Equal(t, []EventKind{EventLive, EventPlaylistProgress, EventError}, h.events.kinds())

	final := h.events.last().Status
	assert.Equal(t, StateError, final.State)
	assert.Equal(t, 1, final.CurrentIndex)
	assert.Equal(t, cfg.Playlist[1], final.CurrentMedia)
	assert.Contains(t, final.Error, "code 1")
	assert.Contains(t, final.Error, "Connection refused")

	_, ok := h.orch.Status("s1")
	assert.False(t, ok)
}

func TestOrchestrator_SequentialEndsIdleWhenExhausted(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Mode = ModeSequential
	cfg.Playlist = h.media(t, "1.mp4", "2.mp4")

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)

	h.spawner.handle(t, 0).emit("Output #0")
	h.clock.Advance(time.Minute)
	h.spawner.handle(t, 0).exit(Exit{})
	h.spawner.handle(t, 1).emit("Output #0")
	h.clock.Advance(time.Minute)
	h.spawner.handle(t, 1).exit(Exit{})

	assert.Equal(t, 2, h.spawner.count())
	assert.Equal(t, []EventKind{EventLive, EventPlaylistProgress, EventEnded}, h.events.kinds())

	final := h.events.last().Status
	assert.Equal(t, StateIdle, final.State)
	assert.Equal(t, 2*time.Minute, final.Uptime)
	assert.Equal(t, 2, final.LegsStarted)
}

func TestOrchestrator_RepeatPlaylistWraps(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Mode = ModeSequential
	cfg.RepeatPlaylist = true
	cfg.Playlist = h.media(t, "1.mp4", "2.mp4")

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)

	h.spawner.handle(t, 0).exit(Exit{})
	h.spawner.handle(t, 1).exit(Exit{})

	leg2 := h.spawner.handle(t, 2)
	assert.Equal(t, cfg.Playlist[0], leg2.inv.MediaPath)

	st, ok := h.orch.Status("s1")
	require.True(t, ok)
	assert.Equal(t, 0, st.CurrentIndex)

	_, err = h.orch.Stop(context.Background(), "s1")
	require.NoError(t, err)
}

func TestOrchestrator_LoopPlaylistWraps(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Mode = ModeLoop
	cfg.Playlist = h.media(t, "1.mp4", "2.mp4")

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)

	assert.False(t, h.spawner.handle(t, 0).inv.LoopInput)
	h.spawner.handle(t, 0).exit(Exit{})
	h.spawner.handle(t, 1).exit(Exit{})
	assert.Equal(t, cfg.Playlist[0], h.spawner.handle(t, 2).inv.MediaPath)

	_, err = h.orch.Stop(context.Background(), "s1")
	require.NoError(t, err)
}

func TestOrchestrator_RandomKeepsShuffleOnWrap(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Mode = ModeRandom
	cfg.RepeatPlaylist = true
	cfg.Playlist = h.media(t, "1.mp4", "2.mp4", "3.mp4", "4.mp4")

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)

	var firstCycle []string
	for i := range 4 {
		leg := h.spawner.handle(t, i)
		firstCycle = append(firstCycle, leg.inv.MediaPath)
		leg.exit(Exit{})
	}
	assert.ElementsMatch(t, cfg.Playlist, firstCycle)

	for i := range 4 {
		leg := h.spawner.handle(t, 4+i)
		assert.Equal(t, firstCycle[i], leg.inv.MediaPath)
		if i < 3 {
			leg.exit(Exit{})
		}
	}

	_, err = h.orch.Stop(context.Background(), "s1")
	require.NoError(t, err)
}

func TestOrchestrator_LoopSingleCleanExitEndsIdle(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
	h.spawner.handle(t, 0).exit(Exit{})

	assert.Equal(t, 1, h.spawner.count())
	assert.Equal(t, []EventKind{EventEnded}, h.events.kinds())
}

func TestOrchestrator_MissingMedia(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = filepath.Join(h.dir, "missing.mp4")

	_, err := h.orch.Start(context.Background(), cfg)
	require.ErrorIs(t, err, ErrMediaNotFound)

	assert.Zero(t, h.spawner.count())
	_, ok := h.orch.Status("s1")
	assert.False(t, ok)

	require.Equal(t, []EventKind{EventError}, h.events.kinds())
	assert.Equal(t, StateError, h.events.last().Status.State)
	assert.Contains(t, h.events.last().Status.Error, "missing.mp4")
}

func TestOrchestrator_MissingLaterLegEndsInError(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Mode = ModeSequential
	paths := h.media(t, "1.mp4", "2.mp4")
	cfg.Playlist = paths
	require.NoError(t, os.Remove(paths[1]))

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
	h.spawner.handle(t, 0).exit(Exit{})

	assert.Equal(t, []EventKind{EventPlaylistProgress, EventError}, h.events.kinds())
	_, ok := h.orch.Status("s1")
	assert.False(t, ok)
}

func TestOrchestrator_SpawnFailure(t *testing.T) {
	h := newHarness(t)
	h.spawner.failWith = errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	_, err := h.orch.Start(context.Background(), cfg)
	require.ErrorIs(t, err, ErrSpawnFailed)
	assert.Equal(t, []EventKind{EventError}, h.events.kinds())

	h.spawner.failWith = nil
	_, err = h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
}

func TestOrchestrator_StartValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Start(context.Background(), StreamConfig{})
	assert.Error(t, err)

	cfg := youtubeConfig("s1")
	_, err = h.orch.Start(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNoMedia)

	cfg = youtubeConfig("s2")
	cfg.Platform = PlatformCustom
	cfg.Media = h.media(t, "a.mp4")[0]
	_, err = h.orch.Start(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNoDestination)

	assert.Zero(t, h.spawner.count())
	assert.Empty(t, h.events.kinds())
}

func TestOrchestrator_StaleLegCallbacksIgnored(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Mode = ModeSequential
	cfg.Playlist = h.media(t, "1.mp4", "2.mp4", "3.mp4")

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
	leg0 := h.spawner.handle(t, 0)
	leg0.exit(Exit{})

	// a late line or second exit from the finished leg changes nothing
	leg0.hooks.OnLine("Output #0")
	leg0.hooks.OnExit(Exit{Code: 1})

	st, ok := h.orch.Status("s1")
	require.True(t, ok)
	assert.Equal(t, StateStarting, st.State)
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, []EventKind{EventPlaylistProgress}, h.events.kinds())
}

func TestOrchestrator_ListActiveAndShutdown(t *testing.T) {
	h := newHarness(t)
	media := h.media(t, "a.mp4")[0]

	for _, id := range []string{"s2", "s1", "s3"} {
		cfg := youtubeConfig(id)
		cfg.Media = media
		_, err := h.orch.Start(context.Background(), cfg)
		require.NoError(t, err)
	}

	active := h.orch.ListActive()
	require.Len(t, active, 3)
	assert.Equal(t, "s1", active[0].StreamID)
	assert.Equal(t, "s2", active[1].StreamID)
	assert.Equal(t, "s3", active[2].StreamID)

	pid, ok := h.orch.ProcessID("s1")
	assert.True(t, ok)
	assert.Positive(t, pid)

	require.NoError(t, h.orch.Shutdown(context.Background()))
	assert.Empty(t, h.orch.ListActive())
	assert.Len(t, h.events.kinds(), 3)
}

func TestOrchestrator_EventsCarryOwner(t *testing.T) {
	h := newHarness(t)
	cfg := youtubeConfig("s1")
	cfg.Media = h.media(t, "a.mp4")[0]

	_, err := h.orch.Start(context.Background(), cfg)
	require.NoError(t, err)
	h.spawner.handle(t, 0).emit("Output #0")

	ev := h.events.last()
	assert.Equal(t, "user-1", ev.OwnerID)
	assert.Equal(t, "s1", ev.StreamID)
	assert.Equal(t, h.clock.Now(), ev.At)
}
