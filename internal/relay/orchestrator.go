// Package relay supervises one ffmpeg relay per active stream, sequences
// playlist legs and publishes lifecycle events.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/restreamer/internal/ffmpeg"
	"golang.org/x/sync/errgroup"
)

// Orchestrator owns the set of active relay sessions keyed by stream id.
type Orchestrator struct {
	spawner Spawner
	sink    EventSink
	clock   Clock
	logger  *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	sessions map[string]*session
}

// session is the runtime record of one stream. Fields are guarded by the
// orchestrator's mutex.
type session struct {
	cfg         StreamConfig
	destination string
	profile     QualityProfile
	seq         sequence

	index     int
	state     State
	startedAt time.Time
	endedAt   *time.Time
	errMsg    string

	progress    ffmpeg.Progress
	hasProgress bool

	handle Handle
	// leg increments with every spawn so callbacks from an earlier process are ignored.
	leg         int
	legsStarted int
	liveSent    bool
	stopping    bool
	finished    bool

	done  chan struct{}
	final StreamStatus
}

// NewOrchestrator creates an orchestrator that launches relays with spawner.
func NewOrchestrator(spawner Spawner) *Orchestrator {
	return &Orchestrator{
		spawner:  spawner,
		sink:     discardSink{},
		clock:    SystemClock{},
		logger:   slog.Default(),
		sessions: make(map[string]*session),
	}
}

// WithSink sets the event sink.
func (o *Orchestrator) WithSink(sink EventSink) *Orchestrator {
	if sink != nil {
		o.sink = sink
	}
	return o
}

// WithClock sets the clock used for start times and uptime.
func (o *Orchestrator) WithClock(clock Clock) *Orchestrator {
	if clock != nil {
		o.clock = clock
	}
	return o
}

// WithLogger sets the logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// WithRand sets the random source used to shuffle random-mode playlists.
func (o *Orchestrator) WithRand(rng *rand.Rand) *Orchestrator {
	o.rng = rng
	return o
}

// Start begins a relay session for cfg and returns its initial snapshot without
// waiting for the relay to go live.
func (o *Orchestrator) Start(ctx context.Context, cfg StreamConfig) (StreamStatus, error) {
	if cfg.StreamID == "" {
		return StreamStatus{}, fmt.Errorf("stream id is required")
	}

	o.rngMu.Lock()
	seq, err := resolveSequence(cfg, o.rng)
	o.rngMu.Unlock()
	if err != nil {
		return StreamStatus{}, err
	}

	dest, err := Destination(cfg.Platform, cfg.RTMPURL, cfg.StreamKey)
	if err != nil {
		return StreamStatus{}, err
	}

	o.mu.Lock()
	if _, exists := o.sessions[cfg.StreamID]; exists {
		o.mu.Unlock()
		return StreamStatus{}, fmt.Errorf("%w: %s", ErrStreamActive, cfg.StreamID)
	}
	s := &session{
		cfg:         cfg,
		destination: dest,
		profile:     ProfileFor(cfg.Quality),
		seq:         seq,
		state:       StateStarting,
		startedAt:   o.clock.Now(),
		done:        make(chan struct{}),
	}
	o.sessions[cfg.StreamID] = s
	initial := s.snapshot(s.startedAt)
	o.mu.Unlock()

	o.logger.Info("starting stream",
		slog.String("stream_id", cfg.StreamID),
		slog.String("platform", string(cfg.Platform)),
		slog.String("quality", string(s.profile.Name)),
		slog.String("mode", string(seq.mode)),
		slog.Int("items", len(seq.items)),
	)

	if err := o.spawnLeg(ctx, s, 0); err != nil {
		o.fail(s, err)
		return StreamStatus{}, err
	}

	o.mu.Lock()
	initial.LegsStarted = s.legsStarted
	o.mu.Unlock()
	return initial, nil
}

// Stop terminates the session for id and waits for its relay to exit. The
// returned snapshot is final and the session is no longer active.
func (o *Orchestrator) Stop(ctx context.Context, id string) (StreamStatus, error) {
	o.mu.Lock()
	s, ok := o.sessions[id]
	if !ok {
		o.mu.Unlock()
		return StreamStatus{}, fmt.Errorf("%w: %s", ErrStreamNotActive, id)
	}
	var handle Handle
	if !s.stopping {
		s.stopping = true
		s.state = StateStopping
		handle = s.handle
	}
	o.mu.Unlock()

	if handle != nil {
		o.logger.Info("stopping stream", slog.String("stream_id", id))
		handle.Terminate()
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return StreamStatus{}, fmt.Errorf("waiting for stream %s to stop: %w", id, ctx.Err())
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return s.final, nil
}

// Status returns a snapshot of the session for id.
func (o *Orchestrator) Status(id string) (StreamStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[id]
	if !ok {
		return StreamStatus{}, false
	}
	return s.snapshot(o.clock.Now()), true
}

// ListActive returns snapshots of every session ordered by stream id.
func (o *Orchestrator) ListActive() []StreamStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	out := make([]StreamStatus, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, s.snapshot(now))
	}
	slices.SortFunc(out, func(a, b StreamStatus) int {
		return strings.Compare(a.StreamID, b.StreamID)
	})
	return out
}

// ProcessID returns the pid of the relay currently serving id.
func (o *Orchestrator) ProcessID(id string) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[id]
	if !ok || s.handle == nil {
		return 0, false
	}
	return s.handle.PID(), true
}

// Shutdown stops every active session concurrently.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	o.logger.Info("stopping all streams", slog.Int("count", len(ids)))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := o.Stop(gctx, id); err != nil && !errors.Is(err, ErrStreamNotActive) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// spawnLeg launches the relay for the item at index.
func (o *Orchestrator) spawnLeg(ctx context.Context, s *session, index int) error {
	o.mu.Lock()
	if s.finished {
		o.mu.Unlock()
		return nil
	}
	s.leg++
	gen := s.leg
	s.index = index
	media := s.seq.items[index]
	inv := Invocation{
		StreamID:    s.cfg.StreamID,
		MediaPath:   media,
		Destination: s.destination,
		Profile:     s.profile,
		LoopInput:   s.seq.loopsInProcess(),
	}
	o.mu.Unlock()

	if _, err := os.Stat(media); err != nil {
		return fmt.Errorf("%w: %s", ErrMediaNotFound, media)
	}

	handle, err := o.spawner.Spawn(ctx, inv, Hooks{
		OnLine: func(line string) { o.onLine(s, gen, line) },
		OnExit: func(exit Exit) { o.onExit(s, gen, exit) },
	})
	if err != nil {
		if !errors.Is(err, ErrMediaNotFound) && !errors.Is(err, ErrSpawnFailed) {
			err = fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
		return err
	}

	o.mu.Lock()
	s.legsStarted++
	current := s.leg == gen && !s.finished
	if current {
		s.handle = handle
	}
	stop := current && s.stopping
	o.mu.Unlock()

	if stop {
		handle.Terminate()
	}
	return nil
}

func (o *Orchestrator) onLine(s *session, gen int, line string) {
	o.mu.Lock()
	if s.finished || s.leg != gen {
		o.mu.Unlock()
		return
	}

	if ffmpeg.ParseProgressLine(line, &s.progress) {
		s.hasProgress = true
	}

	var ev *Event
	if !s.liveSent && !s.stopping && ffmpeg.IsOutputStarted(line) {
		s.liveSent = true
		s.state = StateLive
		e := o.event(EventLive, s)
		ev = &e
	}
	o.mu.Unlock()

	if ev != nil {
		o.logger.Info("stream live", slog.String("stream_id", s.cfg.StreamID))
		o.sink.Publish(*ev)
	}
}

func (o *Orchestrator) onExit(s *session, gen int, exit Exit) {
	o.mu.Lock()
	if s.finished || s.leg != gen {
		o.mu.Unlock()
		return
	}
	s.handle = nil

	if s.stopping {
		ev := o.finish(s, StateIdle, "")
		o.mu.Unlock()
		o.logger.Info("stream stopped", slog.String("stream_id", s.cfg.StreamID))
		o.sink.Publish(ev)
		return
	}

	action, next := s.seq.onLegFinished(s.index, exit)
	switch action {
	case legFail:
		msg := exit.Message()
		ev := o.finish(s, StateError, msg)
		o.mu.Unlock()
		o.logger.Error("stream failed",
			slog.String("stream_id", s.cfg.StreamID),
			slog.Int("leg", s.final.CurrentIndex),
			slog.String("error", msg),
		)
		o.sink.Publish(ev)
		return
	case legEnd:
		ev := o.finish(s, StateIdle, "")
		o.mu.Unlock()
		o.logger.Info("stream ended", slog.String("stream_id", s.cfg.StreamID))
		o.sink.Publish(ev)
		return
	}

	s.index = next
	s.progress = ffmpeg.Progress{}
	s.hasProgress = false
	progress := o.event(EventPlaylistProgress, s)
	o.mu.Unlock()

	o.logger.Debug("advancing playlist",
		slog.String("stream_id", s.cfg.StreamID),
		slog.Int("index", next),
		slog.Int("total", len(s.seq.items)),
	)
	o.sink.Publish(progress)

	if err := o.spawnLeg(context.Background(), s, next); err != nil {
		o.fail(s, err)
	}
}

// fail ends s in error unless it has already finished.
func (o *Orchestrator) fail(s *session, err error) {
	o.mu.Lock()
	if s.finished {
		o.mu.Unlock()
		return
	}
	ev := o.finish(s, StateError, err.Error())
	o.mu.Unlock()

	o.logger.Error("stream failed",
		slog.String("stream_id", s.cfg.StreamID),
		slog.String("error", err.Error()),
	)
	o.sink.Publish(ev)
}

// finish records the terminal state, removes s from the active set and returns
// the terminal event. The caller holds o.mu.
func (o *Orchestrator) finish(s *session, state State, msg string) Event {
	now := o.clock.Now()
	s.finished = true
	s.state = state
	s.errMsg = msg
	s.endedAt = &now
	s.handle = nil
	s.final = s.snapshot(now)

	if o.sessions[s.cfg.StreamID] == s {
		delete(o.sessions, s.cfg.StreamID)
	}
	close(s.done)

	kind := EventEnded
	if state == StateError {
		kind = EventError
	}
	return Event{
		Kind:     kind,
		StreamID: s.cfg.StreamID,
		OwnerID:  s.cfg.OwnerID,
		At:       now,
		Status:   s.final,
	}
}

// event builds a non-terminal event. The caller holds o.mu.
func (o *Orchestrator) event(kind EventKind, s *session) Event {
	now := o.clock.Now()
	return Event{
		Kind:     kind,
		StreamID: s.cfg.StreamID,
		OwnerID:  s.cfg.OwnerID,
		At:       now,
		Status:   s.snapshot(now),
	}
}

// snapshot copies the session's observable state. Uptime is measured to now,
// or to the end time once the session has finished.
func (s *session) snapshot(now time.Time) StreamStatus {
	st := StreamStatus{
		StreamID:     s.cfg.StreamID,
		State:        s.state,
		CurrentIndex: s.index,
		TotalItems:   len(s.seq.items),
		LegsStarted:  s.legsStarted,
		StartedAt:    s.startedAt,
		Error:        s.errMsg,
	}
	if s.index < len(s.seq.items) {
		st.CurrentMedia = s.seq.items[s.index]
	}

	end := now
	if s.endedAt != nil {
		ended := *s.endedAt
		st.EndedAt = &ended
		end = ended
	}
	st.Uptime = max(end.Sub(s.startedAt), 0)

	if s.hasProgress {
		st.Telemetry = &Telemetry{
			FPS:     s.progress.FPS,
			Bitrate: s.progress.Bitrate,
			Frame:   s.progress.Frame,
			Speed:   s.progress.Speed,
		}
	}
	return st
}
