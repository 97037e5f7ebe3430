package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmylchreest/restreamer/internal/ffmpeg"
)

// DefaultStopGrace is how long a relay is given to quit before it is killed.
const DefaultStopGrace = 5 * time.Second

// Invocation describes one relay leg: a single input pushed to one destination.
type Invocation struct {
	StreamID    string
	MediaPath   string
	Destination string
	Profile     QualityProfile
	// LoopInput makes the relay process repeat its input indefinitely.
	LoopInput bool
}

// Exit describes how a relay process ended.
type Exit struct {
	Code   int
	Signal string
	// Err carries a non-exit failure such as a broken wait, or a message
	// describing the failure drawn from the process output.
	Err error
}

// Clean reports whether the process exited with status zero.
func (e Exit) Clean() bool {
	return e.Code == 0 && e.Signal == "" && e.Err == nil
}

// Message returns a human-readable description of a non-clean exit.
func (e Exit) Message() string {
	switch {
	case e.Clean():
		return ""
	case e.Signal != "":
		return fmt.Sprintf("relay terminated by signal %s", e.Signal)
	case e.Err != nil && e.Code != 0:
		return fmt.Sprintf("relay exited with code %d: %v", e.Code, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("relay exited with code %d", e.Code)
	}
}

// Hooks receive a process's asynchronous signals. OnExit is called exactly
// once, after the last OnLine.
type Hooks struct {
	OnLine func(line string)
	OnExit func(Exit)
}

// Handle controls a running relay process.
type Handle interface {
	PID() int
	// Terminate asks the process to quit and kills it after the grace period.
	// It is safe to call more than once and after exit.
	Terminate()
}

// Spawner launches relay processes. A returned error means no process exists
// and no hook will be called.
type Spawner interface {
	Spawn(ctx context.Context, inv Invocation, hooks Hooks) (Handle, error)
}

// FFmpegSpawner runs relay legs with ffmpeg.
type FFmpegSpawner struct {
	binary    string
	stopGrace time.Duration
	logger    *slog.Logger
}

// NewFFmpegSpawner creates a spawner for the given ffmpeg binary.
func NewFFmpegSpawner(binary string) *FFmpegSpawner {
	return &FFmpegSpawner{
		binary:    binary,
		stopGrace: DefaultStopGrace,
		logger:    slog.Default(),
	}
}

// WithStopGrace sets the quit-to-kill grace period.
func (s *FFmpegSpawner) WithStopGrace(d time.Duration) *FFmpegSpawner {
	if d > 0 {
		s.stopGrace = d
	}
	return s
}

// WithLogger sets the logger.
func (s *FFmpegSpawner) WithLogger(logger *slog.Logger) *FFmpegSpawner {
	s.logger = logger
	return s
}

// BuildCommand returns the ffmpeg command for an invocation.
func (s *FFmpegSpawner) BuildCommand(inv Invocation) *ffmpeg.Command {
	loops := 0
	if inv.LoopInput {
		loops = -1
	}
	p := inv.Profile

	return ffmpeg.NewCommandBuilder(s.binary).
		Realtime().
		StreamLoop(loops).
		Input(inv.MediaPath).
		VideoCodec("libx264").
		VideoPreset("veryfast").
		Tune("zerolatency").
		VideoBitrate(p.VideoBitrate(), p.BufferSize()).
		FitTo(p.Size()).
		KeyframeInterval(60).
		PixelFormat("yuv420p").
		AudioCodec("aac").
		AudioBitrate(p.AudioBitrate()).
		AudioSampleRate(44100).
		AudioChannels(2).
		FLVArgs().
		ProgressPipe(time.Second).
		Output(inv.Destination).
		Build()
}

// Spawn starts ffmpeg for inv. It fails without creating a process when the
// media file is missing or the binary cannot be launched.
func (s *FFmpegSpawner) Spawn(ctx context.Context, inv Invocation, hooks Hooks) (Handle, error) {
	if _, err := os.Stat(inv.MediaPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMediaNotFound, inv.MediaPath)
	}

	cmd := s.BuildCommand(inv)

	var onLine ffmpeg.LineHandler
	if hooks.OnLine != nil {
		var lineMu sync.Mutex
		onLine = func(_ ffmpeg.LineSource, line string) {
			lineMu.Lock()
			defer lineMu.Unlock()
			hooks.OnLine(line)
		}
	}

	if err := cmd.Start(ctx, onLine); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	s.logger.Debug("relay process started",
		slog.String("stream_id", inv.StreamID),
		slog.Int("pid", cmd.PID()),
		slog.String("media", inv.MediaPath),
		slog.String("destination", inv.Destination),
	)

	h := &ffmpegHandle{cmd: cmd, grace: s.stopGrace, logger: s.logger, streamID: inv.StreamID}

	go func() {
		exit := exitFrom(cmd.Wait(), cmd.LastStderrLine())
		if hooks.OnExit != nil {
			hooks.OnExit(exit)
		}
	}()

	return h, nil
}

// exitFrom converts a Wait result into an Exit, attaching the last stderr
// line to failures.
func exitFrom(waitErr error, lastLine string) Exit {
	status, ok := ffmpeg.ExitStatusOf(waitErr)
	if !ok {
		return Exit{Code: -1, Err: waitErr}
	}
	exit := Exit{Code: status.Code, Signal: status.Signal}
	if status.Code != 0 && lastLine != "" {
		exit.Err = errors.New(lastLine)
	}
	return exit
}

type ffmpegHandle struct {
	cmd      *ffmpeg.Command
	grace    time.Duration
	logger   *slog.Logger
	streamID string
	once     sync.Once
}

func (h *ffmpegHandle) PID() int {
	return h.cmd.PID()
}

func (h *ffmpegHandle) Terminate() {
	h.once.Do(func() {
		if h.cmd.Exited() {
			return
		}
		if err := h.cmd.Quit(); err != nil {
			h.logger.Debug("relay quit request failed",
				slog.String("stream_id", h.streamID),
				slog.String("error", err.Error()),
			)
		}

		go func() {
			timer := time.NewTimer(h.grace)
			defer timer.Stop()
			select {
			case <-h.cmd.Done():
			case <-timer.C:
				h.logger.Warn("relay did not quit within grace period, killing",
					slog.String("stream_id", h.streamID),
					slog.Duration("grace", h.grace),
				)
				_ = h.cmd.Kill()
			}
		}()
	})
}
