package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// maxStderrLines bounds the in-memory stderr ring buffer.
const maxStderrLines = 100

// LineSource identifies which output pipe produced a line.
type LineSource int

const (
	Stdout LineSource = iota
	Stderr
)

// LineHandler receives every output line. It may be called concurrently for the
// two pipes but never after Wait returns.
type LineHandler func(src LineSource, line string)

// Command represents an FFmpeg command to execute.
type Command struct {
	Binary string
	Args   []string
	Input  string
	Output string

	// Process control
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started time.Time
	mu      sync.RWMutex

	readers sync.WaitGroup
	doneCh  chan struct{}
	waitErr error

	stderrLines []string
	stderrMu    sync.RWMutex
}

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	filterArgs []string
	outputArgs []string
	output     string
	logLevel   string
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary: ffmpegPath,
	}
}

// LogLevel sets the FFmpeg log level. Empty leaves FFmpeg's default.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Realtime reads the input at its native frame rate.
func (b *CommandBuilder) Realtime() *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-re")
	return b
}

// StreamLoop sets the number of input loops. -1 loops forever, 0 plays once.
func (b *CommandBuilder) StreamLoop(n int) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-stream_loop", strconv.Itoa(n))
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// VideoPreset sets the encoding preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// Tune sets the encoder tuning.
func (b *CommandBuilder) Tune(tune string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-tune", tune)
	return b
}

// VideoBitrate sets a constrained video bitrate with its rate-control buffer.
func (b *CommandBuilder) VideoBitrate(bitrate, bufsize string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:v", bitrate, "-maxrate", bitrate, "-bufsize", bufsize)
	return b
}

// VideoFilter adds a video filter.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// FitTo scales the picture to fit size ("W:H") and pads the remainder.
func (b *CommandBuilder) FitTo(size string) *CommandBuilder {
	return b.
		VideoFilter("scale=" + size + ":force_original_aspect_ratio=decrease").
		VideoFilter("pad=" + size + ":(ow-iw)/2:(oh-ih)/2")
}

// KeyframeInterval forces a fixed GOP without scene-cut keyframes.
func (b *CommandBuilder) KeyframeInterval(frames int) *CommandBuilder {
	n := strconv.Itoa(frames)
	b.outputArgs = append(b.outputArgs, "-g", n, "-keyint_min", n, "-sc_threshold", "0")
	return b
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-pix_fmt", format)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// AudioSampleRate sets the audio sample rate in Hz.
func (b *CommandBuilder) AudioSampleRate(hz int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ar", strconv.Itoa(hz))
	return b
}

// AudioChannels sets the number of audio channels.
func (b *CommandBuilder) AudioChannels(channels int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ac", strconv.Itoa(channels))
	return b
}

// FLVArgs adds FLV muxer arguments for RTMP publishing of live input.
func (b *CommandBuilder) FLVArgs() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", "flv", "-flvflags", "no_duration_filesize")
	return b
}

// ProgressPipe reports machine-readable progress on stdout every period.
func (b *CommandBuilder) ProgressPipe(period time.Duration) *CommandBuilder {
	secs := max(int(period/time.Second), 1)
	b.outputArgs = append(b.outputArgs, "-progress", "pipe:1", "-stats_period", strconv.Itoa(secs))
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	if b.logLevel != "" {
		args = append(args, "-loglevel", b.logLevel)
	}
	args = append(args, b.globalArgs...)

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}
	args = append(args, b.outputArgs...)

	args = append(args, b.output)

	return &Command{
		Binary:      b.binary,
		Args:        args,
		Input:       b.input,
		Output:      b.output,
		doneCh:      make(chan struct{}),
		stderrLines: make([]string, 0, maxStderrLines),
	}
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Start launches the process with stdin, stdout and stderr attached and returns
// once it is running. The process is not bound to ctx; use Quit or Kill to stop it.
func (c *Command) Start(ctx context.Context, onLine LineHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return fmt.Errorf("command already started")
	}

	cmd := exec.Command(c.Binary, c.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("getting stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("getting stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.started = time.Now()

	c.readers.Add(2)
	go c.scan(stdout, Stdout, onLine)
	go c.scan(stderr, Stderr, onLine)
	go c.wait()

	return nil
}

// scan forwards lines from one pipe and records stderr in the ring buffer.
func (c *Command) scan(r io.Reader, src LineSource, onLine LineHandler) {
	defer c.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if src == Stderr {
			c.stderrMu.Lock()
			if len(c.stderrLines) >= maxStderrLines {
				c.stderrLines = c.stderrLines[1:]
			}
			c.stderrLines = append(c.stderrLines, line)
			c.stderrMu.Unlock()
		}
		if onLine != nil {
			onLine(src, line)
		}
	}
}

// wait drains both pipes before reaping the process, so every line is
// delivered before Done is closed.
func (c *Command) wait() {
	c.readers.Wait()
	err := c.cmd.Wait()

	c.mu.Lock()
	c.waitErr = err
	c.mu.Unlock()
	close(c.doneCh)
}

// Wait blocks until the process has exited and its output is drained.
func (c *Command) Wait() error {
	c.mu.RLock()
	started := c.cmd != nil
	c.mu.RUnlock()
	if !started {
		return fmt.Errorf("command not started")
	}

	<-c.doneCh

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waitErr
}

// Done is closed when the process has exited.
func (c *Command) Done() <-chan struct{} {
	return c.doneCh
}

// Exited reports whether the process has exited.
func (c *Command) Exited() bool {
	select {
	case <-c.doneCh:
		return true
	default:
		return false
	}
}

// PID returns the process id, or 0 if the command was never started.
func (c *Command) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Quit asks FFmpeg to finish gracefully by sending 'q' on stdin.
func (c *Command) Quit() error {
	c.mu.RLock()
	stdin := c.stdin
	c.mu.RUnlock()

	if stdin == nil || c.Exited() {
		return nil
	}
	if _, err := io.WriteString(stdin, "q"); err != nil {
		return fmt.Errorf("writing quit: %w", err)
	}
	return stdin.Close()
}

// Kill terminates the FFmpeg process.
func (c *Command) Kill() error {
	return c.Signal(os.Kill)
}

// Signal sends a signal to the FFmpeg process.
func (c *Command) Signal(sig os.Signal) error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil || c.Exited() {
		return nil
	}

	err := cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Duration returns how long the command has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// GetStderrLines returns the recent stderr lines captured from FFmpeg.
func (c *Command) GetStderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// LastStderrLine returns the most recent non-empty stderr line.
func (c *Command) LastStderrLine() string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	for i := len(c.stderrLines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(c.stderrLines[i]); s != "" {
			return s
		}
	}
	return ""
}

// ExitStatus describes how a process ended.
type ExitStatus struct {
	Code   int
	Signal string
}

// ExitStatusOf converts an error from Wait into an exit code or signal name.
// It returns ok=false for errors that are not process exit statuses.
func ExitStatusOf(err error) (ExitStatus, bool) {
	if err == nil {
		return ExitStatus{}, true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return ExitStatus{}, false
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: ws.Signal().String()}, true
	}
	return ExitStatus{Code: exitErr.ExitCode()}, true
}
