package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jmylchreest/restreamer/internal/relay"
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
	retryBaseDelay        = 50 * time.Millisecond
	retryMaxDelay         = 2 * time.Second
)

// ErrQueueFull is returned by Enqueue when the publish queue is saturated.
var ErrQueueFull = errors.New("event queue full")

// Message is the JSON payload published for each event. It carries no
// destination details, so stream keys never leave the process.
type Message struct {
	Kind          relay.EventKind `json:"kind"`
	StreamID      string          `json:"stream_id"`
	OwnerID       string          `json:"owner_id,omitempty"`
	At            time.Time       `json:"at"`
	State         relay.State     `json:"state"`
	CurrentMedia  string          `json:"current_media,omitempty"`
	CurrentIndex  int             `json:"current_index"`
	TotalItems    int             `json:"total_items"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Error         string          `json:"error,omitempty"`
}

// MessageFrom converts a relay event to its wire form.
// Media paths are reduced to file names.
func MessageFrom(ev relay.Event) Message {
	msg := Message{
		Kind:          ev.Kind,
		StreamID:      ev.StreamID,
		OwnerID:       ev.OwnerID,
		At:            ev.At.UTC(),
		State:         ev.Status.State,
		CurrentIndex:  ev.Status.CurrentIndex,
		TotalItems:    ev.Status.TotalItems,
		UptimeSeconds: ev.Status.UptimeSeconds(),
		Error:         ev.Status.Error,
	}
	if ev.Status.CurrentMedia != "" {
		msg.CurrentMedia = filepath.Base(ev.Status.CurrentMedia)
	}
	return msg
}

// NewRedisClient creates a client from a redis:// or rediss:// URL.
func NewRedisClient(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// RedisPublisher publishes events to a Redis pub/sub channel. Publish only
// enqueues; a single worker started with Run drains the queue so per-stream
// ordering is kept and relay goroutines never wait on the network.
type RedisPublisher struct {
	client  goredis.UniversalClient
	channel string
	retry   retrypolicy.RetryPolicy[any]
	queue   chan Message
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisPublisher creates a publisher that retries each message up to retries times.
func NewRedisPublisher(client goredis.UniversalClient, channel string, retries int) *RedisPublisher {
	p := &RedisPublisher{
		client:  client,
		channel: channel,
		queue:   make(chan Message, defaultQueueSize),
		timeout: defaultPublishTimeout,
		logger:  slog.Default(),
	}
	p.retry = retrypolicy.NewBuilder[any]().
		WithBackoff(retryBaseDelay, retryMaxDelay).
		WithMaxRetries(max(retries, 0)).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			p.logger.Warn("retrying event publish",
				slog.Int("attempt", e.Attempts()),
				slog.Any("error", e.LastError()))
		}).
		Build()
	return p
}

// WithLogger sets the logger.
func (p *RedisPublisher) WithLogger(logger *slog.Logger) *RedisPublisher {
	p.logger = logger
	return p
}

// Channel returns the pub/sub channel name.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish implements relay.EventSink. Events are dropped with a warning when
// the queue is full.
func (p *RedisPublisher) Publish(ev relay.Event) {
	if err := p.Enqueue(MessageFrom(ev)); err != nil {
		p.logger.Warn("dropping event",
			slog.String("kind", string(ev.Kind)),
			slog.String("stream_id", ev.StreamID),
			slog.Any("error", err))
	}
}

// Enqueue adds msg to the publish queue without blocking.
func (p *RedisPublisher) Enqueue(msg Message) error {
	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (p *RedisPublisher) Run(ctx context.Context) error {
	p.logger.Info("event publisher started", slog.String("channel", p.channel))
	for {
		select {
		case <-ctx.Done():
			p.flush()
			p.logger.Info("event publisher stopped")
			return nil
		case msg := <-p.queue:
			p.send(ctx, msg)
		}
	}
}

func (p *RedisPublisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	for {
		select {
		case msg := <-p.queue:
			p.send(ctx, msg)
		default:
			return
		}
	}
}

func (p *RedisPublisher) send(ctx context.Context, msg Message) {
	if err := p.PublishMessage(ctx, msg); err != nil && ctx.Err() == nil {
		p.logger.Error("failed to publish event",
			slog.String("kind", string(msg.Kind)),
			slog.String("stream_id", msg.StreamID),
			slog.Any("error", err))
	}
}

// PublishMessage publishes msg synchronously with retries.
func (p *RedisPublisher) PublishMessage(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err = failsafe.With(p.retry).WithContext(ctx).Get(func() (any, error) {
		return nil, p.client.Publish(ctx, p.channel, payload).Err()
	})
	if err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Subscribe delivers messages from the channel to handler until ctx is cancelled.
func (p *RedisPublisher) Subscribe(ctx context.Context, handler func(Message)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				p.logger.Warn("ignoring malformed event",
					slog.String("channel", p.channel),
					slog.Any("error", err))
				continue
			}
			handler(m)
		}
	}
}

// Ping checks connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
