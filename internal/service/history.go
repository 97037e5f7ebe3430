package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/restreamer/internal/relay"
	"github.com/jmylchreest/restreamer/internal/repository"
)

// HistoryCleaner prunes session history older than a retention window.
type HistoryCleaner struct {
	sessions  repository.SessionRepository
	retention time.Duration
	clock     relay.Clock
	logger    *slog.Logger
}

// NewHistoryCleaner creates a cleaner. A zero retention keeps history forever.
func NewHistoryCleaner(sessions repository.SessionRepository, retention time.Duration) *HistoryCleaner {
	return &HistoryCleaner{
		sessions:  sessions,
		retention: retention,
		clock:     relay.SystemClock{},
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger for the cleaner.
func (c *HistoryCleaner) WithLogger(logger *slog.Logger) *HistoryCleaner {
	c.logger = logger
	return c
}

// WithClock sets the clock used to compute the cutoff.
func (c *HistoryCleaner) WithClock(clock relay.Clock) *HistoryCleaner {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// Cleanup deletes sessions that ended before now minus the retention window.
func (c *HistoryCleaner) Cleanup(ctx context.Context) (int64, error) {
	if c.retention <= 0 {
		return 0, nil
	}
	cutoff := c.clock.Now().Add(-c.retention)
	n, err := c.sessions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.logger.Info("pruned stream session history",
			slog.Int64("deleted", n),
			slog.Time("cutoff", cutoff))
	}
	return n, nil
}

// Run cleans up immediately and then every interval until ctx is cancelled.
func (c *HistoryCleaner) Run(ctx context.Context, interval time.Duration) error {
	if c.retention <= 0 || interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.Cleanup(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("session history cleanup failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
