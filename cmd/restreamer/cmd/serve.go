package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/restreamer/internal/database"
	"github.com/jmylchreest/restreamer/internal/events"
	"github.com/jmylchreest/restreamer/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/restreamer/internal/http"
	"github.com/jmylchreest/restreamer/internal/http/handlers"
	"github.com/jmylchreest/restreamer/internal/http/middleware"
	"github.com/jmylchreest/restreamer/internal/metrics"
	"github.com/jmylchreest/restreamer/internal/observability"
	"github.com/jmylchreest/restreamer/internal/relay"
	"github.com/jmylchreest/restreamer/internal/repository"
	"github.com/jmylchreest/restreamer/internal/scheduler"
	"github.com/jmylchreest/restreamer/internal/service"
	"github.com/jmylchreest/restreamer/internal/storage"
	"github.com/jmylchreest/restreamer/internal/version"
)

const dbStatsInterval = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the restreamer server",
	Long: `Start the restreamer HTTP server, relay orchestrator and schedule poller.

The server provides:
- REST API for videos, playlists, streams and schedules
- Health check endpoint at /health
- Prometheus metrics at /metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().String("media-dir", "", "Media directory (overrides storage.media_dir)")
	serveCmd.Flags().Bool("no-scheduler", false, "Disable the schedule poller")
}

func applyServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		appConfig.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		appConfig.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("media-dir") {
		appConfig.Storage.MediaDir, _ = flags.GetString("media-dir")
	}
	if noSched, _ := flags.GetBool("no-scheduler"); noSched {
		appConfig.Scheduler.Enabled = false
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	applyServeFlags(cmd)
	cfg := appConfig
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting restreamer",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit))

	db, err := database.New(cfg.Database, observability.WithComponent(logger, "database"))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	library, err := storage.NewLibrary(cfg.Storage.MediaPath())
	if err != nil {
		return err
	}
	logger.Info("media library ready", slog.String("path", library.BaseDir()))

	streamRepo := repository.NewStreamRepository(db.DB)
	scheduleRepo := repository.NewScheduleRepository(db.DB)
	mediaRepo := repository.NewMediaRepository(db.DB, library.BaseDir())
	sessionRepo := repository.NewSessionRepository(db.DB)

	ffmpegInfo, err := ffmpeg.NewBinaryDetector(cfg.Relay.FFmpegPath).Detect(ctx)
	ffmpegPath := cfg.Relay.FFmpegPath
	if err != nil {
		logger.Warn("ffmpeg not detected, relays will fail to start", slog.Any("error", err))
		ffmpegInfo = nil
		if ffmpegPath == "" {
			ffmpegPath = "ffmpeg"
		}
	} else {
		ffmpegPath = ffmpegInfo.FFmpegPath
		logger.Info("ffmpeg detected",
			slog.String("path", ffmpegInfo.FFmpegPath),
			slog.String("version", ffmpegInfo.Version))
	}

	// Event sinks: stored status first, then metrics and the optional bus.
	m := metrics.New()
	sinks := events.NewFanout(
		service.NewStatusRecorder(streamRepo, sessionRepo).
			WithLogger(observability.WithComponent(logger, "status")),
		m,
	).WithLogger(observability.WithComponent(logger, "events"))

	var publisher *events.RedisPublisher
	if cfg.Events.RedisURL != "" {
		client, err := events.NewRedisClient(cfg.Events.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		publisher = events.NewRedisPublisher(client, cfg.Events.Channel, cfg.Events.PublishRetries).
			WithLogger(observability.WithComponent(logger, "event_bus"))
		if err := publisher.Ping(ctx); err != nil {
			logger.Warn("event bus unreachable, events are queued until it recovers",
				slog.String("channel", cfg.Events.Channel),
				slog.Any("error", err))
		}
		sinks.Add(publisher)
	}

	spawner := relay.NewFFmpegSpawner(ffmpegPath).
		WithStopGrace(cfg.Relay.StopGrace).
		WithLogger(observability.WithComponent(logger, "ffmpeg"))
	orchestrator := relay.NewOrchestrator(spawner).
		WithSink(sinks).
		WithLogger(observability.WithComponent(logger, "relay"))

	quality := relay.Quality(cfg.Relay.DefaultQuality)
	streamService := service.NewStreamService(streamRepo, mediaRepo, sessionRepo, orchestrator).
		WithDefaultQuality(quality).
		WithLogger(observability.WithComponent(logger, "streams"))
	scheduleService := service.NewScheduleService(scheduleRepo, mediaRepo).
		WithDefaultQuality(quality).
		WithLogger(observability.WithComponent(logger, "schedules"))
	mediaService := service.NewMediaService(mediaRepo, library).
		WithLogger(observability.WithComponent(logger, "media"))

	if err := streamService.ResetStale(ctx); err != nil {
		logger.Warn("failed to reset stale stream status", slog.Any("error", err))
	}

	serverOpts := []internalhttp.Option{
		internalhttp.WithMetrics(m, func() { m.SetActiveStreams(len(orchestrator.ListActive())) }),
	}
	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)
		serverOpts = append(serverOpts, internalhttp.WithRateLimiter(limiter))
	}
	server := internalhttp.NewServer(internalhttp.ServerConfigFrom(cfg.Server), logger, version.Version, serverOpts...)

	health := handlers.NewHealthHandler(version.Version).
		WithDB(db).
		WithFFmpeg(ffmpegInfo).
		WithActiveCount(func() int { return len(orchestrator.ListActive()) })
	if publisher != nil {
		health.WithEventBus(publisher)
	}
	health.Register(server.API())
	handlers.NewStreamHandler(streamService).Register(server.API())
	handlers.NewScheduleHandler(scheduleService).Register(server.API())
	handlers.NewMediaHandler(mediaService).Register(server.API())

	// The publisher outlives the workers so shutdown events are delivered.
	busCtx, cancelBus := context.WithCancel(context.Background())
	busDone := make(chan error, 1)
	if publisher != nil {
		go func() { busDone <- publisher.Run(busCtx) }()
	} else {
		busDone <- nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return db.RunStatsMonitor(gctx, dbStatsInterval)
	})
	g.Go(func() error {
		cleaner := service.NewHistoryCleaner(sessionRepo, cfg.History.Retention.Duration()).
			WithLogger(observability.WithComponent(logger, "history"))
		return cleaner.Run(gctx, cfg.History.CleanupInterval)
	})
	if limiter != nil {
		g.Go(func() error {
			return limiter.Run(gctx)
		})
	}
	if cfg.Scheduler.Enabled {
		poller := scheduler.NewPoller(scheduleRepo, mediaRepo, streamRepo, streamService).
			WithConfig(scheduler.PollerConfig{Interval: cfg.Scheduler.PollInterval}).
			WithRecorder(m).
			WithLogger(observability.WithComponent(logger, "scheduler"))
		if err := poller.Start(gctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			poller.Stop()
			return nil
		})
	}

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+cfg.Relay.StopGrace)
	defer cancel()
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop active streams", slog.Any("error", err))
	}

	cancelBus()
	if err := <-busDone; err != nil {
		logger.Error("event bus stopped with error", slog.Any("error", err))
	}

	logger.Info("restreamer stopped")
	return runErr
}
