package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bizpulse/internal/alert"
	"bizpulse/internal/api"
	"bizpulse/internal/config"
	"bizpulse/internal/database"
	"bizpulse/internal/domain"
	"bizpulse/internal/events"
	"bizpulse/internal/ga4"
	"bizpulse/internal/lease"
	"bizpulse/internal/logging"
	"bizpulse/internal/metrics"
	"bizpulse/internal/schedule"
	"bizpulse/internal/syncer"
	"bizpulse/internal/webhook"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	scheduler := schedule.NewCronScheduler(logging.Component(&logger, "cron"))
	processor := webhook.NewProcessor(db, db, db, &logger)

	svc := syncer.New(syncer.Deps{
		Store:     db,
		Webhooks:  db,
		Processor: processor,
		GA4:       initGA4(ctx, cfg, &logger),
		Alerts:    initAlerts(cfg, bus, &logger),
		Leases:    initLeases(redisClient, &logger),
		Scheduler: scheduler,
		Events:    bus,
		Logger:    &logger,
	}, syncer.Options{
		JobTimeout:         cfg.Scheduler.JobTimeout,
		RetrySweepInterval: cfg.Scheduler.RetrySweepInterval,
		RetrySweepBatch:    cfg.Scheduler.RetrySweepBatch,
		LeaseTTL:           cfg.Scheduler.LeaseTTL,
		RetentionDays:      cfg.Scheduler.RetentionDays,
	})

	if err := seedTenants(ctx, cfg.Scheduler.TenantsFile, db, svc, &logger); err != nil {
		return err
	}

	if err := initBackups(ctx, cfg, db, scheduler, &logger); err != nil {
		return err
	}

	if err := svc.Initialize(ctx); err != nil {
		logger.Error().Err(err).Msg("initialize sync service")
		return err
	}
	scheduler.Start()

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, svc, processor, &logger)
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("sync scheduler started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("sync jobs still running at shutdown")
	}
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}

	logger.Info().Msg("sync scheduler stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "syncd-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := lease.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := lease.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-process leases")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initLeases(client *redis.Client, logger *zerolog.Logger) lease.Store {
	if client == nil {
		return lease.NewMemoryStore()
	}
	return lease.NewFailoverStore(lease.NewRedisStore(client), lease.NewMemoryStore(), logging.Component(logger, "lease"))
}

// initGA4 returns nil when GA4 is not configured; the GA4 job then fails and retries.
func initGA4(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.GA4Client {
	if cfg.Google.CredentialsFile == "" {
		logger.Warn().Msg("google credentials not configured, ga4 sync disabled")
		return nil
	}

	client, err := ga4.NewClient(ctx, cfg.Google.CredentialsFile, cfg.Google.GA4RequestsPerS, cfg.Google.GA4Burst)
	if err != nil {
		logger.Warn().Err(err).Msg("ga4 client init failed, continuing without ga4")
		return nil
	}

	logger.Info().Msg("ga4 client ready")
	return client
}

func initAlerts(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) domain.AlertSink {
	sinks := []alert.Sink{alert.NewLogSink(logger)}

	if cfg.Alerting.Slack.Token != "" {
		sinks = append(sinks, alert.NewSlackSink(
			cfg.Alerting.Slack.Token,
			cfg.Alerting.Slack.APIURL,
			cfg.Alerting.Slack.DefaultChannel,
		))
	}
	if email := alert.NewEmailSink(cfg.Alerting.SMTP); email.IsConfigured() {
		sinks = append(sinks, email)
	}

	return alert.NewDispatcher(bus, logger, sinks...)
}

func initBackups(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	scheduler schedule.Scheduler,
	logger *zerolog.Logger,
) error {
	backup := cfg.Database.Backup
	if !backup.Enabled {
		return nil
	}

	snapshotter := database.NewSnapshotter(db, backup.StoragePath, backup.RetentionDays, logging.Component(logger, "backup"))
	if _, err := scheduler.Schedule(backup.Schedule, func() { snapshotter.Run(ctx) }); err != nil {
		return fmt.Errorf("schedule database backup: %w", err)
	}
	logger.Info().Str("schedule", backup.Schedule).Str("path", backup.StoragePath).Msg("database backups scheduled")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
