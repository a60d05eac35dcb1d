package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/config"
	"github.com/workshoplabs/backend-garage/internal/lock"
	"github.com/workshoplabs/backend-garage/internal/notify"
	"github.com/workshoplabs/backend-garage/internal/obs"
	"github.com/workshoplabs/backend-garage/internal/queue"
	"github.com/workshoplabs/backend-garage/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	reminderStore := notify.PGStore{Pool: pool}
	taskQueue := queue.Enqueuer{R: redisClient, Prefix: cfg.QueueRedisPrefix, DedupTTL: cfg.IdempotencyTTL}

	scanner := notify.Scanner{
		Store:       reminderStore,
		Queue:       taskQueue,
		Lock:        lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL:     cfg.LockTTL,
		GraceDays:   cfg.ReminderGraceDays,
		MaxAttempts: cfg.QueueMaxAttempts,
		Logger:      logger,
	}

	var mailer common.EmailSender = common.NopEmailSender{}
	dispatcher := notify.Dispatcher{
		Store: reminderStore,
		Mail:  mailer,
		Breaker: resilience.NewBreaker(5, 0.5, 30*time.Second).
			WithTarget("reminder-mail").
			WithLogger(logger),
		From:   cfg.ReminderEmailFrom,
		Logger: logger,
	}

	reminderWorker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueueRedisPrefix,
		Kind:              notify.ReminderTaskKind(),
		Concurrency:       cfg.QueueConcurrency,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		RetryBase:         cfg.QueueBackoffBase,
		RetryJitter:       cfg.QueueBackoffJitter,
		Handler:           dispatcher.HandleTask,
	}

	go runScanLoop(ctx, scanner, cfg.ReminderScanInterval, logger)
	go runDepthLoop(ctx, reminderWorker)

	logger.Info().Msg("worker starting")
	if err := reminderWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}

// runScanLoop triggers a reminder scan immediately and then on each interval.
func runScanLoop(ctx context.Context, scanner notify.Scanner, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	if err := scanner.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("reminder scan failed")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := scanner.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("reminder scan failed")
			}
		}
	}
}

// runDepthLoop keeps the queue depth gauge fresh.
func runDepthLoop(ctx context.Context, w queue.Worker) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Depth(ctx, notify.ReminderTaskKind())
		}
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if cfg.DBMaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.DBMaxIdleConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
