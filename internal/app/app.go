package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/platefare/restaurant-payouts/internal/api"
	"github.com/platefare/restaurant-payouts/internal/api/middleware"
	"github.com/platefare/restaurant-payouts/internal/config"
	"github.com/platefare/restaurant-payouts/internal/db"
	"github.com/platefare/restaurant-payouts/internal/gateway"
	"github.com/platefare/restaurant-payouts/internal/observability"
	"github.com/platefare/restaurant-payouts/internal/repository"
	"github.com/platefare/restaurant-payouts/internal/service"
	"github.com/platefare/restaurant-payouts/internal/sweeplock"
	"github.com/platefare/restaurant-payouts/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and sweep worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DATABASE_URL selects the durable store; without it records live
	// in memory, which is only suitable for local development.
	var pool *pgxpool.Pool
	var store service.Store
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		pg := repository.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		store = pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store = repository.NewMemory()
	}

	var redisClient *redis.Client
	var locker sweeplock.Locker = sweeplock.NoopLocker{}
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		locker = sweeplock.NewRedisLocker(redisClient, cfg.SweepLockTTL)
	} else {
		logger.Warn("REDIS_URL not set, sweeps run without a distributed lock")
	}

	mockGateway := gateway.NewMockGateway()
	mockGateway.FailureRate = cfg.GatewayFailureRate

	payoutSvc := service.NewPayoutService(store, mockGateway, locker, service.PayoutConfig{
		FeePercent:     cfg.PlatformFeePercent,
		DefaultMinimum: cfg.DefaultMinimumPayout,
		ClaimBatchSize: cfg.ClaimBatchSize,
		Currency:       cfg.Currency,
	})
	bankSvc := service.NewBankService(store)

	stopSweeper, err := startSweeper(ctx, cfg, payoutSvc)
	if err != nil {
		return err
	}

	var redisCmdable redis.Cmdable
	if redisClient != nil {
		redisCmdable = redisClient
	}
	router := api.NewRouter(cfg, logger, pool, redisCmdable, payoutSvc, bankSvc)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping sweep worker")
	stopSweeper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// startSweeper starts the configured sweep trigger and returns its stop
// function.
func startSweeper(ctx context.Context, cfg *config.Config, payoutSvc *service.PayoutService) (func(), error) {
	switch cfg.SweepMode {
	case config.SweepModeCron:
		runner := worker.NewCronRunner(payoutSvc, cfg.SweepCron)
		if err := runner.Start(ctx); err != nil {
			return nil, fmt.Errorf("start cron sweeper: %w", err)
		}
		return runner.Stop, nil
	default:
		sweeper := worker.NewSweepWorker(payoutSvc).WithPollInterval(cfg.SweepInterval)
		stop := sweeper.Run(ctx)
		zap.L().Info("ticker sweeper started", zap.Duration("interval", cfg.SweepInterval))
		return stop, nil
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
