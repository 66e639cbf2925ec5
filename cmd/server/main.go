package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/drople/metering/internal/config"
	"github.com/drople/metering/internal/database"
	"github.com/drople/metering/internal/logger"
	"github.com/drople/metering/internal/models"
	"github.com/drople/metering/internal/router"
	"github.com/drople/metering/internal/services/account"
	"github.com/drople/metering/internal/services/alert"
	"github.com/drople/metering/internal/services/billing"
	"github.com/drople/metering/internal/services/entitlement"
	"github.com/drople/metering/internal/services/notify"
	"github.com/drople/metering/internal/services/usage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal("Invalid redis URL", zap.Error(err))
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn("Redis unreachable, alert dedup disabled", zap.Error(err))
			redisClient = nil
		}
	} else {
		log.Warn("No redis configured, alert dedup disabled")
	}

	accounts := account.NewStore(db, log)
	entitlements := entitlement.NewStore(db, log)
	usageRecorder := usage.NewRecorder(db, log)
	notifier := notify.NewService(db, log)
	alerts := alert.NewEngine(&alert.Config{
		Redis:      redisClient,
		Notifier:   notifier,
		Logger:     log,
		Thresholds: cfg.Billing.AlertThresholds,
		DedupTTL:   cfg.Billing.AlertDedupTTL,
	})

	multipliers := make(map[models.UsageCategory]float64, len(cfg.Billing.Multipliers))
	for category, m := range cfg.Billing.Multipliers {
		multipliers[models.UsageCategory(category)] = m
	}

	engine := billing.NewEngine(&billing.Config{
		Logger:            log,
		Accounts:          accounts,
		Entitlements:      entitlements,
		Usage:             usageRecorder,
		Notifier:          notifier,
		Alerts:            alerts,
		UnitsPerCredit:    cfg.Billing.UnitsPerCredit,
		Multipliers:       multipliers,
		StrictSponsorLink: cfg.Billing.StrictSponsorLink,
	})

	handler := router.New(&router.Config{
		Config:        cfg,
		Logger:        log,
		DB:            db,
		Engine:        engine,
		Accounts:      accounts,
		Usage:         usageRecorder,
		Notifications: notifier,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Starting metering server", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
