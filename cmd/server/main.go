package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/quant-data-service/internal/api"
	"github.com/trogers1052/quant-data-service/internal/auth"
	"github.com/trogers1052/quant-data-service/internal/cache"
	"github.com/trogers1052/quant-data-service/internal/config"
	"github.com/trogers1052/quant-data-service/internal/database"
	"github.com/trogers1052/quant-data-service/internal/kafka"
	"github.com/trogers1052/quant-data-service/internal/logging"
	"github.com/trogers1052/quant-data-service/internal/marketdata"
	"github.com/trogers1052/quant-data-service/internal/scheduler"
	"github.com/trogers1052/quant-data-service/internal/service"
	"github.com/trogers1052/quant-data-service/internal/tracing"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	if err := tracing.Init(cfg.App.Name, cfg.App.Version, cfg.Log.TracingEnabled); err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}
	if version, dirty, err := db.MigrationVersion(); err == nil {
		logger.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("Database schema ready")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.WithField("addr", cfg.Redis.Addr).Info("Redis cache enabled")
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		logger.WithFields(logrus.Fields{"brokers": cfg.Kafka.Brokers, "topic": cfg.Kafka.Topic}).Info("Kafka producer enabled")
	}

	provider := marketdata.NewYahooProvider(cfg.MarketData.BaseURL, cfg.MarketData.RequestsPerSecond, cfg.MarketData.Timeout, logger)
	tokens := auth.NewTokenManager(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)

	userService := service.NewUserService(db, tokens, cfg.Auth.BcryptCost, logger)
	priceService := service.NewPriceService(db, db, provider, cfg.Scheduler.LookbackDays, logger)
	var stockService *service.StockService
	if producer != nil {
		stockService = service.NewStockService(db, producer, logger)
		priceService.WithPublisher(producer)
	} else {
		stockService = service.NewStockService(db, nil, logger)
	}
	if redisClient != nil {
		userService.WithRevocation(cache.NewTokenStore(redisClient))
		priceCache := cache.NewPriceCache(redisClient, cfg.Redis.PriceTTL)
		priceService.WithCache(priceCache)
		stockService.WithCache(priceCache)
	}

	if cfg.Kafka.ConsumerEnabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, priceService, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.WithError(err).Error("Kafka consumer stopped")
			}
		}()
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(priceService, cfg.Scheduler.RefreshAt, cfg.Scheduler.RetentionDays, logger)
		if err := sched.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start scheduler")
		}
		defer sched.Stop()
	}

	var redisPinger api.Pinger
	if redisClient != nil {
		redisPinger = cache.Pinger(redisClient)
	}
	handler := api.NewHandler(userService, stockService, priceService, db, redisPinger,
		api.AppInfo{Name: cfg.App.Name, Version: cfg.App.Version, Environment: cfg.App.Environment},
		logger)

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewServerHandler(handler, api.RouterConfig{
			APIPrefix:   cfg.App.APIPrefix,
			CORSOrigins: cfg.Server.CORSOrigins,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":        srv.Addr,
			"environment": cfg.App.Environment,
			"version":     cfg.App.Version,
		}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}

	logger.Info("Server stopped")
}
