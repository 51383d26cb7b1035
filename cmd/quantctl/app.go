package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/quant-data-service/internal/cache"
	"github.com/trogers1052/quant-data-service/internal/config"
	"github.com/trogers1052/quant-data-service/internal/database"
	"github.com/trogers1052/quant-data-service/internal/logging"
)

// app holds what every subcommand needs. redis is nil when REDIS_ADDR is unset.
type app struct {
	cfg    *config.Config
	db     *database.DB
	redis  *redis.Client
	logger *logrus.Logger
}

func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	client, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		// bars are still written; cached ranges expire on their own
		logger.WithError(err).Warn("Redis unavailable, cache will not be invalidated")
	}
	return &app{cfg: cfg, db: db, redis: client, logger: logger}, nil
}

func (a *app) Close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	return a.db.Close()
}
