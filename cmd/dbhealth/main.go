package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/repository"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := common.LoadConfig()
	if cfg.Mongo.URI == "" {
		logger.Error("MONGO_URI env var is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := repository.Connect(ctx, repository.Config{
		URI:          cfg.Mongo.URI,
		Database:     cfg.Mongo.Database,
		Collection:   cfg.Mongo.Collection,
		VectorIndex:  cfg.Mongo.VectorIndex,
		DialTimeout:  cfg.Mongo.DialTimeout,
		QueryTimeout: cfg.Mongo.QueryTimeout,
		PingTimeout:  cfg.Mongo.PingTimeout,
	}, logger)
	if err != nil {
		logger.Error("store health: FAIL", "error", err)
		os.Exit(1)
	}
	defer pool.Close(context.Background())

	if err := pool.HealthCheck(ctx, cfg.Mongo.PingTimeout); err != nil {
		logger.Error("store health: FAIL", "error", err)
		os.Exit(1)
	}

	logger.Info("store health: OK",
		"database", cfg.Mongo.Database,
		"collection", cfg.Mongo.Collection,
		"vector_index", cfg.Mongo.VectorIndex,
	)
}
