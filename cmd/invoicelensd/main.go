package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lensworks/invoicelens/constants"
	"github.com/lensworks/invoicelens/internal/ai/openai"
	"github.com/lensworks/invoicelens/internal/analytics"
	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/export"
	"github.com/lensworks/invoicelens/internal/invoices"
	"github.com/lensworks/invoicelens/internal/pipeline"
	"github.com/lensworks/invoicelens/internal/repository"
	"github.com/lensworks/invoicelens/internal/server"
	"github.com/lensworks/invoicelens/internal/storage/local"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
		logger.Error("failed to connect to document store", "error", err)
		os.Exit(1)
	}
	defer pool.Close(context.Background())

	client := openai.NewClient(openai.Config{
		APIKey:              cfg.OpenAI.APIKey,
		BaseURL:             cfg.OpenAI.BaseURL,
		ChatModel:           cfg.OpenAI.ChatModel,
		EmbedModel:          cfg.OpenAI.EmbedModel,
		Temperature:         cfg.OpenAI.Temperature,
		Timeout:             cfg.OpenAI.Timeout,
		SuggestedCategories: constants.AsStringSlice(),
	}, logger)

	blobs := local.New(cfg.Storage.LocalDir)
	repo := repository.NewInvoiceRepository(pool, logger)
	proc := pipeline.NewProcessor(client, repo, blobs, cfg.Pipeline.MaxUploadBytes, logger)

	router := server.NewRouter(server.Deps{
		Invoices:       invoices.NewService(repo, client, proc, logger),
		Analytics:      analytics.NewService(repo, logger),
		Exporter:       export.NewService(repo, logger),
		Pipeline:       proc,
		Health:         pool,
		Logger:         logger,
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              server.Addr(cfg.Server.HTTPAddr),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("stopped")
}
