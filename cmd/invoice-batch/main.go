package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lensworks/invoicelens/constants"
	"github.com/lensworks/invoicelens/internal/ai/openai"
	"github.com/lensworks/invoicelens/internal/async"
	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/export"
	"github.com/lensworks/invoicelens/internal/ingest"
	"github.com/lensworks/invoicelens/internal/pipeline"
	"github.com/lensworks/invoicelens/internal/repository"
	"github.com/lensworks/invoicelens/internal/storage/local"
)

func main() {
	var (
		dir     = flag.String("dir", "", "directory to ingest invoices from (required)")
		tenant  = flag.String("tenant", "local", "tenant id to file records under")
		exts    = flag.String("exts", "", "comma-separated extension filter, e.g. pdf,png (default: all supported)")
		watch   = flag.Bool("watch", false, "keep watching the directory for new files until interrupted")
		out     = flag.String("out", "", "write an XLSX export to this path after ingestion")
		fromStr = flag.String("from", "", "export window start, YYYY-MM-DD")
		toStr   = flag.String("to", "", "export window end, YYYY-MM-DD")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *dir == "" {
		logger.Error("missing required flag", "flag", "-dir")
		os.Exit(2)
	}

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

	repo := repository.NewInvoiceRepository(pool, logger)
	blobs := local.New(cfg.Storage.LocalDir)
	proc := pipeline.NewProcessor(client, repo, blobs, cfg.Pipeline.MaxUploadBytes, logger)
	ingestor := ingest.New(proc, cfg.Pipeline, logger)

	var includeExts []string
	if *exts != "" {
		includeExts = strings.Split(*exts, ",")
	}

	logger.Info("starting ingestion", "dir", *dir, "tenant", *tenant)
	results, stats, err := ingestor.IngestDirectory(ctx, *tenant, *dir, includeExts, true)
	if err != nil {
		logger.Error("directory ingestion failed", "error", err)
		os.Exit(1)
	}
	for _, r := range results {
		if r.Err != "" {
			logger.Warn("file failed", "path", r.Path, "error", r.Err)
		}
	}
	logger.Info("ingestion complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)

	if *watch {
		runWatch(ctx, ingestor, cfg, *tenant, *dir, includeExts, logger)
	}

	if *out != "" {
		// The run context may already be canceled after a watch; give the
		// export its own deadline.
		exportCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		xlsx, err := export.NewService(repo, logger).ExportInvoicesXLSX(exportCtx, *tenant, *fromStr, *toStr)
		if err != nil {
			logger.Error("export failed", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
			logger.Error("failed to write export", "path", *out, "error", err)
			os.Exit(1)
		}
		logger.Info("export written", "path", *out, "bytes", len(xlsx))
	}
}

// runWatch feeds watcher events through the same worker queue the directory
// walk uses, until the context is interrupted.
func runWatch(ctx context.Context, ingestor *ingest.DirectoryIngestor, cfg *common.Config, tenant, dir string, includeExts []string, logger *slog.Logger) {
	watchCfg := ingest.WatchConfig{
		Roots:    []string{dir},
		Debounce: 2 * time.Second,
	}
	if len(includeExts) > 0 {
		set := map[string]struct{}{}
		for _, e := range includeExts {
			if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
				set[e] = struct{}{}
			}
		}
		watchCfg.AllowedExts = set
	}

	queue := async.NewProcessorQueue(async.RunnerFunc(func(jctx context.Context, job async.Job) error {
		_, err := ingestor.IngestPath(jctx, job.TenantID, job.Path)
		return err
	}), logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
	)

	events, errs, err := ingest.StartWatcher(ctx, watchCfg, logger)
	if err != nil {
		logger.Error("failed to start watcher", "error", err)
		os.Exit(1)
	}
	logger.Info("watching for new invoices", "dir", dir)

	for events != nil || errs != nil {
		select {
		case path, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			_ = queue.Enqueue(ctx, async.Job{
				TenantID:    tenant,
				Path:        path,
				SubmittedAt: time.Now().UTC(),
				TraceID:     uuid.NewString(),
			})
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
}
