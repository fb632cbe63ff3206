package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lensworks/invoicelens/constants"
	"github.com/lensworks/invoicelens/internal/ai"
	"github.com/lensworks/invoicelens/internal/ai/openai"
	"github.com/lensworks/invoicelens/internal/common"
)

// aiprobe runs the five enrichment stages against one local file and prints
// the assembled result, without touching the database. Useful for prompt and
// model tuning.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: aiprobe <invoice file>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg := common.LoadConfig()
	if cfg.OpenAI.APIKey == "" {
		logger.Error("OPENAI_API_KEY env var is required")
		os.Exit(2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read file", "path", path, "error", err)
		os.Exit(1)
	}

	client := openai.NewClient(openai.Config{
		APIKey:              cfg.OpenAI.APIKey,
		BaseURL:             cfg.OpenAI.BaseURL,
		ChatModel:           cfg.OpenAI.ChatModel,
		EmbedModel:          cfg.OpenAI.EmbedModel,
		Temperature:         cfg.OpenAI.Temperature,
		Timeout:             cfg.OpenAI.Timeout,
		SuggestedCategories: constants.AsStringSlice(),
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	extracted, err := client.Extract(ctx, ai.ExtractInput{
		Data:     data,
		MimeType: constants.MimeTypeForExt(filepath.Ext(path)),
		FileName: filepath.Base(path),
	})
	if err != nil {
		logger.Error("extract failed", "error", err)
		os.Exit(1)
	}

	summary, err := client.Summarize(ctx, ai.SummarizeInput{
		Vendor:    extracted.Vendor,
		Date:      extracted.Date,
		Total:     extracted.Total,
		LineItems: extracted.LineItems,
	})
	if err != nil {
		logger.Error("summarize failed", "error", err)
		os.Exit(1)
	}

	categories, err := client.Categorize(ctx, ai.CategorizeInput{Vendor: extracted.Vendor, LineItems: extracted.LineItems})
	if err != nil {
		logger.Warn("categorize failed", "error", err)
	}

	report := map[string]any{
		"file":       filepath.Base(path),
		"extracted":  extracted,
		"summary":    summary,
		"categories": categories,
	}

	if rec, err := client.DetectRecurrence(ctx, ai.RecurrenceInput{Vendor: extracted.Vendor, LineItems: extracted.LineItems}); err != nil {
		logger.Warn("recurrence detection failed", "error", err)
	} else {
		report["is_likely_recurring"] = rec.IsLikelyRecurring
		report["recurrence_reasoning"] = rec.Reasoning
	}

	if vec, err := client.Embed(ctx, summary); err != nil {
		logger.Warn("embedding failed", "error", err)
	} else {
		report["embedding_dims"] = len(vec)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to encode report", "error", err)
		os.Exit(1)
	}
}
