package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for the OpenAI client.
type Config struct {
	APIKey              string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL             string        // default https://api.openai.com/v1
	ChatModel           string        // must accept image and file content parts
	EmbedModel          string        // e.g., "text-embedding-3-small"
	Temperature         float32       // 0..2
	Timeout             time.Duration // http client timeout
	SuggestedCategories []string      // taxonomy offered to the categorization prompt
}

// Client implements the five pipeline stage capabilities against the
// OpenAI-compatible chat completions and embeddings endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}
