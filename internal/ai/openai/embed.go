package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lensworks/invoicelens/internal/common"
)

// Embed implements ai.Embedder against the embeddings endpoint. The response
// carries float64 components; vectors are stored as float32.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	input := strings.TrimSpace(text)
	if input == "" {
		return nil, fmt.Errorf("embed: empty input")
	}

	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("ai.embed.start",
		"req_id", rid,
		"tenant_id", common.TenantIDFromContext(ctx),
		"model", c.cfg.EmbedModel,
		"text_len", len(input),
	)

	body := map[string]any{
		"model": c.cfg.EmbedModel,
		"input": []string{input},
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("ai.embed.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var er struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &er); err != nil {
		c.log.Error("ai.embed.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		c.log.Error("ai.embed.empty", "req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("no embedding in response")
	}

	vec := make([]float32, len(er.Data[0].Embedding))
	for i, f := range er.Data[0].Embedding {
		vec[i] = float32(f)
	}

	c.log.Info("ai.embed.ok",
		"req_id", rid,
		"dims", len(vec),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return vec, nil
}
