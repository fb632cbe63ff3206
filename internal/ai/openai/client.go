package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lensworks/invoicelens/internal/ai"
	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/entity"
)

// extractPayload is the wire shape of the extraction content.
type extractPayload struct {
	Vendor    string `json:"vendor"`
	Date      string `json:"date"`
	Total     string `json:"total"`
	LineItems []struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
	} `json:"line_items"`
}

// Extract implements ai.Extractor over a multimodal chat completion. The
// document rides along as a base64 data URL content part.
func (c *Client) Extract(ctx context.Context, in ai.ExtractInput) (ai.ExtractResult, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("ai.extract.start",
		"req_id", rid,
		"tenant_id", common.TenantIDFromContext(ctx),
		"model", c.cfg.ChatModel,
		"mime_type", in.MimeType,
		"file_name", in.FileName,
		"bytes", len(in.Data),
	)

	schema := ai.BuildExtractionJSONSchema()
	user := []map[string]any{
		{"type": "text", "text": ai.BuildExtractionUserPrompt(in.FileName)},
		documentPart(in),
	}

	body := map[string]any{
		"model":           c.cfg.ChatModel,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": ai.BuildExtractionSystemPrompt()},
			{"role": "user", "content": user},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	content, err := c.chat(ctx, rid, "ai.extract", body)
	if err != nil {
		return ai.ExtractResult{}, err
	}

	cleaned, err := c.validateWithSanitize(rid, "ai.extract", schema, []byte(content), ai.SanitizeExtraction)
	if err != nil {
		return ai.ExtractResult{}, err
	}

	var payload extractPayload
	if err := json.Unmarshal(cleaned, &payload); err != nil {
		c.log.Error("ai.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ai.ExtractResult{}, fmt.Errorf("unmarshal fields: %w", err)
	}

	// the schema already proved these match the decimal pattern
	total, _ := strconv.ParseFloat(payload.Total, 64)
	out := ai.ExtractResult{
		Vendor: payload.Vendor,
		Date:   payload.Date,
		Total:  total,
	}
	for _, li := range payload.LineItems {
		amount, _ := strconv.ParseFloat(li.Amount, 64)
		out.LineItems = append(out.LineItems, entity.LineItem{
			Description: li.Description,
			Amount:      amount,
		})
	}

	c.log.Info("ai.extract.ok",
		"req_id", rid,
		"vendor", out.Vendor,
		"date", out.Date,
		"total", out.Total,
		"line_items", len(out.LineItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// documentPart renders the uploaded document as a multimodal content part.
// Images ride as image_url data URLs; PDFs use the file part shape.
func documentPart(in ai.ExtractInput) map[string]any {
	if in.MimeType == "application/pdf" {
		return map[string]any{
			"type": "file",
			"file": map[string]any{
				"filename":  in.FileName,
				"file_data": ai.DataURL(in.Data, in.MimeType),
			},
		}
	}
	return map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": ai.DataURL(in.Data, in.MimeType)},
	}
}

// chat posts a chat/completions body and returns the first choice's content.
func (c *Client) chat(ctx context.Context, rid, op string, body map[string]any) (string, error) {
	start := time.Now()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error(op+".http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error(op+".decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error(op+".no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("no choices in openai response")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// validateWithSanitize validates strictly first, then applies the payload's
// sanitize pass and re-validates before giving up.
func (c *Client) validateWithSanitize(rid, op string, schema map[string]any, content []byte, sanitize func([]byte) ([]byte, []string, error)) ([]byte, error) {
	err := ai.ValidateJSONAgainstSchema(schema, content)
	if err == nil {
		return content, nil
	}

	cleaned, dropped, sErr := sanitize(content)
	if sErr != nil {
		c.log.Error(op+".sanitize_failed", "req_id", rid, "error", sErr)
		return nil, fmt.Errorf("sanitize failed: %w", sErr)
	}
	if vErr := ai.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
		c.log.Error(op+".schema_validation_failed",
			"req_id", rid, "error", vErr, "content", string(content),
		)
		return nil, fmt.Errorf("schema validation failed: %w", vErr)
	}

	c.log.Warn(op+".sanitize_applied", "req_id", rid, "dropped", dropped)
	return cleaned, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, buf.String())
	}

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return buf.Bytes(), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
