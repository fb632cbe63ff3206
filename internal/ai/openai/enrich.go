package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lensworks/invoicelens/internal/ai"
	"github.com/lensworks/invoicelens/internal/common"
)

// Summarize implements ai.Summarizer. A blank summary is an error: the
// summary is required for the embedding and display contract.
func (c *Client) Summarize(ctx context.Context, in ai.SummarizeInput) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("ai.summarize.start",
		"req_id", rid,
		"tenant_id", common.TenantIDFromContext(ctx),
		"model", c.cfg.ChatModel,
		"vendor", in.Vendor,
		"line_items", len(in.LineItems),
	)

	schema := ai.BuildSummaryJSONSchema()
	body := map[string]any{
		"model":           c.cfg.ChatModel,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": ai.BuildSummarySystemPrompt()},
			{"role": "user", "content": ai.BuildSummaryUserPrompt(in)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	content, err := c.chat(ctx, rid, "ai.summarize", body)
	if err != nil {
		return "", err
	}
	cleaned, err := c.validateWithSanitize(rid, "ai.summarize", schema, []byte(content), ai.SanitizeSummary)
	if err != nil {
		return "", err
	}

	var payload struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(cleaned, &payload); err != nil {
		return "", fmt.Errorf("unmarshal summary: %w", err)
	}
	summary := strings.TrimSpace(payload.Summary)
	if summary == "" {
		c.log.Error("ai.summarize.empty", "req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("summary missing from response")
	}

	c.log.Info("ai.summarize.ok",
		"req_id", rid,
		"summary_len", len(summary),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return summary, nil
}

// Categorize implements ai.Categorizer.
func (c *Client) Categorize(ctx context.Context, in ai.CategorizeInput) ([]string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("ai.categorize.start",
		"req_id", rid,
		"tenant_id", common.TenantIDFromContext(ctx),
		"model", c.cfg.ChatModel,
		"vendor", in.Vendor,
		"line_items", len(in.LineItems),
		"suggested_categories", len(c.cfg.SuggestedCategories),
	)

	schema := ai.BuildCategorizationJSONSchema()
	body := map[string]any{
		"model":           c.cfg.ChatModel,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": ai.BuildCategorizationSystemPrompt(c.cfg.SuggestedCategories)},
			{"role": "user", "content": ai.BuildClassificationUserPrompt(in.Vendor, in.LineItems)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	content, err := c.chat(ctx, rid, "ai.categorize", body)
	if err != nil {
		return nil, err
	}
	cleaned, err := c.validateWithSanitize(rid, "ai.categorize", schema, []byte(content), ai.SanitizeCategories)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(cleaned, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal categories: %w", err)
	}

	c.log.Info("ai.categorize.ok",
		"req_id", rid,
		"categories", payload.Categories,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return payload.Categories, nil
}

// DetectRecurrence implements ai.RecurrenceDetector.
func (c *Client) DetectRecurrence(ctx context.Context, in ai.RecurrenceInput) (ai.RecurrenceResult, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("ai.recurrence.start",
		"req_id", rid,
		"tenant_id", common.TenantIDFromContext(ctx),
		"model", c.cfg.ChatModel,
		"vendor", in.Vendor,
		"line_items", len(in.LineItems),
	)

	schema := ai.BuildRecurrenceJSONSchema()
	body := map[string]any{
		"model":           c.cfg.ChatModel,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": ai.BuildRecurrenceSystemPrompt()},
			{"role": "user", "content": ai.BuildClassificationUserPrompt(in.Vendor, in.LineItems)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	content, err := c.chat(ctx, rid, "ai.recurrence", body)
	if err != nil {
		return ai.RecurrenceResult{}, err
	}
	cleaned, err := c.validateWithSanitize(rid, "ai.recurrence", schema, []byte(content), ai.SanitizeRecurrence)
	if err != nil {
		return ai.RecurrenceResult{}, err
	}

	var payload struct {
		IsLikelyRecurring bool   `json:"is_likely_recurring"`
		Reasoning         string `json:"reasoning"`
	}
	if err := json.Unmarshal(cleaned, &payload); err != nil {
		return ai.RecurrenceResult{}, fmt.Errorf("unmarshal recurrence: %w", err)
	}

	c.log.Info("ai.recurrence.ok",
		"req_id", rid,
		"recurring", payload.IsLikelyRecurring,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ai.RecurrenceResult{
		IsLikelyRecurring: payload.IsLikelyRecurring,
		Reasoning:         strings.TrimSpace(payload.Reasoning),
	}, nil
}
