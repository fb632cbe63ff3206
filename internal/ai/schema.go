package ai

// BuildExtractionJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to the model as an output constraint and also use
// it locally to validate. 'date' is deliberately unconstrained: extraction
// models render dates unpredictably and the normalizer owns that problem.
func BuildExtractionJSONSchema() map[string]any {
	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"description": map[string]any{"type": "string"},
			"amount":      signedDecimalProp(),
		},
		"required": []string{"description", "amount"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"vendor":     map[string]any{"type": "string", "minLength": 1},
			"date":       map[string]any{"type": "string"},
			"total":      decimalProp(),
			"line_items": map[string]any{"type": "array", "items": lineItem},
		},
		"required": []string{"vendor", "total"},
	}
}

// BuildSummaryJSONSchema constrains the summarization payload. The summary is
// required and non-empty; its absence is a hard pipeline failure.
func BuildSummaryJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"summary": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"summary"},
	}
}

// BuildCategorizationJSONSchema constrains the categorization payload.
// Categories stay open strings: the taxonomy is prompt guidance, not a closed
// enum, and unusable output falls back downstream.
func BuildCategorizationJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"categories": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"categories"},
	}
}

// BuildRecurrenceJSONSchema constrains the recurrence payload.
func BuildRecurrenceJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"is_likely_recurring": map[string]any{"type": "boolean"},
			"reasoning":           map[string]any{"type": "string"},
		},
		"required": []string{"is_likely_recurring"},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^\d+(\.\d{1,2})?$`,
	}
}

func signedDecimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,2})?$`, // allow negatives for discount lines
	}
}
