package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SanitizeExtraction repairs the common ways extraction models drift from the
// schema so the payload can still validate:
//   - renames known synonyms (merchant -> vendor, invoice_date -> date, ...)
//   - coerces numeric money values to decimal strings
//   - stringifies a numeric date so the normalizer can interpret it
//   - drops line items that are not objects or carry unusable amounts
//   - removes unknown keys (additionalProperties = false friendliness)
//
// Only repairable offenders are touched; required-field absence still fails
// validation afterwards, which is the contract.
func SanitizeExtraction(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	rename := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite an existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms to our schema
	rename("merchant", "vendor")
	rename("merchant_name", "vendor")
	rename("vendor_name", "vendor")
	rename("supplier", "vendor")
	rename("invoice_date", "date")
	rename("tx_date", "date")
	rename("amount_due", "total")
	rename("total_amount", "total")
	rename("grand_total", "total")
	rename("items", "line_items")
	rename("lines", "line_items")

	// 2) coerce money-ish values to decimal strings
	if v, ok := m["total"]; ok {
		if s, note := coerceMoney(v); note == "" {
			m["total"] = s
		} else {
			delete(m, "total")
			dropped = append(dropped, "total("+note+")")
		}
	}

	// 3) per-element line item repair; non-arrays are rejected wholesale
	if v, ok := m["line_items"]; ok {
		arr, isArr := v.([]any)
		if !isArr {
			delete(m, "line_items")
			dropped = append(dropped, "line_items(not-array)")
		} else {
			kept := make([]any, 0, len(arr))
			for i, el := range arr {
				obj, isObj := el.(map[string]any)
				if !isObj {
					dropped = append(dropped, fmt.Sprintf("line_items[%d](not-object)", i))
					continue
				}
				if v, ok := obj["name"]; ok {
					if _, exists := obj["description"]; !exists {
						obj["description"] = v
					}
					delete(obj, "name")
				}
				desc, _ := obj["description"].(string)
				s, note := coerceMoney(obj["amount"])
				if note != "" {
					dropped = append(dropped, fmt.Sprintf("line_items[%d].amount(%s)", i, note))
					continue
				}
				kept = append(kept, map[string]any{
					"description": strings.TrimSpace(desc),
					"amount":      s,
				})
			}
			m["line_items"] = kept
		}
	}

	// 4) a numeric date (epoch style) is stringified for the normalizer
	if v, ok := m["date"]; ok {
		if _, isStr := v.(string); !isStr {
			if s, note := coerceDateString(v); note == "" {
				m["date"] = s
				dropped = append(dropped, "date(stringified)")
			} else {
				delete(m, "date")
				dropped = append(dropped, "date("+note+")")
			}
		}
	}

	// 5) trim obvious strings; blank optionals are dropped
	for _, k := range []string{"vendor", "date"} {
		if v, ok := m[k].(string); ok {
			s := strings.TrimSpace(v)
			if s == "" {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		}
	}

	// 6) remove unknown keys
	allowed := map[string]struct{}{
		"vendor": {}, "date": {}, "total": {}, "line_items": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

// SanitizeSummary tolerates synonym keys and trims the summary string.
func SanitizeSummary(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string
	for _, syn := range []string{"synopsis", "description", "text"} {
		if v, ok := m[syn]; ok {
			if _, exists := m["summary"]; !exists {
				m["summary"] = v
			}
			delete(m, syn)
			dropped = append(dropped, syn+"->summary")
		}
	}
	if v, ok := m["summary"].(string); ok {
		m["summary"] = strings.TrimSpace(v)
	}
	for k := range m {
		if k != "summary" {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

// SanitizeCategories accepts a bare "category" string, trims every label,
// drops empties and non-strings, and strips unknown keys.
func SanitizeCategories(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string
	if v, ok := m["category"]; ok {
		if _, exists := m["categories"]; !exists {
			if s, isStr := v.(string); isStr {
				m["categories"] = []any{s}
			}
		}
		delete(m, "category")
		dropped = append(dropped, "category->categories")
	}
	if v, ok := m["labels"]; ok {
		if _, exists := m["categories"]; !exists {
			m["categories"] = v
		}
		delete(m, "labels")
		dropped = append(dropped, "labels->categories")
	}

	if v, ok := m["categories"]; ok {
		arr, isArr := v.([]any)
		if !isArr {
			delete(m, "categories")
			dropped = append(dropped, "categories(not-array)")
		} else {
			kept := make([]any, 0, len(arr))
			for i, el := range arr {
				s, isStr := el.(string)
				if !isStr {
					dropped = append(dropped, fmt.Sprintf("categories[%d](not-string)", i))
					continue
				}
				s = strings.TrimSpace(s)
				if s == "" {
					dropped = append(dropped, fmt.Sprintf("categories[%d](empty)", i))
					continue
				}
				kept = append(kept, s)
			}
			m["categories"] = kept
		}
	}

	for k := range m {
		if k != "categories" {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

// SanitizeRecurrence coerces stringly booleans and renames common synonyms.
func SanitizeRecurrence(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string
	for _, syn := range []string{"is_recurring", "recurring", "likely_recurring"} {
		if v, ok := m[syn]; ok {
			if _, exists := m["is_likely_recurring"]; !exists {
				m["is_likely_recurring"] = v
			}
			delete(m, syn)
			dropped = append(dropped, syn+"->is_likely_recurring")
		}
	}
	if v, ok := m["explanation"]; ok {
		if _, exists := m["reasoning"]; !exists {
			m["reasoning"] = v
		}
		delete(m, "explanation")
		dropped = append(dropped, "explanation->reasoning")
	}

	if v, ok := m["is_likely_recurring"].(string); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(v))); err == nil {
			m["is_likely_recurring"] = b
			dropped = append(dropped, "is_likely_recurring(string)")
		} else {
			delete(m, "is_likely_recurring")
			dropped = append(dropped, "is_likely_recurring(unparsable)")
		}
	}
	if v, ok := m["reasoning"].(string); ok {
		m["reasoning"] = strings.TrimSpace(v)
	}

	allowed := map[string]struct{}{"is_likely_recurring": {}, "reasoning": {}}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

// coerceDateString renders a numeric date value as its decimal string. The
// note names the reason when the value is unusable.
func coerceDateString(v any) (string, string) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatInt(int64(t), 10), ""
	case json.Number:
		return t.String(), ""
	case nil:
		return "", "null"
	default:
		return "", "type"
	}
}

// coerceMoney renders a loosely-typed money value as a two-decimal string.
// The note names the reason when the value is unusable.
func coerceMoney(v any) (string, string) {
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", t), ""
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return fmt.Sprintf("%.2f", f), ""
		}
		return "", "number"
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimLeft(s, "$€£ ")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" || strings.EqualFold(s, "null") {
			return "", "empty"
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fmt.Sprintf("%.2f", f), ""
		}
		return "", "unparsable"
	case nil:
		return "", "null"
	default:
		return "", "type"
	}
}
