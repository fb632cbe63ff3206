package repository

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lensworks/invoicelens/internal/dates"
	"github.com/lensworks/invoicelens/internal/entity"
)

// Defaults substituted for missing or wrong-typed display fields.
const (
	DefaultVendor   = "Unknown Vendor"
	DefaultFileName = "untitled upload"
)

// epochSentinel marks records whose uploaded_at could not be decoded.
var epochSentinel = time.Unix(0, 0).UTC()

// DecodeDiagnostic identifies one defaulted field on one stored record.
type DecodeDiagnostic struct {
	RecordID string
	Field    string
	Reason   string
}

// decodeDocument defensively maps a raw stored document onto the canonical
// Invoice. It never fails: every field is either the stored value, when
// present and type-correct, or a documented default recorded in the
// diagnostics. A document that is not a record at all yields a sentinel
// Invoice born soft-deleted, so callers can always iterate a uniform list.
func decodeDocument(raw bson.M) (*entity.Invoice, []DecodeDiagnostic) {
	if len(raw) == 0 {
		inv := sentinelInvoice("document is null or empty")
		return inv, []DecodeDiagnostic{{RecordID: inv.ID.Hex(), Field: "(document)", Reason: "null or empty"}}
	}

	var diags []DecodeDiagnostic
	id, idOK := raw["_id"].(primitive.ObjectID)
	if !idOK {
		id = primitive.NewObjectID()
	}
	rid := id.Hex()
	add := func(field, reason string) {
		diags = append(diags, DecodeDiagnostic{RecordID: rid, Field: field, Reason: reason})
	}
	if !idOK {
		add("_id", "missing or not an object id")
	}

	inv := &entity.Invoice{ID: id}

	if s, ok := asString(raw["tenant_id"]); ok && s != "" {
		inv.TenantID = s
	} else {
		add("tenant_id", "missing or not a string")
	}

	if s, ok := asString(raw["vendor"]); ok && strings.TrimSpace(s) != "" {
		inv.Vendor = s
	} else {
		inv.Vendor = DefaultVendor
		add("vendor", "missing or not a string")
	}

	if s, ok := asString(raw["file_name"]); ok && strings.TrimSpace(s) != "" {
		inv.FileName = s
	} else {
		inv.FileName = DefaultFileName
		add("file_name", "missing or not a string")
	}

	// an undecodable date stays blank; range queries simply exclude it
	if s, ok := asString(raw["date"]); ok {
		if _, err := dates.ParseYMD(s); err == nil {
			inv.Date = s
		} else {
			add("date", fmt.Sprintf("not a canonical date: %q", s))
		}
	} else {
		add("date", "missing or not a string")
	}

	if f, ok := asFloat(raw["total"]); ok {
		if f >= 0 {
			inv.Total = f
		} else {
			add("total", "negative value")
		}
	} else {
		add("total", "missing or not numeric")
	}

	inv.LineItems = []entity.LineItem{}
	if arr, ok := asArray(raw["line_items"]); ok {
		for i, el := range arr {
			doc, isDoc := asDoc(el)
			if !isDoc {
				add(fmt.Sprintf("line_items[%d]", i), "not a document")
				continue
			}
			var li entity.LineItem
			if s, ok := asString(doc["description"]); ok {
				li.Description = s
			} else {
				add(fmt.Sprintf("line_items[%d].description", i), "missing or not a string")
			}
			if f, ok := asFloat(doc["amount"]); ok {
				li.Amount = f
			} else {
				add(fmt.Sprintf("line_items[%d].amount", i), "missing or not numeric")
			}
			inv.LineItems = append(inv.LineItems, li)
		}
	} else if _, present := raw["line_items"]; present {
		add("line_items", "not an array")
	} else {
		add("line_items", "missing")
	}

	if s, ok := asString(raw["summary"]); ok && strings.TrimSpace(s) != "" {
		inv.Summary = s
	} else {
		add("summary", "missing or not a string")
	}

	if arr, ok := asArray(raw["summary_embedding"]); ok {
		vec := make([]float32, 0, len(arr))
		valid := true
		for _, el := range arr {
			f, isNum := asFloat(el)
			if !isNum {
				valid = false
				break
			}
			vec = append(vec, float32(f))
		}
		switch {
		case !valid:
			add("summary_embedding", "non-numeric component")
		case len(vec) > 0:
			inv.SummaryEmbedding = vec
		}
	} else if _, present := raw["summary_embedding"]; present {
		add("summary_embedding", "not an array")
	}

	if arr, ok := asArray(raw["categories"]); ok {
		for i, el := range arr {
			s, isStr := asString(el)
			if !isStr {
				add(fmt.Sprintf("categories[%d]", i), "not a string")
				continue
			}
			if strings.TrimSpace(s) == "" {
				continue
			}
			inv.Categories = append(inv.Categories, s)
		}
	} else if _, present := raw["categories"]; present {
		add("categories", "not an array")
	}

	if b, ok := raw["is_likely_recurring"].(bool); ok {
		inv.IsLikelyRecurring = &b
	} else if _, present := raw["is_likely_recurring"]; present {
		add("is_likely_recurring", "not a boolean")
	}

	if s, ok := asString(raw["recurrence_reasoning"]); ok {
		inv.RecurrenceReasoning = s
	} else if _, present := raw["recurrence_reasoning"]; present {
		add("recurrence_reasoning", "not a string")
	}

	if t, ok := asTime(raw["uploaded_at"]); ok {
		inv.UploadedAt = t
	} else {
		inv.UploadedAt = epochSentinel
		add("uploaded_at", "missing or unparsable")
	}

	if s, ok := asString(raw["source_file_uri"]); ok {
		inv.SourceFileURI = s
	} else if _, present := raw["source_file_uri"]; present {
		add("source_file_uri", "not a string")
	}

	if b, ok := raw["is_deleted"].(bool); ok {
		inv.IsDeleted = b
	} else if _, present := raw["is_deleted"]; present {
		add("is_deleted", "not a boolean")
	}

	if t, ok := asTime(raw["deleted_at"]); ok {
		inv.DeletedAt = &t
	} else if _, present := raw["deleted_at"]; present {
		add("deleted_at", "not a timestamp")
	}

	return inv, diags
}

func sentinelInvoice(reason string) *entity.Invoice {
	return &entity.Invoice{
		ID:         primitive.NewObjectID(),
		FileName:   DefaultFileName,
		Vendor:     DefaultVendor,
		LineItems:  []entity.LineItem{},
		Summary:    "Unreadable stored record: " + reason,
		UploadedAt: epochSentinel,
		IsDeleted:  true,
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func asArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case primitive.A:
		return []any(t), true
	case []any:
		return t, true
	default:
		return nil, false
	}
}

func asDoc(v any) (bson.M, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]any:
		return bson.M(t), true
	case bson.D:
		return t.Map(), true
	default:
		return nil, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC(), true
	case time.Time:
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}
