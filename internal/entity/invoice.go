package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LineItem is a single purchased line on an invoice.
type LineItem struct {
	Description string  `bson:"description" json:"description"`
	Amount      float64 `bson:"amount" json:"amount"`
}

// Invoice represents an invoice record for data transfer between layers.
// Date is the canonical YYYY-MM-DD invoice date; UploadedAt is the immutable
// ingestion instant and the tie-break sort key for listings.
type Invoice struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID            string             `bson:"tenant_id" json:"tenant_id"`
	FileName            string             `bson:"file_name" json:"file_name"`
	Vendor              string             `bson:"vendor" json:"vendor"`
	Date                string             `bson:"date" json:"date"`
	Total               float64            `bson:"total" json:"total"`
	LineItems           []LineItem         `bson:"line_items" json:"line_items"`
	Summary             string             `bson:"summary" json:"summary"`
	SummaryEmbedding    []float32          `bson:"summary_embedding,omitempty" json:"-"`
	Categories          []string           `bson:"categories,omitempty" json:"categories,omitempty"`
	IsLikelyRecurring   *bool              `bson:"is_likely_recurring,omitempty" json:"is_likely_recurring,omitempty"`
	RecurrenceReasoning string             `bson:"recurrence_reasoning,omitempty" json:"recurrence_reasoning,omitempty"`
	UploadedAt          time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	SourceFileURI       string             `bson:"source_file_uri,omitempty" json:"source_file_uri,omitempty"`
	IsDeleted           bool               `bson:"is_deleted" json:"-"`
	DeletedAt           *time.Time         `bson:"deleted_at,omitempty" json:"-"`
}

// HasEmbedding reports whether the record carries a summary vector and can
// therefore anchor a similarity search.
func (i *Invoice) HasEmbedding() bool {
	return len(i.SummaryEmbedding) > 0
}
