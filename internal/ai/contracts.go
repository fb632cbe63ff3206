package ai

import (
	"context"

	"github.com/lensworks/invoicelens/internal/entity"
)

// ExtractInput carries the raw document handed to the extraction model.
type ExtractInput struct {
	Data     []byte
	MimeType string
	FileName string
}

// ExtractResult is the normalized extraction output. Date is passed through
// as the model produced it; callers normalize it before persisting.
type ExtractResult struct {
	Vendor    string
	Date      string
	Total     float64
	LineItems []entity.LineItem
}

// SummarizeInput is the structured record the summary is written from.
type SummarizeInput struct {
	Vendor    string
	Date      string
	Total     float64
	LineItems []entity.LineItem
}

// CategorizeInput carries the fields categorization keys on.
type CategorizeInput struct {
	Vendor    string
	LineItems []entity.LineItem
}

// RecurrenceInput carries the fields recurrence detection keys on.
type RecurrenceInput struct {
	Vendor    string
	LineItems []entity.LineItem
}

// RecurrenceResult is the recurrence verdict plus its free-text justification.
type RecurrenceResult struct {
	IsLikelyRecurring bool
	Reasoning         string
}

// Extractor pulls structured invoice fields out of a document.
type Extractor interface {
	Extract(ctx context.Context, in ExtractInput) (ExtractResult, error)
}

// Summarizer produces the natural-language synopsis every record must carry.
type Summarizer interface {
	Summarize(ctx context.Context, in SummarizeInput) (string, error)
}

// Categorizer labels an invoice with a small set of short category strings.
type Categorizer interface {
	Categorize(ctx context.Context, in CategorizeInput) ([]string, error)
}

// RecurrenceDetector judges whether an invoice looks like a repeating charge.
type RecurrenceDetector interface {
	DetectRecurrence(ctx context.Context, in RecurrenceInput) (RecurrenceResult, error)
}

// Embedder converts text into a fixed-length vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StageClients bundles the five capabilities the ingestion pipeline consumes.
// One provider client typically implements all of them.
type StageClients interface {
	Extractor
	Summarizer
	Categorizer
	RecurrenceDetector
	Embedder
}
