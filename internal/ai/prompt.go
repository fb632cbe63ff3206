package ai

import (
	"fmt"
	"strings"

	"github.com/lensworks/invoicelens/internal/entity"
)

// BuildExtractionSystemPrompt composes the system message for the vision
// extraction call with strict-but-practical formatting rules.
func BuildExtractionSystemPrompt() string {
	parts := []string{
		"You are an invoice parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Read the attached document and extract the issuing vendor, the invoice date, the grand total, and the individual line items.",
		"Prefer ISO-8601 dates (YYYY-MM-DD); if the document shows another format, copy it verbatim rather than guessing.",
		"Money values are decimal strings without currency symbols or thousands separators (e.g. \"1234.56\").",
		"'vendor' is the party issuing the invoice, not the recipient.",
		"'total' is the grand total actually due, after tax and discounts.",
		"Each line item needs a 'description' and an 'amount'; discount lines may carry negative amounts.",
		"Never output null. If a field is not present on the document, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildExtractionUserPrompt packages the filename hint next to the document.
func BuildExtractionUserPrompt(fileName string) string {
	var b strings.Builder
	if name := strings.TrimSpace(fileName); name != "" {
		b.WriteString("Filename: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	b.WriteString("The invoice document is attached. Extract its fields.")
	return b.String()
}

// BuildSummarySystemPrompt composes the system message for summarization.
// The summary doubles as the embedding source, so it must be self-contained.
func BuildSummarySystemPrompt() string {
	parts := []string{
		"You are an invoice summarizer. Return ONLY JSON that matches the provided JSON Schema.",
		"Write a 'summary' of two to three factual sentences covering who billed, when, for what, and how much.",
		"The text is shown to users and indexed for semantic search, so name the vendor and the notable line items explicitly.",
		"No markdown, no bullet points, no speculation beyond the provided fields.",
	}
	return strings.Join(parts, " ")
}

// BuildSummaryUserPrompt renders the structured record the summary is written from.
func BuildSummaryUserPrompt(in SummarizeInput) string {
	var b strings.Builder
	b.WriteString("Vendor: ")
	b.WriteString(in.Vendor)
	b.WriteString("\nDate: ")
	b.WriteString(in.Date)
	fmt.Fprintf(&b, "\nTotal: %.2f\n", in.Total)
	b.WriteString(FormatLineItems(in.LineItems))
	return b.String()
}

// BuildCategorizationSystemPrompt composes the system message for the
// categorization call. The taxonomy is guidance, not a closed enum.
func BuildCategorizationSystemPrompt(suggested []string) string {
	parts := []string{
		"You are an expense categorizer for business invoices. Return ONLY JSON that matches the provided JSON Schema.",
		"Return 'categories': one to three short labels describing what kind of spend this invoice is.",
	}
	if len(suggested) > 0 {
		parts = append(parts,
			"Prefer labels from this list when one fits: "+strings.Join(suggested, ", ")+".",
			"Invent a short label only when nothing listed applies.")
	}
	parts = append(parts,
		"Order labels from most to least specific.",
		"Never output null or empty strings.")
	return strings.Join(parts, " ")
}

// BuildClassificationUserPrompt renders the vendor and line items shared by
// the categorization and recurrence calls.
func BuildClassificationUserPrompt(vendor string, items []entity.LineItem) string {
	var b strings.Builder
	b.WriteString("Vendor: ")
	b.WriteString(vendor)
	b.WriteString("\n")
	b.WriteString(FormatLineItems(items))
	return b.String()
}

// BuildRecurrenceSystemPrompt composes the system message for recurrence
// detection with a short signal rubric.
func BuildRecurrenceSystemPrompt() string {
	parts := []string{
		"You judge whether a business invoice is likely part of a recurring charge. Return ONLY JSON that matches the provided JSON Schema.",
		"Signals for recurring: subscription or SaaS vendors, plan or seat line items, billing-period wording, utilities, rent, telecom, insurance premiums.",
		"Signals against: one-off hardware purchases, project-based professional fees, travel, meals.",
		"Set 'is_likely_recurring' accordingly and give a one-sentence 'reasoning'.",
	}
	return strings.Join(parts, " ")
}

// FormatLineItems renders line items one per line for prompt bodies, capped
// so enormous invoices cannot blow up the request.
func FormatLineItems(items []entity.LineItem) string {
	if len(items) == 0 {
		return "Line items: none listed.\n"
	}

	const maxLines = 40
	var b strings.Builder
	b.WriteString("Line items:\n")
	for i, it := range items {
		if i == maxLines {
			fmt.Fprintf(&b, "... and %d more\n", len(items)-maxLines)
			break
		}
		fmt.Fprintf(&b, "- %s: %.2f\n", it.Description, it.Amount)
	}
	return b.String()
}
