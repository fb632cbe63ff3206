package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Severity classifies how a stage failure affects an ingestion run.
type Severity string

const (
	// SeverityFatal aborts the run; no record is written.
	SeverityFatal Severity = "FATAL"
	// SeverityDegraded substitutes a documented fallback and continues.
	SeverityDegraded Severity = "DEGRADED"
)

// Stage names as they appear in StageError and log events.
const (
	StageExtract    = "extract"
	StageSummarize  = "summarize"
	StageCategorize = "categorize"
	StageRecurrence = "recurrence"
	StageEmbed      = "embed"
	StagePersist    = "persist"
)

// StageError reports which pipeline stage failed and how severe that is.
// Only fatal failures propagate out of the processor; degraded ones are
// absorbed into fallbacks and logged.
type StageError struct {
	Stage    string
	Severity Severity
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func fatal(stage string, err error) *StageError {
	return &StageError{Stage: stage, Severity: SeverityFatal, Err: err}
}

// UserMessage renders an ingestion failure for API consumers without leaking
// provider payloads. Timeouts, unreadable documents and persistence failures
// each get their own wording.
func UserMessage(err error) string {
	var se *StageError
	if !errors.As(err, &se) {
		return "ingestion failed"
	}

	detail := strings.ToLower(se.Err.Error())
	timedOut := errors.Is(se.Err, context.DeadlineExceeded) ||
		strings.Contains(detail, "timeout") ||
		strings.Contains(detail, "deadline")

	switch {
	case timedOut:
		return fmt.Sprintf("the %s step timed out, try again", se.Stage)
	case se.Stage == StageExtract:
		return "the file could not be read as an invoice"
	case se.Stage == StagePersist:
		return "the invoice could not be saved"
	default:
		return fmt.Sprintf("the %s step failed", se.Stage)
	}
}
