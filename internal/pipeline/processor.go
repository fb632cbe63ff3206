package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lensworks/invoicelens/constants"
	"github.com/lensworks/invoicelens/internal/ai"
	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/dates"
	"github.com/lensworks/invoicelens/internal/entity"
	"github.com/lensworks/invoicelens/internal/repository"
	"github.com/lensworks/invoicelens/internal/storage"
)

// totalTolerance is the allowed drift between the extracted total and the
// sum of line item amounts before a divergence diagnostic is logged.
const totalTolerance = 0.01

// Upper bounds on caller-supplied strings. File names are capped at the
// usual filesystem limit since the blob store reuses them on disk.
const (
	maxFileNameChars = 255
	maxVendorChars   = 256
)

// IngestRequest is one document submitted for ingestion.
type IngestRequest struct {
	TenantID string
	FileName string
	MimeType string
	Data     []byte
}

// ManualEntry is a record keyed in by hand. Categories, when present, are
// stored verbatim instead of asking the categorizer.
type ManualEntry struct {
	TenantID   string
	FileName   string
	Vendor     string
	Date       string
	Total      float64
	LineItems  []entity.LineItem
	Categories []string
}

// Processor runs the staged ingestion flow: extract, normalize, enrich,
// embed, persist. Stage severity decides whether a failure aborts the run
// or only degrades the record.
type Processor struct {
	stages   ai.StageClients
	repo     repository.InvoiceRepository
	blobs    storage.Store
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor wires the ingestion pipeline. blobs may be nil when no blob
// store is configured; source files are then simply not retained.
func NewProcessor(stages ai.StageClients, repo repository.InvoiceRepository, blobs storage.Store, maxBytes int64, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		stages:   stages,
		repo:     repo,
		blobs:    blobs,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
	}
}

// IngestFile runs the full pipeline over an uploaded document and persists
// exactly one record on success. A fatal stage failure persists nothing.
func (p *Processor) IngestFile(ctx context.Context, in IngestRequest) (*entity.Invoice, error) {
	rid := requestID(ctx)
	start := p.now()
	log := p.logger.With("req_id", rid, "tenant_id", in.TenantID, "file_name", in.FileName)

	if err := p.validateFile(in); err != nil {
		return nil, err
	}
	// stage clients read the tenant off the context for log attribution
	ctx = common.WithTenantID(ctx, in.TenantID)

	log.Info("pipeline.ingest.start", "mime_type", in.MimeType, "bytes", len(in.Data))

	extracted, err := p.stages.Extract(ctx, ai.ExtractInput{
		Data:     in.Data,
		MimeType: in.MimeType,
		FileName: in.FileName,
	})
	if err != nil {
		log.Error("pipeline.extract.failed", "error", err)
		return nil, fatal(StageExtract, err)
	}

	inv := &entity.Invoice{
		TenantID:   in.TenantID,
		FileName:   in.FileName,
		Vendor:     extracted.Vendor,
		Date:       normalizeDate(log, extracted.Date),
		Total:      extracted.Total,
		LineItems:  extracted.LineItems,
		UploadedAt: start.UTC(),
	}
	if inv.LineItems == nil {
		inv.LineItems = []entity.LineItem{}
	}
	p.checkTotals(log, inv)

	if err := p.enrich(ctx, log, inv, nil); err != nil {
		return nil, err
	}

	if p.blobs != nil {
		uri, upErr := p.blobs.Upload(ctx, in.Data, path.Join(in.TenantID, in.FileName), in.MimeType)
		if upErr != nil {
			// storage is a collaborator, not a stage; the record still lands
			log.Warn("pipeline.store.degraded", "error", upErr)
		} else {
			inv.SourceFileURI = uri
		}
	}

	if _, err := p.repo.Insert(ctx, inv); err != nil {
		log.Error("pipeline.persist.failed", "error", err)
		return nil, fatal(StagePersist, err)
	}

	log.Info("pipeline.ingest.ok",
		"record_id", inv.ID.Hex(),
		"vendor", inv.Vendor,
		"embedded", inv.HasEmbedding(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inv, nil
}

// IngestManual persists a hand-entered record, running every stage except
// extraction. Supplied categories short-circuit the categorizer.
func (p *Processor) IngestManual(ctx context.Context, in ManualEntry) (*entity.Invoice, error) {
	rid := requestID(ctx)
	start := p.now()
	log := p.logger.With("req_id", rid, "tenant_id", in.TenantID)

	if err := validateManual(in); err != nil {
		return nil, err
	}
	ctx = common.WithTenantID(ctx, in.TenantID)

	log.Info("pipeline.manual.start", "vendor", in.Vendor)

	inv := assembleManual(in, normalizeDate(log, in.Date), start.UTC())
	if err := p.enrich(ctx, log, inv, verbatimCategories(in.Categories)); err != nil {
		return nil, err
	}

	if _, err := p.repo.Insert(ctx, inv); err != nil {
		log.Error("pipeline.persist.failed", "error", err)
		return nil, fatal(StagePersist, err)
	}

	log.Info("pipeline.manual.ok", "record_id", inv.ID.Hex(), "elapsed_ms", time.Since(start).Milliseconds())
	return inv, nil
}

// Reingest rebuilds a record's derived fields after a manual edit and
// replaces it wholesale. The original upload timestamp and source file
// pointer survive the edit.
func (p *Processor) Reingest(ctx context.Context, tenantID string, id primitive.ObjectID, in ManualEntry) (*entity.Invoice, error) {
	rid := requestID(ctx)
	start := p.now()
	log := p.logger.With("req_id", rid, "tenant_id", tenantID, "record_id", id.Hex())

	in.TenantID = tenantID
	if err := validateManual(in); err != nil {
		return nil, err
	}
	ctx = common.WithTenantID(ctx, tenantID)

	existing, err := p.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	log.Info("pipeline.reingest.start", "vendor", in.Vendor)

	inv := assembleManual(in, normalizeDate(log, in.Date), existing.UploadedAt)
	if strings.TrimSpace(in.FileName) == "" {
		inv.FileName = existing.FileName
	}
	inv.ID = id
	inv.SourceFileURI = existing.SourceFileURI

	if err := p.enrich(ctx, log, inv, verbatimCategories(in.Categories)); err != nil {
		return nil, err
	}

	if err := p.repo.Replace(ctx, tenantID, id, inv); err != nil {
		log.Error("pipeline.persist.failed", "error", err)
		return nil, fatal(StagePersist, err)
	}

	log.Info("pipeline.reingest.ok", "elapsed_ms", time.Since(start).Milliseconds())
	return inv, nil
}

// enrich fills summary, categories, recurrence and embedding on inv.
// Summarize is fatal. Categorize and DetectRecurrence run concurrently and
// degrade to documented fallbacks; Embed degrades to no vector. A non-empty
// verbatim slice is stored as-is and skips the categorizer.
func (p *Processor) enrich(ctx context.Context, log *slog.Logger, inv *entity.Invoice, verbatim []string) error {
	var (
		wg         sync.WaitGroup
		categories []string
		catErr     error
		rec        ai.RecurrenceResult
		recErr     error
	)

	if len(verbatim) == 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			categories, catErr = p.stages.Categorize(ctx, ai.CategorizeInput{
				Vendor:    inv.Vendor,
				LineItems: inv.LineItems,
			})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec, recErr = p.stages.DetectRecurrence(ctx, ai.RecurrenceInput{
			Vendor:    inv.Vendor,
			LineItems: inv.LineItems,
		})
	}()

	summary, sumErr := p.stages.Summarize(ctx, ai.SummarizeInput{
		Vendor:    inv.Vendor,
		Date:      inv.Date,
		Total:     inv.Total,
		LineItems: inv.LineItems,
	})
	wg.Wait()

	if sumErr != nil {
		log.Error("pipeline.summarize.failed", "error", sumErr)
		return fatal(StageSummarize, sumErr)
	}
	inv.Summary = summary

	switch {
	case len(verbatim) > 0:
		inv.Categories = verbatim
	case catErr != nil:
		log.Warn("pipeline.categorize.degraded", "error", catErr)
		inv.Categories = append([]string(nil), constants.FallbackCategories...)
	default:
		inv.Categories = trimCategories(categories)
		if len(inv.Categories) == 0 {
			inv.Categories = append([]string(nil), constants.DefaultCategories...)
		}
	}

	if recErr != nil {
		log.Warn("pipeline.recurrence.degraded", "error", recErr)
		notRecurring := false
		inv.IsLikelyRecurring = &notRecurring
		inv.RecurrenceReasoning = ""
	} else {
		inv.IsLikelyRecurring = &rec.IsLikelyRecurring
		inv.RecurrenceReasoning = rec.Reasoning
	}

	vec, embErr := p.stages.Embed(ctx, inv.Summary)
	if embErr != nil {
		log.Warn("pipeline.embed.degraded", "error", embErr)
		inv.SummaryEmbedding = nil
	} else {
		inv.SummaryEmbedding = vec
	}
	return nil
}

func (p *Processor) validateFile(in IngestRequest) error {
	v := common.NewValidator().
		Field("tenant_id", in.TenantID, common.Required, common.TenantID).
		Field("file_name", in.FileName, common.Required, common.Max(maxFileNameChars))
	if err := common.ValidateAndReturnError(v); err != nil {
		return err
	}
	if len(in.Data) == 0 {
		return common.NewAppError("VALIDATION_ERROR", "file is empty", common.ErrValidation)
	}
	if p.maxBytes > 0 && int64(len(in.Data)) > p.maxBytes {
		return common.NewAppError("VALIDATION_ERROR", fmt.Sprintf("file exceeds %d bytes", p.maxBytes), common.ErrValidation)
	}
	if !constants.IsSupportedMimeType(in.MimeType) {
		return common.NewAppError("VALIDATION_ERROR", fmt.Sprintf("unsupported file type %q", in.MimeType), common.ErrValidation)
	}
	return nil
}

func validateManual(in ManualEntry) error {
	v := common.NewValidator().
		Field("tenant_id", in.TenantID, common.Required, common.TenantID).
		Field("vendor", in.Vendor, common.Required, common.Max(maxVendorChars)).
		Field("total", in.Total, common.NonNegative)
	return common.ValidateAndReturnError(v)
}

func assembleManual(in ManualEntry, date string, uploadedAt time.Time) *entity.Invoice {
	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" {
		fileName = "manual entry"
	}
	items := in.LineItems
	if items == nil {
		items = []entity.LineItem{}
	}
	return &entity.Invoice{
		TenantID:   in.TenantID,
		FileName:   fileName,
		Vendor:     strings.TrimSpace(in.Vendor),
		Date:       date,
		Total:      in.Total,
		LineItems:  items,
		UploadedAt: uploadedAt,
	}
}

// requestID prefers the transport's request id so pipeline logs line up with
// access logs. Batch callers get a fresh one.
func requestID(ctx context.Context) string {
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		return rid
	}
	return uuid.NewString()
}

// normalizeDate coerces a raw date to canonical form, logging when a
// non-blank input defeated every parse attempt and today was substituted.
func normalizeDate(log *slog.Logger, raw string) string {
	date, defaulted := dates.NormalizeValue(raw)
	if defaulted && strings.TrimSpace(raw) != "" {
		log.Warn("pipeline.date.defaulted", "raw", raw)
	}
	return date
}

// verbatimCategories resolves caller-supplied category labels. A supplied set
// is stored as-is after trimming; one that trims to nothing becomes the
// Uncategorized fallback. Nil means no labels were supplied and the
// categorizer should run.
func verbatimCategories(supplied []string) []string {
	if len(supplied) == 0 {
		return nil
	}
	trimmed := trimCategories(supplied)
	if len(trimmed) == 0 {
		return append([]string(nil), constants.FallbackCategories...)
	}
	return trimmed
}

func (p *Processor) checkTotals(log *slog.Logger, inv *entity.Invoice) {
	if len(inv.LineItems) == 0 {
		return
	}
	var sum float64
	for _, li := range inv.LineItems {
		sum += li.Amount
	}
	if math.Abs(sum-inv.Total) > totalTolerance {
		log.Info("pipeline.total.divergent", "total", inv.Total, "line_item_sum", sum)
	}
}

func trimCategories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
