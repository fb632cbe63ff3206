package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lensworks/invoicelens/internal/ai"
	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/dates"
	"github.com/lensworks/invoicelens/internal/entity"
	"github.com/lensworks/invoicelens/internal/pipeline"
	"github.com/lensworks/invoicelens/internal/repository"
)

// ErrNoEmbedding is returned by FindSimilar when the source record carries no
// vector, typically because its embedding stage degraded at ingest time.
var ErrNoEmbedding = errors.New("invoice has no embedding")

const (
	// defaultSearchLimit applies when the caller does not ask for a page size.
	defaultSearchLimit = 10
	// maxSearchLimit bounds a single semantic search page.
	maxSearchLimit = 100
	// candidateMultiplier widens the ANN candidate pool relative to the
	// requested result count.
	candidateMultiplier = 10
	// maxSimilar caps the neighbor list returned by FindSimilar.
	maxSimilar = 5
)

// Ingestor is the slice of the ingestion pipeline the service needs for
// manual creation and edits.
type Ingestor interface {
	IngestManual(ctx context.Context, in pipeline.ManualEntry) (*entity.Invoice, error)
	Reingest(ctx context.Context, tenantID string, id primitive.ObjectID, in pipeline.ManualEntry) (*entity.Invoice, error)
}

// Service is the tenant-scoped surface over stored invoices: listing, point
// reads, month windows, semantic search, similarity, manual creation, edits
// and soft deletes.
type Service struct {
	repo     repository.InvoiceRepository
	embedder ai.Embedder
	ingestor Ingestor
	logger   *slog.Logger
}

// NewService creates the invoice service.
func NewService(repo repository.InvoiceRepository, embedder ai.Embedder, ingestor Ingestor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		embedder: embedder,
		ingestor: ingestor,
		logger:   logger,
	}
}

// ListAll returns every live invoice for the tenant, newest upload first.
func (s *Service) ListAll(ctx context.Context, tenantID string) ([]*entity.Invoice, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListByTenant(ctx, tenantID)
}

// GetByID returns a single live invoice.
func (s *Service) GetByID(ctx context.Context, tenantID, idHex string) (*entity.Invoice, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	id, err := parseID(idHex)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, tenantID, id)
}

// ListByMonth returns the tenant's invoices dated within the given calendar
// month, oldest date first.
func (s *Service) ListByMonth(ctx context.Context, tenantID string, year, month int) ([]*entity.Invoice, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if month < 1 || month > 12 {
		return nil, common.NewAppError("VALIDATION_ERROR", "month must be between 1 and 12", common.ErrValidation)
	}
	if year < 1 || year > 9999 {
		return nil, common.NewAppError("VALIDATION_ERROR", "year is out of range", common.ErrValidation)
	}

	first, last := dates.MonthBounds(year, time.Month(month))
	return s.repo.ListByDateRange(ctx, tenantID, first, last)
}

// SearchSemantic embeds the query and runs approximate nearest-neighbor
// retrieval over invoice summaries. A blank query degrades to ListAll,
// reported with zero scores.
func (s *Service) SearchSemantic(ctx context.Context, tenantID, query string, limit int) ([]repository.ScoredInvoice, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	query = strings.TrimSpace(query)
	if query == "" {
		s.logger.Debug("invoices.search.blank", "tenant_id", tenantID)
		all, err := s.repo.ListByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		out := make([]repository.ScoredInvoice, 0, len(all))
		for _, inv := range all {
			out = append(out, repository.ScoredInvoice{Invoice: inv})
		}
		return out, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("invoices.search.embed_failed", "tenant_id", tenantID, "error", err)
		return nil, common.NewAppError("EMBED_FAILED", fmt.Sprintf("embed query: %v", err), common.ErrInternal)
	}

	hits, err := s.repo.VectorSearch(ctx, tenantID, vec, limit*candidateMultiplier, limit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoices.search.ok", "tenant_id", tenantID, "limit", limit, "hits", len(hits))
	return hits, nil
}

// FindSimilar returns up to five invoices whose summaries sit closest to the
// source invoice's stored embedding. The source itself is excluded.
func (s *Service) FindSimilar(ctx context.Context, tenantID, idHex string) ([]repository.ScoredInvoice, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	id, err := parseID(idHex)
	if err != nil {
		return nil, err
	}

	source, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !source.HasEmbedding() {
		return nil, common.NewAppError("NO_EMBEDDING", "invoice has no embedding to search from", ErrNoEmbedding)
	}

	// fetch one extra because the source is usually its own nearest neighbor
	fetch := maxSimilar + 1
	hits, err := s.repo.VectorSearch(ctx, tenantID, source.SummaryEmbedding, fetch*candidateMultiplier, fetch)
	if err != nil {
		return nil, err
	}

	out := make([]repository.ScoredInvoice, 0, maxSimilar)
	for _, h := range hits {
		if h.Invoice.ID == id {
			continue
		}
		out = append(out, h)
		if len(out) == maxSimilar {
			break
		}
	}
	return out, nil
}

// SoftDelete hides an invoice from every read path. Deleting an already
// deleted invoice succeeds quietly.
func (s *Service) SoftDelete(ctx context.Context, tenantID, idHex string) error {
	if err := validateTenant(tenantID); err != nil {
		return err
	}
	id, err := parseID(idHex)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.Info("invoices.delete.ok", "tenant_id", tenantID, "record_id", id.Hex())
	return nil
}

// CreateManual records a hand-entered invoice through the pipeline.
func (s *Service) CreateManual(ctx context.Context, entry pipeline.ManualEntry) (*entity.Invoice, error) {
	return s.ingestor.IngestManual(ctx, entry)
}

// Update applies a manual edit by re-deriving the record's AI fields and
// replacing it wholesale.
func (s *Service) Update(ctx context.Context, tenantID, idHex string, entry pipeline.ManualEntry) (*entity.Invoice, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	id, err := parseID(idHex)
	if err != nil {
		return nil, err
	}
	return s.ingestor.Reingest(ctx, tenantID, id, entry)
}

func validateTenant(tenantID string) error {
	v := common.NewValidator().Field("tenant_id", tenantID, common.Required, common.TenantID)
	return common.ValidateAndReturnError(v)
}

func parseID(idHex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(idHex))
	if err != nil {
		return primitive.NilObjectID, common.NewAppError("VALIDATION_ERROR", "id must be a valid object id", common.ErrValidation)
	}
	return id, nil
}
