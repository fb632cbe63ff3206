package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lensworks/invoicelens/internal/entity"
	"github.com/lensworks/invoicelens/internal/pipeline"
	"github.com/lensworks/invoicelens/internal/repository"
)

// InvoiceService is the invoice surface the HTTP layer serves.
type InvoiceService interface {
	ListAll(ctx context.Context, tenantID string) ([]*entity.Invoice, error)
	GetByID(ctx context.Context, tenantID, idHex string) (*entity.Invoice, error)
	ListByMonth(ctx context.Context, tenantID string, year, month int) ([]*entity.Invoice, error)
	SearchSemantic(ctx context.Context, tenantID, query string, limit int) ([]repository.ScoredInvoice, error)
	FindSimilar(ctx context.Context, tenantID, idHex string) ([]repository.ScoredInvoice, error)
	SoftDelete(ctx context.Context, tenantID, idHex string) error
	CreateManual(ctx context.Context, entry pipeline.ManualEntry) (*entity.Invoice, error)
	Update(ctx context.Context, tenantID, idHex string, entry pipeline.ManualEntry) (*entity.Invoice, error)
}

// AnalyticsService is the spend rollup surface.
type AnalyticsService interface {
	SpendByCategory(ctx context.Context, tenantID string) ([]entity.CategorySpend, error)
	SpendByMonth(ctx context.Context, tenantID string) ([]entity.MonthlySpend, error)
	Overview(ctx context.Context, tenantID string) (*entity.SpendOverview, error)
}

// Exporter produces workbook downloads.
type Exporter interface {
	ExportInvoicesXLSX(ctx context.Context, tenantID, from, to string) ([]byte, error)
}

// FileIngestor runs an uploaded document through the ingestion pipeline.
type FileIngestor interface {
	IngestFile(ctx context.Context, in pipeline.IngestRequest) (*entity.Invoice, error)
}

// Pinger reports backing store liveness for the health endpoint.
type Pinger interface {
	Live(ctx context.Context) error
}

// Deps bundles everything the HTTP layer serves.
type Deps struct {
	Invoices       InvoiceService
	Analytics      AnalyticsService
	Exporter       Exporter
	Pipeline       FileIngestor
	Health         Pinger
	Logger         *slog.Logger
	MaxUploadBytes int64
}

// NewRouter constructs the gin engine with middleware and routes registered.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(RequestID(), AccessLog(d.Logger), Recovery(d.Logger))

	r.GET("/healthz", healthHandler(d.Health, d.Logger))

	api := r.Group("/api/v1")
	api.Use(TenantRequired())

	(&invoiceHandler{svc: d.Invoices, pipe: d.Pipeline, maxUpload: d.MaxUploadBytes, logger: d.Logger}).register(api)
	(&analyticsHandler{svc: d.Analytics, logger: d.Logger}).register(api)
	(&exportHandler{svc: d.Exporter, logger: d.Logger}).register(api)

	return r
}

func healthHandler(p Pinger, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			if err := p.Live(c.Request.Context()); err != nil {
				logger.Warn("http.health.degraded", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Addr normalizes a listen address, accepting a bare port.
func Addr(addr string) string {
	if addr == "" {
		return ":8080"
	}
	if strings.Contains(addr, ":") {
		return addr
	}
	return ":" + addr
}
