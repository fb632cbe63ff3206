package server

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lensworks/invoicelens/constants"
	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/entity"
	"github.com/lensworks/invoicelens/internal/pipeline"
	"github.com/lensworks/invoicelens/internal/repository"
)

type invoiceHandler struct {
	svc       InvoiceService
	pipe      FileIngestor
	maxUpload int64
	logger    *slog.Logger
}

func (h *invoiceHandler) register(rg *gin.RouterGroup) {
	rg.POST("/invoices", h.upload)
	rg.POST("/invoices/manual", h.createManual)
	rg.GET("/invoices", h.list)
	rg.GET("/invoices/:id", h.get)
	rg.PUT("/invoices/:id", h.update)
	rg.DELETE("/invoices/:id", h.remove)
	rg.GET("/invoices/:id/similar", h.similar)
	rg.GET("/search", h.search)
}

// scoredResult pairs an invoice with its relevance score on the wire.
type scoredResult struct {
	Invoice *entity.Invoice `json:"invoice"`
	Score   float64         `json:"score"`
}

func toScoredResults(hits []repository.ScoredInvoice) []scoredResult {
	out := make([]scoredResult, 0, len(hits))
	for _, hit := range hits {
		out = append(out, scoredResult{Invoice: hit.Invoice, Score: hit.Score})
	}
	return out
}

// manualEntryRequest is the JSON body for manual creation and updates.
type manualEntryRequest struct {
	FileName   string            `json:"file_name"`
	Vendor     string            `json:"vendor"`
	Date       string            `json:"date"`
	Total      float64           `json:"total"`
	LineItems  []entity.LineItem `json:"line_items"`
	Categories []string          `json:"categories"`
}

func (r manualEntryRequest) toEntry(tenantID string) pipeline.ManualEntry {
	return pipeline.ManualEntry{
		TenantID:   tenantID,
		FileName:   r.FileName,
		Vendor:     r.Vendor,
		Date:       r.Date,
		Total:      r.Total,
		LineItems:  r.LineItems,
		Categories: r.Categories,
	}
}

func (h *invoiceHandler) upload(c *gin.Context) {
	tenantID := c.GetString(ctxKeyTenantID)
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, h.logger, common.NewAppError("VALIDATION_ERROR", "multipart field 'file' is required", common.ErrValidation))
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		respondError(c, h.logger, common.NewAppError("VALIDATION_ERROR", "uploaded file could not be opened", common.ErrValidation))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, h.logger, common.NewAppError("VALIDATION_ERROR", "uploaded file could not be read", common.ErrValidation))
		return
	}

	// Multipart content types from arbitrary clients are unreliable; fall
	// back to the extension when the part is missing or generic.
	mimeType := fileHeader.Header.Get("Content-Type")
	if !constants.IsSupportedMimeType(mimeType) {
		mimeType = constants.MimeTypeForExt(filepath.Ext(fileHeader.Filename))
	}

	inv, err := h.pipe.IngestFile(c.Request.Context(), pipeline.IngestRequest{
		TenantID: tenantID,
		FileName: fileHeader.Filename,
		MimeType: mimeType,
		Data:     data,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *invoiceHandler) createManual(c *gin.Context) {
	tenantID := c.GetString(ctxKeyTenantID)

	var req manualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, common.NewAppError("VALIDATION_ERROR", "invalid request body", common.ErrValidation))
		return
	}

	inv, err := h.svc.CreateManual(c.Request.Context(), req.toEntry(tenantID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// list returns all invoices for the tenant, or one calendar month of them
// when both year and month query parameters are present.
func (h *invoiceHandler) list(c *gin.Context) {
	tenantID := c.GetString(ctxKeyTenantID)
	yearStr, monthStr := c.Query("year"), c.Query("month")

	if yearStr == "" && monthStr == "" {
		all, err := h.svc.ListAll(c.Request.Context(), tenantID)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"invoices": all})
		return
	}

	year, yErr := strconv.Atoi(yearStr)
	month, mErr := strconv.Atoi(monthStr)
	if yErr != nil || mErr != nil {
		respondError(c, h.logger, common.NewAppError("VALIDATION_ERROR", "year and month must both be integers", common.ErrValidation))
		return
	}

	invs, err := h.svc.ListByMonth(c.Request.Context(), tenantID, year, month)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invs})
}

func (h *invoiceHandler) get(c *gin.Context) {
	inv, err := h.svc.GetByID(c.Request.Context(), c.GetString(ctxKeyTenantID), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *invoiceHandler) update(c *gin.Context) {
	tenantID := c.GetString(ctxKeyTenantID)

	var req manualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, common.NewAppError("VALIDATION_ERROR", "invalid request body", common.ErrValidation))
		return
	}

	inv, err := h.svc.Update(c.Request.Context(), tenantID, c.Param("id"), req.toEntry(tenantID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *invoiceHandler) remove(c *gin.Context) {
	if err := h.svc.SoftDelete(c.Request.Context(), c.GetString(ctxKeyTenantID), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *invoiceHandler) similar(c *gin.Context) {
	hits, err := h.svc.FindSimilar(c.Request.Context(), c.GetString(ctxKeyTenantID), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": toScoredResults(hits)})
}

func (h *invoiceHandler) search(c *gin.Context) {
	tenantID := c.GetString(ctxKeyTenantID)
	query := c.Query("q")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, h.logger, common.NewAppError("VALIDATION_ERROR", "limit must be a non-negative integer", common.ErrValidation))
			return
		}
		limit = n
	}

	hits, err := h.svc.SearchSemantic(c.Request.Context(), tenantID, query, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": toScoredResults(hits)})
}
