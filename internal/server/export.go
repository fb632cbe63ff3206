package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type exportHandler struct {
	svc    Exporter
	logger *slog.Logger
}

func (h *exportHandler) register(rg *gin.RouterGroup) {
	rg.GET("/export/invoices.xlsx", h.download)
}

// download streams a workbook of the tenant's invoices, optionally bounded
// by from/to dates (YYYY-MM-DD, inclusive).
func (h *exportHandler) download(c *gin.Context) {
	tenantID := c.GetString(ctxKeyTenantID)

	data, err := h.svc.ExportInvoicesXLSX(c.Request.Context(), tenantID, c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	name := fmt.Sprintf("invoices-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, data)
}
