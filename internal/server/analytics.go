package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type analyticsHandler struct {
	svc    AnalyticsService
	logger *slog.Logger
}

func (h *analyticsHandler) register(rg *gin.RouterGroup) {
	rg.GET("/analytics/categories", h.byCategory)
	rg.GET("/analytics/monthly", h.byMonth)
	rg.GET("/analytics/overview", h.overview)
}

func (h *analyticsHandler) byCategory(c *gin.Context) {
	rows, err := h.svc.SpendByCategory(c.Request.Context(), c.GetString(ctxKeyTenantID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": rows})
}

func (h *analyticsHandler) byMonth(c *gin.Context) {
	rows, err := h.svc.SpendByMonth(c.Request.Context(), c.GetString(ctxKeyTenantID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"months": rows})
}

func (h *analyticsHandler) overview(c *gin.Context) {
	ov, err := h.svc.Overview(c.Request.Context(), c.GetString(ctxKeyTenantID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}
