package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lensworks/invoicelens/internal/common"
)

const (
	headerRequestID = "X-Request-Id"
	headerTenantID  = "X-Tenant-Id"

	ctxKeyRequestID = "request_id"
	ctxKeyTenantID  = "tenant_id"
)

// RequestID attaches a request ID to the context and the response headers,
// honoring one supplied by the caller.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), id))
		c.Writer.Header().Set(headerRequestID, id)
		c.Next()
	}
}

// AccessLog emits one structured log line per request.
func AccessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http.request",
			"request_id", c.GetString(ctxKeyRequestID),
			"tenant_id", c.GetString(ctxKeyTenantID),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// Recovery converts panics into a standardized 500 response.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("http.panic",
					"request_id", c.GetString(ctxKeyRequestID),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"error", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error: ErrorBody{Code: "INTERNAL_ERROR", Message: "unexpected server error"},
				})
			}
		}()
		c.Next()
	}
}

// TenantRequired extracts and validates the calling tenant. Routes behind it
// can rely on a well-formed tenant id in both the gin and request contexts.
func TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader(headerTenantID))
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Error: ErrorBody{Code: "TENANT_REQUIRED", Message: "X-Tenant-Id header is required"},
			})
			return
		}
		v := common.NewValidator()
		v.Field("tenant_id", tenant, common.Required, common.TenantID)
		if v.HasErrors() {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Error: ErrorBody{Code: "VALIDATION_ERROR", Message: v.ErrorMessage()},
			})
			return
		}
		c.Set(ctxKeyTenantID, tenant)
		c.Request = c.Request.WithContext(common.WithTenantID(c.Request.Context(), tenant))
		c.Next()
	}
}
