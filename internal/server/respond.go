package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/invoices"
	"github.com/lensworks/invoicelens/internal/pipeline"
)

// ErrorBody is the standardized error object returned on every failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, code, message := classify(err)
	logger.Warn("http.error",
		"request_id", c.GetString(ctxKeyRequestID),
		"tenant_id", c.GetString(ctxKeyTenantID),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", status,
		"code", code,
		"error", err,
	)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// classify maps service errors onto HTTP statuses. Stage failures from the
// enrichment models come back as 502 since the fault is upstream; persistence
// failures stay 500.
func classify(err error) (int, string, string) {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		msg := pipeline.UserMessage(err)
		if se.Stage == pipeline.StagePersist {
			return http.StatusInternalServerError, "PIPELINE_FAILED", msg
		}
		return http.StatusBadGateway, "PIPELINE_FAILED", msg
	}

	code := "INTERNAL_ERROR"
	var app *common.AppError
	if errors.As(err, &app) && app.Code != "" {
		code = app.Code
	}

	switch {
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrInvalidInput):
		msg := err.Error()
		if app != nil && app.Message != "" {
			msg = app.Message
		}
		return http.StatusBadRequest, code, msg
	case errors.Is(err, invoices.ErrNoEmbedding):
		return http.StatusConflict, code, "invoice has no embedding to match against"
	case errors.Is(err, common.ErrNotFound):
		msg := "not found"
		if app != nil && app.Message != "" {
			msg = app.Message
		}
		return http.StatusNotFound, code, msg
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized, code, "unauthorized"
	case errors.Is(err, common.ErrStorage):
		return http.StatusServiceUnavailable, code, "storage unavailable"
	case errors.Is(err, common.ErrDatabase):
		return http.StatusInternalServerError, code, "database error"
	}
	return http.StatusInternalServerError, code, "internal error"
}
