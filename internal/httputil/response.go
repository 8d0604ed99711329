// Package httputil maps application errors to admin API JSON responses.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/tenantconfig/internal/errors"
)

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

type errorMapping struct {
	target  error
	status  int
	kind    string
	message string // empty echoes err.Error()
}

// First match wins.
var errorMappings = []errorMapping{
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found", "The requested resource was not found"},
	{apperrors.ErrConflict, http.StatusConflict, "conflict", "A conflict occurred with existing data"},
	{apperrors.ErrInvalidInput, http.StatusUnprocessableEntity, "invalid_input", ""},
	{apperrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "A valid tenant is required"},
	{apperrors.ErrForbidden, http.StatusForbidden, "forbidden", "You don't have permission to access this resource"},
	{apperrors.ErrUnavailable, http.StatusServiceUnavailable, "unavailable", "A dependency is temporarily unavailable"},
}

// HandleErrorGin maps domain errors to HTTP status codes and returns a JSON response.
// Unmapped errors become 500 with no detail. A CodedError in the chain of a
// mapped error contributes its code to the response.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: "internal_error", Message: "An internal error occurred"}
	for _, m := range errorMappings {
		if !apperrors.Is(err, m.target) {
			continue
		}
		status = m.status
		resp = ErrorResponse{Error: m.kind, Message: m.message}
		if resp.Message == "" {
			resp.Message = err.Error()
		}
		var coded *apperrors.CodedError
		if apperrors.As(err, &coded) {
			resp.Code = coded.Code
		}
		break
	}

	if logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c, level, "request failed",
			slog.Int("status_code", status),
			slog.String("error_code", resp.Error),
			slog.Any("error", err),
		)
	}

	c.JSON(status, resp)
}

// HandleBadRequestGin writes a 400 Bad Request response for malformed JSON or parameters.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("bad request", slog.Any("error", err))
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
}

// HandleValidationErrorGin writes a 422 Unprocessable Entity response for validation errors.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("validation failed", slog.Any("error", err))
	}
	c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_error", Message: err.Error()})
}
