// Package handler adapts the gateway services to HTTP.
//
// Handlers decode and shape-check the request, read the caller from the
// request context, call one service method and translate the result. All
// domain decisions (sanitization, authorization) happen in the services.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/metrics"
)

// ErrorResponse is the body of every error answer.
//
//	{"error": "validation_error", "message": "Title is required", "field": "title"}
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sets the header and status before encoding; nothing can be
// changed once the body starts.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// statusFor maps an apperror kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case apperror.KindAuthentication:
		return http.StatusUnauthorized
	case apperror.KindAuthorization:
		return http.StatusForbidden
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindSelfDemotion, apperror.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates err into an ErrorResponse. Internal errors are
// logged with the request id and answered with a generic message so store
// details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperror.Kind(err)
	metrics.GatewayErrorsTotal.WithLabelValues(kind).Inc()

	var appErr *apperror.AppError
	if kind == apperror.KindInternal || !errors.As(err, &appErr) {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   apperror.KindInternal,
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, statusFor(kind), ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}
