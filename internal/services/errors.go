package services

import (
	"context"
	"errors"
	"log"
	"net/http"

	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	apperrors "envelope/pkg/errors"
)

// Error names carried in goa ServiceError bodies.
const (
	errBadRequest   = "bad_request"
	errUnauthorized = "unauthorized"
	errForbidden    = "forbidden"
	errNotFound     = "not_found"
	errConflict     = "conflict"
	errInternal     = "internal"
)

// BadRequest creates a properly formatted bad request error
func BadRequest(format string, args ...any) *goa.ServiceError {
	return goa.PermanentError(errBadRequest, format, args...)
}

// Unauthorized creates a properly formatted unauthorized error
func Unauthorized(format string, args ...any) *goa.ServiceError {
	return goa.PermanentError(errUnauthorized, format, args...)
}

// Forbidden creates a properly formatted forbidden error
func Forbidden(format string, args ...any) *goa.ServiceError {
	return goa.PermanentError(errForbidden, format, args...)
}

// NotFound creates a properly formatted not found error
func NotFound(format string, args ...any) *goa.ServiceError {
	return goa.PermanentError(errNotFound, format, args...)
}

// toServiceError maps store and domain errors onto goa service errors.
func toServiceError(err error) *goa.ServiceError {
	var serr *goa.ServiceError
	if errors.As(err, &serr) {
		return serr
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return goa.PermanentError(errInternal, "internal server error")
	}
	switch appErr.Code {
	case apperrors.ErrCodeNotFound:
		return NotFound("%s", appErr.Message)
	case apperrors.ErrCodeValidation, apperrors.ErrCodeBadRequest:
		return BadRequest("%s", appErr.Message)
	case apperrors.ErrCodeUnauthorized:
		return Unauthorized("%s", appErr.Message)
	case apperrors.ErrCodeForbidden:
		return Forbidden("%s", appErr.Message)
	case apperrors.ErrCodeConflict:
		return goa.PermanentError(errConflict, "%s", appErr.Message)
	}
	return goa.PermanentError(errInternal, "internal server error")
}

func statusOf(serr *goa.ServiceError) int {
	switch serr.Name {
	case errBadRequest:
		return http.StatusBadRequest
	case errUnauthorized:
		return http.StatusUnauthorized
	case errForbidden:
		return http.StatusForbidden
	case errNotFound:
		return http.StatusNotFound
	case errConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v with the negotiated goa response encoder.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := goahttp.ResponseEncoder(ctx, w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

// ErrorBody is the JSON shape of a ServiceError.
type ErrorBody struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// writeError writes err as a JSON ServiceError body.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	serr := toServiceError(err)
	status := statusOf(serr)
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] Internal error: %v", err)
	}
	writeJSON(ctx, w, status, ErrorBody{Name: serr.Name, ID: serr.ID, Message: serr.Message})
}

// writePageError answers an HTML route. Internal failures are logged and hidden.
func writePageError(w http.ResponseWriter, err error) {
	serr := toServiceError(err)
	status := statusOf(serr)
	msg := serr.Message
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] Internal error: %v", err)
		msg = http.StatusText(status)
	}
	http.Error(w, msg, status)
}
