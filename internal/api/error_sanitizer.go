package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/objectstore"
	"github.com/ignite/person-registry/internal/pkg/httputil"
	"github.com/ignite/person-registry/internal/pkg/logger"
	"github.com/ignite/person-registry/internal/service/importer"
)

// respondError maps service errors to HTTP responses. Anything unrecognized
// becomes a 500 whose message never carries the internal cause.
func respondError(w http.ResponseWriter, err error) {
	var storageErr *objectstore.StorageError
	var parseErr *importer.ParseError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrNameConflict):
		httputil.Conflict(w, "NAME_CONFLICT", err.Error())
	case errors.Is(err, domain.ErrLinkedEntityExists):
		httputil.Conflict(w, "LINKED_ENTITY_EXISTS", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.Forbidden(w, err.Error())
	case errors.As(err, &parseErr), errors.Is(err, domain.ErrValidation):
		httputil.BadRequest(w, err.Error())
	case errors.As(err, &storageErr):
		httputil.BadGateway(w, err)
	default:
		respondSafeError(w, http.StatusInternalServerError, err)
	}
}

// respondSafeError logs the full internal error and sends a sanitized message.
func respondSafeError(w http.ResponseWriter, code int, internalErr error) {
	if internalErr != nil {
		logger.Error("api: request failed", "status", code, "error", internalErr)
	}
	httputil.Error(w, code, safeErrorMessage(code, internalErr))
}

// safeErrorMessage maps internal error patterns to public-safe messages.
// 4xx messages describe user input and pass through unchanged.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "bad request"
	}
	if internalErr == nil {
		return "an internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())
	switch {
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "dial tcp"):
		return "service temporarily unavailable"
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "deadline exceeded"),
		strings.Contains(errStr, "context canceled"):
		return "request timed out"
	case strings.Contains(errStr, "sql"),
		strings.Contains(errStr, "pq:"),
		strings.Contains(errStr, "transaction"),
		strings.Contains(errStr, "database"):
		return "a database error occurred"
	default:
		return "an internal error occurred"
	}
}
