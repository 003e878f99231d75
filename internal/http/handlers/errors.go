// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, forbidden) mirror common HTTP status
//     semantics to aid interoperability.
//   - The four history-layer failure classes map 1:1 onto codes so clients can
//     branch without parsing messages: not_found, permission_denied,
//     invalid_argument, store_unavailable.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noorhq/go-history-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// History-layer taxonomy:
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeInvalidArgument  = "invalid_argument"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// serviceError maps a service-layer error onto its HTTP status, symbolic
// code, and client-facing message.
func serviceError(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "session not found"
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden, ErrCodePermissionDenied, "session belongs to another user"
	case errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest, ErrCodeInvalidArgument, err.Error()
	case errors.Is(err, services.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "session store unavailable, retry later"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, err.Error()
	}
}

// failFromService translates a service-layer error into the matching HTTP
// response. Unknown errors become a 500 with their message, which fail()
// also logs.
func failFromService(c *gin.Context, err error) {
	status, code, msg := serviceError(err)
	fail(c, status, code, msg)
}
