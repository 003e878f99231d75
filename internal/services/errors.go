// Package services implements the business logic for conversation history:
// session lifecycle, cached listing with composed filters, bounded search,
// and live subscriptions. This file centralizes the service-level error
// values handlers translate into HTTP status codes.
//
// The values alias the repository taxonomy so errors.Is works across layers
// no matter which one produced the failure.
package services

import "github.com/noorhq/go-history-backend/internal/repo"

var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = repo.ErrNotFound

	// ErrPermissionDenied indicates the session belongs to another user.
	ErrPermissionDenied = repo.ErrPermissionDenied

	// ErrStoreUnavailable indicates a retryable backend failure.
	ErrStoreUnavailable = repo.ErrStoreUnavailable

	// ErrInvalidArgument indicates unusable caller input (bad cursor, empty
	// batch, blank content).
	ErrInvalidArgument = repo.ErrInvalidArgument
)
