// Package repo implements the session repository on top of the document
// store's capability contract. It is the only layer that knows how sessions
// are encoded as documents; everything above works with domain types.
//
// Error semantics follow a small fixed taxonomy so handlers can map failures
// to status codes without inspecting backend details:
//   - ErrNotFound: no session with that id exists.
//   - ErrPermissionDenied: the session exists but belongs to someone else.
//   - ErrStoreUnavailable: the backend failed; the operation may be retried.
//   - ErrInvalidArgument: the caller's input is unusable; do not retry.
package repo

import "errors"

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("session not found")

// ErrPermissionDenied is returned when a session exists but is owned by a
// different user. Handlers translate it to 403, never 404, so a client can
// tell a stale id from a foreign one.
var ErrPermissionDenied = errors.New("permission denied")

// ErrStoreUnavailable wraps backend failures (connectivity, I/O). Errors
// carrying it are safe to retry.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrInvalidArgument is returned for unusable caller input, such as an empty
// owner id or a blank title.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrDuplicate indicates that an idempotency record already exists for the
// given (owner_id, session_id, key) tuple.
var ErrDuplicate = errors.New("duplicate")
