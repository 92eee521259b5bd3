// Package apperr defines the sentinel errors shared by the service and API
// layers. Handlers translate these into HTTP status codes in one place.
package apperr

import "errors"

var (
	// ErrValidation covers missing or malformed input.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized covers a missing, invalid, or expired credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound covers a resource that is absent, or owned by a different
	// user. The two cases are never distinguished.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers a duplicate unique field (e.g. email already taken).
	ErrConflict = errors.New("already exists")

	// ErrUpstream covers a failure of the remote completion/speech service.
	ErrUpstream = errors.New("upstream error")
)
