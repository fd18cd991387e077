package authorization

import "errors"

// Caller-facing error taxonomy. Handlers map each sentinel to a distinct
// HTTP status so the UI can render distinct messages; the access gate is the
// one place that deliberately collapses them.
var (
	ErrNotFound        = errors.New("authorization not found")
	ErrConflict        = errors.New("an authorization request already exists for this professional and patient")
	ErrInvalidState    = errors.New("authorization state does not permit this transition")
	ErrForbidden       = errors.New("actor is not permitted to perform this operation")
	ErrInvalidArgument = errors.New("invalid argument")
)
