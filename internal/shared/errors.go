package shared

import "errors"

var (
	// lookups
	ErrNotFound = errors.New("not found")

	// session errors
	ErrInvalidSession  = errors.New("invalid or expired session")
	ErrIndexOutOfRange = errors.New("selection index out of range")

	// request lifecycle errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDataIntegrity     = errors.New("data integrity violation")
	ErrInvalidContent    = errors.New("invalid content")

	// collaborators
	ErrExternalService = errors.New("external service failure")

	ErrUnauthorized = errors.New("unauthorized")
)
