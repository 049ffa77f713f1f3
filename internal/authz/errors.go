package authz

import "errors"

// Shared error taxonomy for the access core. Every operation returns one of
// these (possibly wrapped) instead of leaking storage or HTTP concerns.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("resource conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidProfile  = errors.New("invalid identity profile")
	ErrDirectoryLookup = errors.New("directory lookup failed")
)
