package workflow

import "errors"

var (
	// ErrNotFound is returned when the approval request does not exist
	ErrNotFound = errors.New("approval request not found")

	// ErrInvalidState is returned when the current status does not permit the transition
	ErrInvalidState = errors.New("invalid state")

	// ErrForbidden is returned when the actor may not perform the transition
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for malformed input such as a missing reject reason
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration is returned when no usable stage chain is configured for a request type
	ErrConfiguration = errors.New("configuration error")
)
