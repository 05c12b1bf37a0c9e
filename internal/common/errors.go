// Package common contains shared sentinel errors used across idvault
// components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors.
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict is returned when a normalized email or CPF is already
	// present on another identity.
	ErrConflict = errors.New("already exists")

	// ErrValidation is returned for malformed input, e.g. a CPF that does
	// not contain exactly 11 digits after stripping.
	ErrValidation = errors.New("validation error")
)
