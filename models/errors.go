package models

import "errors"

var (
	ErrValidation   = errors.New("validation")
	ErrInvalidState = errors.New("invalid state")
	ErrNotFound     = errors.New("not found")
	ErrDependency   = errors.New("dependency failure")
	ErrConflict     = errors.New("conflict")
)

// ErrorCode is the machine-readable code sent alongside an API error message.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDependency):
		return "dependency"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

// ErrorFromCode is the inverse of ErrorCode, used by API clients.
func ErrorFromCode(code string) error {
	switch code {
	case "validation":
		return ErrValidation
	case "invalid_state":
		return ErrInvalidState
	case "not_found":
		return ErrNotFound
	case "dependency":
		return ErrDependency
	case "conflict":
		return ErrConflict
	default:
		return nil
	}
}
