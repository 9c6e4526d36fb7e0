// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values wrapping one of the sentinel errors below.
// Callers branch on the sentinel with errors.Is (or on Kind for a stable
// string), never on the message text.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrForbidden      = errors.New("forbidden")
	ErrAuthentication = errors.New("not authenticated")
	ErrSelfDemotion   = errors.New("self demotion")
)

// Kind strings surfaced to API clients.
const (
	KindAuthentication = "authentication_error"
	KindAuthorization  = "authorization_error"
	KindValidation     = "validation_error"
	KindNotFound       = "not_found"
	KindSelfDemotion   = "self_demotion"
	KindConflict       = "conflict"
	KindInternal       = "internal_error"
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller is known but lacks
// permission. HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated reports that no caller identity could be resolved.
// HTTP handlers map this to 401 Unauthorized.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrAuthentication,
		Message: "not authenticated: please sign in",
	}
}

// SelfDemotion reports an admin trying to remove their own admin role.
func SelfDemotion() *AppError {
	return &AppError{
		Err:     ErrSelfDemotion,
		Message: "you cannot demote yourself from the admin role",
	}
}

// Kind classifies err into one of the Kind* strings. Errors outside the
// taxonomy are KindInternal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSelfDemotion):
		return KindSelfDemotion
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
