package library

import (
	"errors"
	"fmt"
)

// Sentinels. Every typed error below matches one of these through errors.Is.
var (
	ErrNotFound         = errors.New("library: not found")
	ErrValidation       = errors.New("library: validation failed")
	ErrForbidden        = errors.New("library: forbidden")
	ErrUnauthenticated  = errors.New("library: unauthenticated")
	ErrAlreadyReturned  = errors.New("library: already returned")
	ErrCapacityExceeded = errors.New("library: capacity exceeded")
	ErrConflict         = errors.New("library: conflict")
	ErrUpstream         = errors.New("library: upstream service failed")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown id reference.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// AuthorizationError reports a caller lacking the admin or owner capability.
type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

// AlreadyReturnedError is raised when closing a loan that is already closed.
type AlreadyReturnedError struct {
	LoanID int64
	Title  string
}

func (e *AlreadyReturnedError) Error() string {
	return fmt.Sprintf("loan %d (%s) has already been returned", e.LoanID, e.Title)
}

func (e *AlreadyReturnedError) Is(target error) bool { return target == ErrAlreadyReturned }

// CapacityExceededError is raised when a checkout asks for more copies of a
// title than are currently on the shelf.
type CapacityExceededError struct {
	BookID    int64
	Title     string
	Requested int
	Available int
	Total     int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("book %d (%s): requested %d, available %d of %d",
		e.BookID, e.Title, e.Requested, e.Available, e.Total)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

// ConflictError reports a request that clashes with stored state, such as a
// duplicate student number or deleting a book with loan history.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// UpstreamServiceError wraps a failure of an external metadata provider.
type UpstreamServiceError struct {
	Provider string
	Err      error
}

func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error { return e.Err }

func (e *UpstreamServiceError) Is(target error) bool { return target == ErrUpstream }

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsForbidden(err error) bool  { return errors.Is(err, ErrForbidden) }

// IsDomainRule reports errors that break a lending or catalog rule rather
// than a malformed request.
func IsDomainRule(err error) bool {
	return errors.Is(err, ErrAlreadyReturned) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrConflict)
}
