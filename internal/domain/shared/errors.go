// Package shared contains the error kinds and event names used across the
// domain packages. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound = errors.New("entity not found")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrStoreUnavailable marks failures of the database or another backing
	// store. Operations failing with it may succeed when retried.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// DomainError carries the domain and operation that failed along with the
// error kind.
type DomainError struct {
	Domain  string // "leaderboard", "contest", "stats", "command"
	Op      string // e.g. "ReplaceBoard"
	Kind    error  // one of the kinds above
	Message string
	Err     error // cause, optional
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap exposes the kind and the cause, so errors.Is matches either.
func (e *DomainError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewDomainError creates an error of the given kind.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError is NewDomainError with a cause.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

var (
	ErrTeamNotFound = NewDomainError("contest", "FindTeam", ErrNotFound, "team not found")
	ErrUserNotFound = NewDomainError("contest", "FindUser", ErrNotFound, "user not found")

	ErrInvalidBoardType = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid leaderboard type")
	ErrInvalidPeriod    = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "invalid leaderboard period")
	ErrInvalidSeason    = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "invalid season year")
)

// StoreError tags a persistence failure with ErrStoreUnavailable. Domain
// errors pass through untouched.
func StoreError(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return WrapError(domain, op, ErrStoreUnavailable, "store operation failed", err)
}

// IsNotFound reports errors of kind ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports any of the input validation kinds.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStoreUnavailable reports errors of kind ErrStoreUnavailable.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
