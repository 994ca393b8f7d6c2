package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a classified error. Code is stable and meant for clients,
// Message is human readable.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches two classified errors by code so that wrapped copies created
// with Validation or WithMessage still compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrEventNotFound  = newError(KindNotFound, "event_not_found", "event not found")
	ErrTicketNotFound = newError(KindNotFound, "ticket_not_found", "ticket not found")

	ErrEventNotBookable  = newError(KindConflict, "event_not_bookable", "event is not open for booking")
	ErrEventNotOpen      = newError(KindConflict, "event_not_open", "event is not open for check-in")
	ErrDuplicateBooking  = newError(KindConflict, "duplicate_booking", "user already holds a ticket for this event")
	ErrCapacityExceeded  = newError(KindConflict, "capacity_exceeded", "event capacity is exhausted")
	ErrAlreadyCheckedIn  = newError(KindConflict, "already_checked_in", "ticket is already checked in")
	ErrTicketCanceled    = newError(KindConflict, "ticket_canceled", "ticket is canceled")
	ErrInvalidTransition = newError(KindConflict, "invalid_transition", "operation not allowed in current state")

	ErrInvalidCredential = newError(KindUnauthorized, "invalid_credential", "credential is invalid or expired")
	ErrUnauthorized      = newError(KindUnauthorized, "unauthorized", "user is not authorized")
	ErrForbidden         = newError(KindForbidden, "forbidden", "operation is forbidden for user")
)

// Validation builds a validation error with the given message.
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, "validation_failed", fmt.Sprintf(format, args...))
}

// ErrValidation matches every error produced by Validation.
var ErrValidation = newError(KindValidation, "validation_failed", "validation failed")

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As is a shortcut for errors.As with *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
