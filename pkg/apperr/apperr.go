package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and for callers that need
// to branch on failure class without string matching.
type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindAuthorization         Kind = "AUTHORIZATION"
	KindNotFound              Kind = "NOT_FOUND"
	KindState                 Kind = "STATE"
	KindInsufficientFunds     Kind = "INSUFFICIENT_FUNDS"
	KindInsufficientInventory Kind = "INSUFFICIENT_INVENTORY"
)

// Error is a structured kind+message error. Every domain operation returns
// one of these on failure; the operation itself must have had no effect.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func Authorization(format string, args ...interface{}) *Error {
	return New(KindAuthorization, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func State(format string, args ...interface{}) *Error {
	return New(KindState, format, args...)
}

func InsufficientFunds(format string, args ...interface{}) *Error {
	return New(KindInsufficientFunds, format, args...)
}

func InsufficientInventory(format string, args ...interface{}) *Error {
	return New(KindInsufficientInventory, format, args...)
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
