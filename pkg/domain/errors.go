package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so transport layers can map them to
// status codes without string matching.
type ErrorKind string

// Domain error kinds.
const (
	// ErrKindNotFound indicates a referenced record does not exist.
	ErrKindNotFound ErrorKind = "not_found"
	// ErrKindInvalidQuantity indicates a quantity outside the permitted range.
	ErrKindInvalidQuantity ErrorKind = "invalid_quantity"
	// ErrKindSameSystem indicates a transplant targeting the lot's current sub-system.
	ErrKindSameSystem ErrorKind = "same_system"
	// ErrKindExhausted indicates an identifier space has no free slot left.
	ErrKindExhausted ErrorKind = "exhausted"
	// ErrKindInvalidInput indicates a malformed or incomplete request.
	ErrKindInvalidInput ErrorKind = "invalid_input"
)

// Error is the canonical domain error. Ref identifies the offending record or
// identifier when one exists.
type Error struct {
	Kind    ErrorKind
	Entity  EntityType
	Ref     string
	Message string
}

func (e *Error) Error() string {
	if e.Ref != "" && e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.Ref, e.Message)
	}
	return e.Message
}

// NewNotFound builds a not-found error for the given entity and reference.
func NewNotFound(entity EntityType, ref string) *Error {
	return &Error{Kind: ErrKindNotFound, Entity: entity, Ref: ref, Message: "not found"}
}

// NewInvalidQuantity builds an invalid-quantity error.
func NewInvalidQuantity(format string, args ...any) *Error {
	return &Error{Kind: ErrKindInvalidQuantity, Message: fmt.Sprintf(format, args...)}
}

// NewSameSystem builds an error for a transplant into the current sub-system.
func NewSameSystem(subsystem Subsystem) *Error {
	return &Error{Kind: ErrKindSameSystem, Message: fmt.Sprintf("lot is already in %s", subsystem)}
}

// NewExhausted builds an error for an exhausted identifier space.
func NewExhausted(ref, format string, args ...any) *Error {
	return &Error{Kind: ErrKindExhausted, Ref: ref, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidInput builds an invalid-input error.
func NewInvalidInput(format string, args ...any) *Error {
	return &Error{Kind: ErrKindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the domain error kind of err, or "" when err is not a
// domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
