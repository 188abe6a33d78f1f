// Package apperr defines the error taxonomy shared by the domain services.
//
// Services return sentinel errors built with New so callers can match them with
// errors.Is, and can classify any error with KindOf to pick a response.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

// Kind classifies a domain failure.
type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	CapacityExceeded
	Permission
	Auth
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case CapacityExceeded:
		return "capacity_exceeded"
	case Permission:
		return "permission"
	case Auth:
		return "auth"
	default:
		return "internal"
	}
}

// Error is a classified domain error. Message is safe to show to end users.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New returns a classified error. Sentinels built with New compare by identity.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// ValidationError collects per-field messages for a rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a message for field, keeping the first message per field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = message
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Err returns nil when no field failed, so callers can write `return v.Err()`.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// KindOf classifies err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return Validation
	}
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return Internal
}

// Message returns the user-facing text for err, or fallback when err is not classified.
func Message(err error, fallback string) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Message
	}
	return fallback
}
