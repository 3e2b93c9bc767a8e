// Package kerr classifies the errors surfaced by the knowledge engine so
// callers can map them onto transport responses or recovery policies
// without string matching.
package kerr

import (
	"errors"
	"fmt"
)

// Kind is the error class of an engine failure.
type Kind string

const (
	// KindValidation marks invalid configuration or request input.
	KindValidation Kind = "validation"
	// KindProvider marks an embedding call that exhausted its retries.
	KindProvider Kind = "provider"
	// KindVectorStore marks a vector store operation that exhausted its retries.
	KindVectorStore Kind = "vector_store"
	// KindPermission marks a namespace the principal is not entitled to.
	KindPermission Kind = "permission"
	// KindNotFound marks a missing document or chunk reference.
	KindNotFound Kind = "not_found"
	// KindUnavailable marks a fast-failed call while a circuit breaker is open.
	KindUnavailable Kind = "unavailable"
)

// Error carries the failing operation and its kind alongside the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error from a message.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or the empty kind for unclassified errors.
// The innermost classification wins so re-wrapping does not mask the cause.
func KindOf(err error) Kind {
	var kind Kind
	for err != nil {
		var ke *Error
		if errors.As(err, &ke) {
			kind = ke.Kind
			err = ke.Err
			continue
		}
		break
	}
	return kind
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var ke *Error
		if !errors.As(err, &ke) {
			return false
		}
		if ke.Kind == kind {
			return true
		}
		err = ke.Err
	}
	return false
}
