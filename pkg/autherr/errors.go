// Package autherr defines the error taxonomy of the authorization core.
//
// Every resolver failure is one of five kinds. Components fail fast and let
// the kinds propagate unmodified to the transport boundary, where they map
// to HTTP status codes. No component downgrades a stricter kind into a
// looser one: an empty result set must only ever mean a legitimately empty
// authorized scope.
package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies an authorization failure.
type Kind string

const (
	// KindUnauthenticated means the credential is missing, malformed,
	// expired, or failed verification. Always the first check.
	KindUnauthenticated Kind = "unauthenticated"
	// KindValidation means the request is well-authenticated but
	// structurally incomplete for the operation. A client-input problem,
	// not a security problem.
	KindValidation Kind = "validation"
	// KindForbidden means the principal and target are known but access
	// is denied by role, scope, or store allow-list.
	KindForbidden Kind = "forbidden"
	// KindNotFound covers both "truly does not exist" and "exists but
	// revealing it would leak across a tenant boundary"; the two are
	// deliberately indistinguishable.
	KindNotFound Kind = "not_found"
	// KindConfiguration means a credential is internally inconsistent.
	// Always fails closed; never defaults to unscoped access.
	KindConfiguration Kind = "configuration"
)

// Error is an authorization failure of a specific kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes two taxonomy errors of the same kind match under errors.Is,
// so tests and transport code can compare against a bare kind error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Unauthenticated creates a KindUnauthenticated error.
func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

// Validation creates a KindValidation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// Forbidden creates a KindForbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// NotFound creates a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Configuration creates a KindConfiguration error.
func Configuration(message string) *Error { return New(KindConfiguration, message) }

// KindOf returns the taxonomy kind of err, or "" if err is not a taxonomy
// error anywhere in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsUnauthenticated reports whether err is a KindUnauthenticated error.
func IsUnauthenticated(err error) bool { return KindOf(err) == KindUnauthenticated }

// IsValidation reports whether err is a KindValidation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsForbidden reports whether err is a KindForbidden error.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConfiguration reports whether err is a KindConfiguration error.
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }
