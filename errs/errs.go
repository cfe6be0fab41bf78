package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	// KindConfiguration marks a malformed ruleset, case, rule kind, context or
	// catalogue lookup. It is fatal to construction.
	KindConfiguration Kind = "configuration"

	// KindData marks document content a rule cannot interpret (non-numeric sum
	// operand, malformed or ambiguous date, ambiguous prefix, bad query).
	// It is absorbed by ruleset evaluation and reported as a failure.
	KindData Kind = "data"

	// KindValidation marks a finding that the document does not conform.
	// It is never returned as a Go error; catalogue entries use it as their
	// underlying kind.
	KindValidation Kind = "validation"
)

// Error is the structured error type shared by rules, documents and the
// validation catalogue.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Configurationf returns a configuration error with a formatted message.
func Configurationf(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Dataf returns a data error with a formatted message.
func Dataf(format string, args ...any) error {
	return &Error{Kind: KindData, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a structured error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return IsKind(err, KindConfiguration) }

// IsData reports whether err is a data error.
func IsData(err error) bool { return IsKind(err, KindData) }
