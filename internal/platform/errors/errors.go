package errors

import (
	stderrors "errors"
	"strings"
)

// Error is the structured error type with classification metadata.
type Error struct {
	Kind     Kind              // Failure class
	Code     Code              // Machine-readable code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context (operation name, path)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates an error with a code and message; its kind derives from code.
func New(code Code, message string) *Error {
	return &Error{Kind: code.Kind(), Code: code, Message: message}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Kind: code.Kind(), Code: code, Message: message, Cause: cause}
}

// WithMetadata attaches key/value context and returns e.
func (e *Error) WithMetadata(key, value string) *Error {
	if e == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return e
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 1)
	}
	e.Metadata[key] = value
	return e
}

// E builds an error of an explicit kind with no server code.
func E(kind Kind, message string) error {
	return &Error{Kind: kind, Code: CodeUnknown, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return KindUnknown
	}
	if e.Kind == "" {
		return e.Code.Kind()
	}
	return e.Kind
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if !stderrors.As(err, &e) {
		return CodeUnknown
	}
	return e.Code
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
