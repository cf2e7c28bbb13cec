package build

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure of a generation pass. Every kind aborts the pass and
// suppresses all output.
type ErrorKind string

const (
	// KindConfiguration is malformed or conflicting Build Model input.
	KindConfiguration ErrorKind = "ConfigurationError"

	// KindUnsupportedSDK is an SDK version or commit constraint that is not met.
	KindUnsupportedSDK ErrorKind = "UnsupportedSdkError"

	// KindDependencyResolution is a malformed dependency reference.
	KindDependencyResolution ErrorKind = "DependencyResolutionError"

	// KindScriptAbort is an explicit abort or an uncaught failure in the script.
	KindScriptAbort ErrorKind = "ScriptAbortError"
)

// Error is a classified pass failure.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Op is the script-facing name of the failing call, e.g. "add_source_dir".
	Op string `json:"op,omitempty"`

	// Message is the human-readable reason.
	Message string `json:"message"`

	// Err is the underlying error, if any.
	Err error `json:"-"`

	// Details carries extra context for logs.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind, and on Op when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" && t.Op != e.Op {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is.
var (
	ErrConfiguration        = &Error{Kind: KindConfiguration}
	ErrUnsupportedSDK       = &Error{Kind: KindUnsupportedSDK}
	ErrDependencyResolution = &Error{Kind: KindDependencyResolution}
	ErrScriptAbort          = &Error{Kind: KindScriptAbort}
)

func configError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

func depError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindDependencyResolution, Op: op, Message: fmt.Sprintf(format, args...)}
}

func sdkError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnsupportedSDK, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Abort returns a ScriptAbortError carrying message verbatim.
func Abort(op, message string) *Error {
	return &Error{Kind: KindScriptAbort, Op: op, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsUnsupportedSDK reports whether err is an UnsupportedSdkError.
func IsUnsupportedSDK(err error) bool { return errors.Is(err, ErrUnsupportedSDK) }

// IsDependencyResolution reports whether err is a DependencyResolutionError.
func IsDependencyResolution(err error) bool { return errors.Is(err, ErrDependencyResolution) }

// IsScriptAbort reports whether err is a ScriptAbortError.
func IsScriptAbort(err error) bool { return errors.Is(err, ErrScriptAbort) }
