// Package corvuserr defines the error taxonomy shared by every layer of the
// runtime: a small sentinel/constructor vocabulary instead of ad hoc
// fmt.Errorf strings, so callers can compare on Code with errors.Is rather
// than parsing messages.
package corvuserr

import (
	"errors"
	"fmt"
)

// Code identifies a kind of failure at a core API boundary.
type Code string

const (
	CodeFrameworkNotRunning Code = "framework-not-running"
	CodeInvalidBundle       Code = "invalid-bundle"
	CodeInvalidRegistration Code = "invalid-registration"
	CodeInvalidReference    Code = "invalid-reference"
	CodeLoadFailed          Code = "load-failed"
	CodeMalformedFilter     Code = "malformed-filter"
	CodeInvalidProperties   Code = "invalid-properties"
	CodeDuplicateFactory    Code = "duplicate-factory"
	CodeDuplicateInstance   Code = "duplicate-instance"
	CodeFrameworkError      Code = "framework-error"
)

// Error is the concrete error type raised at every core API boundary.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]any

	// Stop is set on a CodeFrameworkError raised from an activator or a
	// component callback: it instructs the framework to abort (start) or
	// continue unwinding (stop).
	Stop bool
}

// New creates an Error with the given code, message and optional cause.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithContext attaches a diagnostic key/value pair and returns the receiver
// for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, 1)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, so callers can
// write errors.Is(err, corvuserr.ErrInvalidRegistration).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for errors.Is comparisons where no extra context is
// needed.
var (
	ErrFrameworkNotRunning   = New(CodeFrameworkNotRunning, "framework is not starting or active", nil)
	ErrInvalidRegistration   = New(CodeInvalidRegistration, "registration is no longer valid", nil)
	ErrInvalidReference      = New(CodeInvalidReference, "reference is no longer valid", nil)
	ErrInvalidBundle         = New(CodeInvalidBundle, "bundle is no longer valid", nil)
	ErrSystemBundleUninstall = New(CodeInvalidBundle, "the system bundle cannot be uninstalled", nil)
)

// InvalidBundle creates a context-carrying invalid-bundle error.
func InvalidBundle(id int64) *Error {
	return New(CodeInvalidBundle, fmt.Sprintf("bundle %d is not installed", id), nil).
		WithContext("bundle.id", id)
}

// InvalidRegistration creates a context-carrying invalid-registration error.
func InvalidRegistration(serviceID int64) *Error {
	return New(CodeInvalidRegistration, fmt.Sprintf("service %d is already unregistered", serviceID), nil).
		WithContext("service.id", serviceID)
}

// InvalidReference creates a context-carrying invalid-reference error.
func InvalidReference(serviceID int64) *Error {
	return New(CodeInvalidReference, fmt.Sprintf("service %d is not registered", serviceID), nil).
		WithContext("service.id", serviceID)
}

// LoadFailed creates a context-carrying load-failed error.
func LoadFailed(location string, cause error) *Error {
	return New(CodeLoadFailed, fmt.Sprintf("code loader refused location %q", location), cause).
		WithContext("location", location)
}

// MalformedFilter creates a context-carrying malformed-filter error.
func MalformedFilter(filter string, cause error) *Error {
	return New(CodeMalformedFilter, fmt.Sprintf("malformed filter %q", filter), cause).
		WithContext("filter", filter)
}

// InvalidProperties creates a context-carrying invalid-properties error.
func InvalidProperties(reason string) *Error {
	return New(CodeInvalidProperties, reason, nil)
}

// DuplicateFactory creates a context-carrying duplicate-factory error.
func DuplicateFactory(name string) *Error {
	return New(CodeDuplicateFactory, fmt.Sprintf("factory %q is already registered", name), nil).
		WithContext("factory", name)
}

// DuplicateInstance creates a context-carrying duplicate-instance error.
func DuplicateInstance(name string) *Error {
	return New(CodeDuplicateInstance, fmt.Sprintf("instance %q already exists", name), nil).
		WithContext("instance", name)
}

// FrameworkError creates the distinguished error an activator or component
// callback raises to instruct the framework to abort or stop.
func FrameworkError(message string, cause error, stop bool) *Error {
	e := New(CodeFrameworkError, message, cause)
	e.Stop = stop
	return e
}

// FrameworkNotRunning creates a context-free framework-not-running error.
func FrameworkNotRunning() *Error {
	return ErrFrameworkNotRunning
}

// IsStopRequest reports whether err is (or wraps) a CodeFrameworkError
// raised with Stop set, the distinguished signal an activator or component
// callback uses to tell the framework to abort the transition it is in the
// middle of rather than roll forward past the failure.
func IsStopRequest(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Stop
	}
	return false
}
