package keel

import (
	"fmt"
	"reflect"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeInvalidRequest indicates a request shape that can never be resolved
	// (nil type, array type, or a factory request without a produced type).
	CodeInvalidRequest = "INVALID_REQUEST"

	// CodeNotFound indicates no candidate satisfied the request at any level.
	CodeNotFound = "NOT_FOUND"

	// CodeAmbiguous indicates more than one owned candidate satisfied the
	// request at a single registry level.
	CodeAmbiguous = "AMBIGUOUS"

	// CodeMissingDependency indicates a factory or decorator parameter could
	// not itself be resolved.
	CodeMissingDependency = "MISSING_DEPENDENCY"

	// CodeCycle indicates a descriptor was revisited while still resolving.
	CodeCycle = "DEPENDENCY_CYCLE"

	// CodeCreationFailed indicates a factory invocation returned an error or
	// produced a nil value.
	CodeCreationFailed = "CREATION_FAILED"

	// CodeDecoratorWithoutParent indicates a decorator method was bound on a
	// registry that has no parents. Raised at bind time, never at lookup time.
	CodeDecoratorWithoutParent = "DECORATOR_WITHOUT_PARENT"

	// CodeClosedRegistry indicates an operation on a closed registry.
	CodeClosedRegistry = "CLOSED_REGISTRY"

	// CodeInvalidProvider indicates a provider object could not be bound.
	CodeInvalidProvider = "INVALID_PROVIDER"

	// CodeInvalidRegistration indicates a bad explicit registration.
	CodeInvalidRegistration = "INVALID_REGISTRATION"

	// CodeTypeMismatch indicates a resolved value did not have the type the
	// typed accessor expected.
	CodeTypeMismatch = "TYPE_MISMATCH"
)

// Error is the error type for every registry failure. Errors carry a stable
// code for classification, a message naming the registry, provider or method
// involved, and an optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an Error with the same code. This makes the
// sentinel errors below usable with errors.Is for classification.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && t.Code == e.Code
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// ErrInvalidRequest matches any request-shape rejection.
var ErrInvalidRequest = &Error{Code: CodeInvalidRequest, Message: "invalid request"}

// ErrNotFound matches any "no candidate found" failure. Parent delegation
// swallows exactly this class and tries the next parent.
var ErrNotFound = &Error{Code: CodeNotFound, Message: "service not found"}

// ErrAmbiguous matches any "more than one candidate" failure.
var ErrAmbiguous = &Error{Code: CodeAmbiguous, Message: "multiple services found"}

// ErrMissingDependency matches any unresolvable-parameter failure.
var ErrMissingDependency = &Error{Code: CodeMissingDependency, Message: "missing dependency"}

// ErrCycle matches any dependency-cycle failure.
var ErrCycle = &Error{Code: CodeCycle, Message: "dependency cycle"}

// ErrCreationFailed matches any failed or nil-producing factory invocation.
var ErrCreationFailed = &Error{Code: CodeCreationFailed, Message: "service creation failed"}

// ErrDecoratorWithoutParent matches the bind-time rejection of a decorator
// method on a parentless registry.
var ErrDecoratorWithoutParent = &Error{
	Code:    CodeDecoratorWithoutParent,
	Message: "decorator requires a parent registry",
}

// ErrClosedRegistry matches any operation attempted after Close.
var ErrClosedRegistry = &Error{Code: CodeClosedRegistry, Message: "registry closed"}

// ErrInvalidProvider matches any provider object that cannot be bound.
var ErrInvalidProvider = &Error{Code: CodeInvalidProvider, Message: "invalid provider"}

// ErrInvalidRegistration matches any bad explicit registration.
var ErrInvalidRegistration = &Error{Code: CodeInvalidRegistration, Message: "invalid registration"}

// ErrTypeMismatch matches any typed-accessor assertion failure.
var ErrTypeMismatch = &Error{Code: CodeTypeMismatch, Message: "type mismatch"}

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

func errInvalidRequest(reason string) *Error {
	return newError(CodeInvalidRequest, "invalid service request: %s", reason)
}

func errNotFound(registry string, t reflect.Type) *Error {
	return newError(CodeNotFound, "no service of type %s available in %s", typeName(t), registry)
}

func errFactoryNotFound(registry string, t reflect.Type) *Error {
	return newError(CodeNotFound, "no factory for type %s available in %s", typeName(t), registry)
}

func errAmbiguous(registry string, t reflect.Type, candidates []string) *Error {
	return newError(CodeAmbiguous,
		"multiple services of type %s available in %s: %v", typeName(t), registry, candidates)
}

func errMissingDependency(requested reflect.Type, site string, param reflect.Type) *Error {
	return newError(CodeMissingDependency,
		"cannot create service of type %s: %s requires a %s, which is not available",
		typeName(requested), site, typeName(param))
}

func errCycle(site string) *Error {
	return newError(CodeCycle, "cycle detected while creating service via %s", site)
}

func errCreationFailed(site string, cause error) *Error {
	return &Error{
		Code:    CodeCreationFailed,
		Message: fmt.Sprintf("failed to create service via %s", site),
		Cause:   cause,
	}
}

func errCreationReturnedNil(site string) *Error {
	return newError(CodeCreationFailed, "%s returned nil", site)
}

func errDecoratorWithoutParent(site string) *Error {
	return newError(CodeDecoratorWithoutParent,
		"cannot bind decorator %s: registry has no parent to decorate", site)
}

func errClosed(registry string) *Error {
	return newError(CodeClosedRegistry, "%s has been closed", registry)
}

func errInvalidProvider(format string, args ...any) *Error {
	return newError(CodeInvalidProvider, format, args...)
}

func errInvalidRegistration(format string, args ...any) *Error {
	return newError(CodeInvalidRegistration, format, args...)
}

// typeName renders a reflect.Type for error messages, tolerating nil.
func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	return t.String()
}
