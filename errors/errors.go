package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseABI      Phase = "abi"      // native engine call
	PhaseScript   Phase = "script"   // script execution
	PhaseContext  Phase = "context"  // execution context acquire/release
	PhaseCallback Phase = "callback" // native to host dispatch
	PhaseExternal Phase = "external" // external object bridging
	PhaseRelease  Phase = "release"  // deferred handle release
	PhaseFactory  Phase = "factory"  // value wrapping
	PhaseHost     Phase = "host"     // host function registration
	PhaseRuntime  Phase = "runtime"  // runtime lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindStatus            Kind = "status"
	KindException         Kind = "exception"
	KindProtocolViolation Kind = "protocol_violation"
	KindDisposed          Kind = "disposed"
	KindTypeMismatch      Kind = "type_mismatch"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindUnsupported       Kind = "unsupported"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindInvalidInput      Kind = "invalid_input"
	KindRegistration      Kind = "registration"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
	Path   []string
	Code   uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, " (status 0x%05x)", e.Code)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the property path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Code sets the native status code
func (b *Builder) Code(code uint32) *Builder {
	b.err.Code = code
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Status creates a native status error for a failed ABI call
func Status(op string, code uint32, name string) *Error {
	return &Error{
		Phase:  PhaseABI,
		Kind:   KindStatus,
		Op:     op,
		Detail: name,
		Code:   code,
	}
}

// StatusCode extracts the native status code carried by err, if any
func StatusCode(err error) (uint32, bool) {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return 0, false
		}
		if e.Kind == KindStatus {
			return e.Code, true
		}
		err = e.Cause
	}
	return 0, false
}

// Protocol creates a protocol violation. These are programming errors and
// are raised with panic rather than returned.
func Protocol(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindProtocolViolation).Detail(detail, args...).Build()
}

// Disposed creates a use-after-destroy protocol violation
func Disposed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDisposed,
		Detail: fmt.Sprintf("%s used after it was destroyed", what),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", namespace, name),
		Cause:  cause,
	}
}

// ScriptError is a pending script exception surfaced to the host. It is
// distinct from Error so callers can tell script failures from ABI failures.
type ScriptError struct {
	// Value is the exception value as thrown by script
	Value   any
	Cause   error
	Name    string
	Message string
	Stack   string
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	var b strings.Builder
	b.WriteString("[script] exception: ")
	if e.Name != "" {
		b.WriteString(e.Name)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// Unwrap returns the status error that reported the exception
func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// Is matches any *ScriptError or a script/exception *Error
func (e *ScriptError) Is(target error) bool {
	switch t := target.(type) {
	case *ScriptError:
		return true
	case *Error:
		return t.Phase == PhaseScript && t.Kind == KindException
	}
	return false
}

// ErrScriptException matches every ScriptError via errors.Is
var ErrScriptException = &Error{Phase: PhaseScript, Kind: KindException}

// IsScriptException reports whether err carries a script exception
func IsScriptException(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}

// Is forwards to the standard library so callers need only one errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As forwards to the standard library so callers need only one errors import.
func As(err error, target any) bool {
	return errors.As(err, target)
}
