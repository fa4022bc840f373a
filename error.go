package jsbridge

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/multierr"
)

// Error codes attached to host exceptions raised by the trampoline.
const (
	CodeArguments = "ERR_ARGUMENTS"
	CodeOverload  = "ERR_OVERLOAD"
	CodeDispatch  = "ERR_DISPATCH"
	CodePanic     = "ERR_PANIC"
	CodeNative    = "ERR_NATIVE"
	CodeHost      = "ERR_HOST"
)

var (
	ErrMissingArgument = errors.New("missing argument")
	ErrWrongType       = errors.New("wrong type")
	ErrDeserialization = errors.New("deserialization error")

	// ErrAlreadyTaken is returned when an exclusive payload has already been moved out.
	ErrAlreadyTaken = errors.New("jsbridge: external payload already taken")
	// ErrReleased is returned when a released handle is used again.
	ErrReleased = errors.New("jsbridge: handle already released")
	// ErrFrozen is returned when a registration is modified after it was installed.
	ErrFrozen = errors.New("jsbridge: registration is frozen")
	// ErrEnvClosed is returned when a closed Env is used.
	ErrEnvClosed = errors.New("jsbridge: env is closed")
)

// Coder is implemented by errors carrying a short error-domain code. The code is set as
// the "code" property of the host exception.
type Coder interface {
	Code() string
}

// Error represents a JavaScript error with detailed information.
type Error struct {
	Name       string // Error name (e.g., "TypeError", "ReferenceError")
	Message    string // Error message
	Cause      string // Error cause
	Stack      string // Stack trace
	ErrCode    string // Value of the "code" property, if any
	JSONString string // Serialized JSON string

	value goja.Value // thrown value, rethrown as is
}

// Error implements the error interface.
func (err *Error) Error() string {
	if err.Cause != "" {
		return fmt.Sprintf("%s: %s (cause: %s)", err.Name, err.Message, err.Cause)
	}
	return fmt.Sprintf("%s: %s", err.Name, err.Message)
}

// Code returns the host error code, or CodeHost.
func (err *Error) Code() string {
	if err.ErrCode != "" {
		return err.ErrCode
	}
	return CodeHost
}

// BindingErrorKind classifies a BindingError.
type BindingErrorKind int

const (
	MissingArgument BindingErrorKind = iota + 1
	WrongType
	Deserialization
)

func (k BindingErrorKind) String() string {
	switch k {
	case MissingArgument:
		return "MissingArgument"
	case WrongType:
		return "WrongType"
	case Deserialization:
		return "Deserialization"
	}
	return fmt.Sprintf("BindingErrorKind(%d)", int(k))
}

// BindingError reports why host arguments could not be bound to a Go type.
// Binding errors are recoverable: the trampoline tries the next overload.
type BindingError struct {
	Kind     BindingErrorKind
	Position int    // cursor position, local to the innermost cursor
	Expected string // expected type, for WrongType
	Got      Kind   // host kind found, for WrongType
	Err      error
}

func (e *BindingError) Error() string {
	var sb strings.Builder
	switch e.Kind {
	case MissingArgument:
		fmt.Fprintf(&sb, "argument %d is missing", e.Position)
	case WrongType:
		fmt.Fprintf(&sb, "wrong type, expected %s on argument %d", e.Expected, e.Position)
		if e.Got != 0 {
			fmt.Fprintf(&sb, ", got %s", e.Got)
		}
	default:
		fmt.Fprintf(&sb, "deserialization error on argument %d", e.Position)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *BindingError) Unwrap() error { return e.Err }

func (e *BindingError) Is(target error) bool {
	switch target {
	case ErrMissingArgument:
		return e.Kind == MissingArgument
	case ErrWrongType:
		return e.Kind == WrongType
	case ErrDeserialization:
		return e.Kind == Deserialization
	}
	return false
}

func (e *BindingError) Code() string { return CodeArguments }

// IsMissing reports whether err is a missing argument binding failure.
func IsMissing(err error) bool {
	return errors.Is(err, ErrMissingArgument)
}

func missingArgument(pos int) *BindingError {
	return &BindingError{Kind: MissingArgument, Position: pos}
}

func wrongType(expected string, got Kind, pos int) *BindingError {
	return &BindingError{Kind: WrongType, Expected: expected, Got: got, Position: pos}
}

func deserializationError(pos int, err error) *BindingError {
	return &BindingError{Kind: Deserialization, Position: pos, Err: err}
}

// OverloadError is raised when several candidates are registered under one name and none of them bound.
type OverloadError struct {
	Name     string
	Err      error // every per-candidate failure, combined in registration order
	detailed bool
}

func newOverloadError(name string, failures []error, detailed bool) *OverloadError {
	return &OverloadError{Name: name, Err: multierr.Combine(failures...), detailed: detailed}
}

// Failures returns the per-candidate failures in registration order.
func (e *OverloadError) Failures() []error {
	return multierr.Errors(e.Err)
}

func (e *OverloadError) Error() string {
	msg := fmt.Sprintf("no overload of %s matched the arguments", e.Name)
	if !e.detailed {
		return msg
	}
	failures := e.Failures()
	parts := make([]string, len(failures))
	for i, f := range failures {
		parts[i] = fmt.Sprintf("candidate %d: %v", i, f)
	}
	return msg + " (" + strings.Join(parts, "; ") + ")"
}

func (e *OverloadError) Unwrap() []error { return e.Failures() }

func (e *OverloadError) Code() string { return CodeOverload }

// DispatchReason classifies a DispatchError.
type DispatchReason int

const (
	NoCandidates DispatchReason = iota + 1
	RegistrationGone
	WrongHandler
	WrongClass
	WrongThis
	NoConstructor
)

// DispatchError is an internal invariant violation of the dispatch plumbing.
// It does not happen with correct registrations and is never recovered by overload resolution.
type DispatchError struct {
	Reason DispatchReason
	Name   string
}

func (e *DispatchError) Error() string {
	switch e.Reason {
	case NoCandidates:
		return fmt.Sprintf("function %s has no registered implementation", e.Name)
	case RegistrationGone:
		return fmt.Sprintf("fail to dispatch %s: registration data is gone", e.Name)
	case WrongHandler:
		return fmt.Sprintf("wrong method handler on class %s", e.Name)
	case WrongClass:
		return fmt.Sprintf("a method of the class %s has been called with the wrong class", e.Name)
	case WrongThis:
		return fmt.Sprintf("wrong 'this' value on a method call of the class %s", e.Name)
	case NoConstructor:
		return fmt.Sprintf("constructor of the class %s is not defined", e.Name)
	}
	return fmt.Sprintf("dispatch error on %s", e.Name)
}

func (e *DispatchError) Code() string { return CodeDispatch }

// PanicError is a native panic recovered at the trampoline boundary.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("native code panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func (e *PanicError) Code() string { return CodePanic }

// KindError is returned by checked downcasts.
type KindError struct {
	Expected Kind
	Got      Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Got)
}

// ExternalTypeError is returned when an External is accessed with a Go type or ownership mode
// other than the one it was created with.
type ExternalTypeError struct {
	Want     reflect.Type
	WantMode Ownership
	Got      reflect.Type
	GotMode  Ownership
}

func (e *ExternalTypeError) Error() string {
	if e.Want != e.Got {
		return fmt.Sprintf("external holds %v, not %v", e.Got, e.Want)
	}
	return fmt.Sprintf("external holds a %s %v, not a %s", e.GotMode, e.Got, e.WantMode)
}

func errorCode(err error) string {
	var coder Coder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return CodeNative
}
