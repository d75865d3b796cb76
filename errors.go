// errors.go - VM error kinds and wrapping, shared by every runtime component.
//
// Grounded on runtime_ipc.go's fmt.Errorf("...: %w", err) idiom, generalised
// into a typed error so callers can match on Kind (spec.md §7) while still
// getting a human-readable message and an unwrappable cause.

package viua

import "fmt"

// ErrorKind enumerates the failure categories from spec.md §7. These are
// kinds, not type names: a thrown Exception Value carries its own type name
// (e.g. "ArithmeticError", a user class name) used by the unwinder's catcher
// lookup; ErrorKind only classifies how the runtime itself failed.
type ErrorKind int

const (
	ErrOutOfRange ErrorKind = iota
	ErrNullRead
	ErrArithmetic
	ErrType
	ErrUndefinedSymbol
	ErrLink
	ErrStackOverflow
	ErrStackCorruption
	ErrMovedParameterUnused
	ErrTimeout
	ErrUncaught
)

func (k ErrorKind) String() string {
	switch k {
	case ErrOutOfRange:
		return "OutOfRange"
	case ErrNullRead:
		return "NullRead"
	case ErrArithmetic:
		return "ArithmeticError"
	case ErrType:
		return "TypeError"
	case ErrUndefinedSymbol:
		return "UndefinedSymbol"
	case ErrLink:
		return "LinkError"
	case ErrStackOverflow:
		return "StackOverflow"
	case ErrStackCorruption:
		return "StackCorruption"
	case ErrMovedParameterUnused:
		return "MovedParameterUnused"
	case ErrTimeout:
		return "TimeoutError"
	case ErrUncaught:
		return "Uncaught"
	default:
		return "UnknownError"
	}
}

// VMError is the runtime's single error type. It is never exposed to user
// bytecode directly -- the dispatch loop turns it into an *Exception Value
// (see exceptionFromVMError in value.go) before installing it as `thrown`.
type VMError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *VMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *VMError) Unwrap() error { return e.Cause }

// NewVMError builds a VMError with a formatted message and no wrapped cause.
func NewVMError(kind ErrorKind, format string, args ...any) *VMError {
	return &VMError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapVMError builds a VMError that wraps an underlying cause (e.g. a
// Loader or FFI failure originating outside the runtime).
func WrapVMError(kind ErrorKind, cause error, format string, args ...any) *VMError {
	return &VMError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// StackCorruption is fatal and bypasses catch entirely (spec.md §7): it is
// never wrapped into an Exception Value, only ever returned directly from
// the dispatch loop to the scheduler, which halts the kernel.
func IsFatal(err error) bool {
	var vmErr *VMError
	if e, ok := err.(*VMError); ok {
		vmErr = e
	} else {
		return false
	}
	return vmErr.Kind == ErrStackCorruption
}
