package game

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so an API layer can map it to a status.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindInvalidState
	KindInvalidArgument
	KindBusy
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindForbidden:
		return "FORBIDDEN"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindBusy:
		return "BUSY"
	case KindUnavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Error is the structured error returned by every session operation.
type Error struct {
	Kind    Kind
	Op      string   // operation that failed, e.g. "JoinLobby"
	Message string   // human readable reason
	Reasons []string // every violated precondition, when more than one applies
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Reasons) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Reasons, ", "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "conflict"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInvalidState    = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrBusy            = &Error{Kind: KindBusy, Message: "busy"}
	ErrUnavailable     = &Error{Kind: KindUnavailable, Message: "unavailable"}
)

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, format, args...)
}

// Conflict builds a KindConflict error.
func Conflict(op, format string, args ...any) *Error {
	return newError(KindConflict, op, format, args...)
}

// Forbidden builds a KindForbidden error.
func Forbidden(op, format string, args ...any) *Error {
	return newError(KindForbidden, op, format, args...)
}

// InvalidState builds a KindInvalidState error.
func InvalidState(op, format string, args ...any) *Error {
	return newError(KindInvalidState, op, format, args...)
}

// InvalidArgument builds a KindInvalidArgument error.
func InvalidArgument(op, format string, args ...any) *Error {
	return newError(KindInvalidArgument, op, format, args...)
}

// Busy builds a KindBusy error.
func Busy(op, format string, args ...any) *Error {
	return newError(KindBusy, op, format, args...)
}

// Unavailable wraps a collaborator failure.
func Unavailable(op string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Op: op, Message: "backing service unavailable", Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Detail is the wire form of an error.
type Detail struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

// DetailOf describes err for a client. Errors outside the taxonomy are
// reported as UNKNOWN without their text.
func DetailOf(err error) Detail {
	var e *Error
	if !errors.As(err, &e) {
		return Detail{Kind: KindUnknown.String(), Message: "internal error"}
	}
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return Detail{Kind: e.Kind.String(), Message: msg, Reasons: e.Reasons}
}
