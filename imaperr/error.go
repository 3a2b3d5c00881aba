// Package imaperr defines the single error taxonomy shared by every layer of the IMAP client:
// transport, protocol, token, command, pipeline and the connection facade all return *Error
// rather than ad hoc error values, so callers can switch on Kind instead of matching strings.
package imaperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the reason an operation failed.
type Kind int

const (
	// UnknownProtocol means a port or protocol name could not be recognised.
	UnknownProtocol Kind = iota
	// CannotConnect means the TCP/TLS dial, the server greeting, or STARTTLS negotiation failed.
	CannotConnect
	// SendFailed means a transport write failed, or a literal continuation was refused.
	SendFailed
	// ReceiveFailed means a transport read failed or timed out.
	ReceiveFailed
	// CloseFailed means an error occurred while closing a layer down.
	CloseFailed
	// UnexpectedTag means a tag token was unparseable, or did not match any running command.
	UnexpectedTag
	// UnexpectedData means a tagged status word was something other than OK/NO/BAD.
	UnexpectedData
	// DisposedObject means an operation was attempted on a command after Dispose, or a layer
	// after Close.
	DisposedObject
	// CommandBusy means Reset or Queue was attempted while the command is Queued or Running.
	CommandBusy
	// CommandState means Execute or Completed was called from the wrong state.
	CommandState
	// InvalidArgument means a builder received out-of-range or ill-formed input.
	InvalidArgument
	// MustBeZero means a setter received a non-zero value where zero was required.
	MustBeZero
	// MustBeNonZero means a setter received a zero value where non-zero was required.
	MustBeNonZero
	// NotImplemented means a command class could not be constructed by name.
	NotImplemented
)

func (k Kind) String() string {
	switch k {
	case UnknownProtocol:
		return "UnknownProtocol"
	case CannotConnect:
		return "CannotConnect"
	case SendFailed:
		return "SendFailed"
	case ReceiveFailed:
		return "ReceiveFailed"
	case CloseFailed:
		return "CloseFailed"
	case UnexpectedTag:
		return "UnexpectedTag"
	case UnexpectedData:
		return "UnexpectedData"
	case DisposedObject:
		return "DisposedObject"
	case CommandBusy:
		return "CommandBusy"
	case CommandState:
		return "CommandState"
	case InvalidArgument:
		return "InvalidArgument"
	case MustBeZero:
		return "MustBeZero"
	case MustBeNonZero:
		return "MustBeNonZero"
	case NotImplemented:
		return "NotImplemented"
	default:
		return "Unknown"
	}
}

// Error is the single exception-like value every exported operation in this module returns on
// failure. It carries a Kind, a human-readable message in the lineage's
// "Type.Method: description - cause" style, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Op      string // Op names the operation that failed, e.g. "Transport.Receive".
	Message string
	cause   error // wrapped with github.com/pkg/errors.WithStack for %+v stack traces.
}

// New constructs an *Error of the given kind. If cause is non-nil it is wrapped with a stack
// trace via github.com/pkg/errors so that logging the error with "%+v" reveals where it
// originated, without changing the message text surfaced by Error().
func New(kind Kind, op, message string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Op: op, Message: message, cause: wrapped}
}

// Error implements the error interface using the lineage's "Op: message - cause" phrasing.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s - %v", msg, e.cause)
	}
	return msg
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Format supports "%+v" to print the full pkg/errors stack trace of the wrapped cause, falling
// back to the plain message for any other verb.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.cause != nil {
			fmt.Fprintf(s, "%s\n%+v", e.Error(), e.cause)
			return
		}
		fmt.Fprint(s, e.Error())
	default:
		fmt.Fprint(s, e.Error())
	}
}

// Is reports whether target is an *Error with the same Kind, so callers may write
// errors.Is(err, imaperr.New(imaperr.CommandBusy, "", "", nil)) or more idiomatically compare
// via Kind directly after an errors.As.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
