// Package rdperrors defines the error kinds used across the CLIPRDR and
// RDPDR channel clients, per the error handling design: PROTOCOL,
// UNSUPPORTED, TDP_MISMATCH, TDP_OP_FAILED, and IO.
package rdperrors

import "fmt"

// Kind categorizes an Error so callers can branch on it without string
// matching, the same way domain store errors are categorized by an
// ErrorCode rather than by message text.
type Kind int

const (
	// KindProtocol indicates a malformed PDU, unknown enum value, or
	// chunking violation. The session must be closed.
	KindProtocol Kind = iota

	// KindUnsupported indicates a recognized but unimplemented message.
	// The session logs and continues; an RDP reply of STATUS_NOT_SUPPORTED
	// is sent where one is owed.
	KindUnsupported

	// KindTDPMismatch indicates an unknown CompletionId, a duplicate
	// device id, or any other correlation-table miss. These indicate a
	// programming error and the session must be closed.
	KindTDPMismatch

	// KindTDPOpFailed indicates a TDP response carried a non-Nil err_code.
	// Translated to STATUS_UNSUCCESSFUL unless a more specific NTSTATUS
	// applies.
	KindTDPOpFailed

	// KindIO indicates a socket failure. It bubbles up and terminates the
	// session.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "PROTOCOL"
	case KindUnsupported:
		return "UNSUPPORTED"
	case KindTDPMismatch:
		return "TDP_MISMATCH"
	case KindTDPOpFailed:
		return "TDP_OP_FAILED"
	case KindIO:
		return "IO"
	default:
		return "UNKNOWN"
	}
}

// Error is the error type raised by every package in this module. It
// carries a Kind so the Session's handleFatal can decide whether to close the session
// without inspecting the message text.
type Error struct {
	Kind    Kind
	Message string
	Channel string // virtual channel name, when applicable
	Cause   error
}

func (e *Error) Error() string {
	if e.Channel != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Channel, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Channel, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Fatal reports whether the error kind requires closing the session, per
// the error handling design: PROTOCOL, TDP_MISMATCH, and IO are fatal;
// UNSUPPORTED and TDP_OP_FAILED are handled inline by the caller.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindProtocol, KindTDPMismatch, KindIO:
		return true
	default:
		return false
	}
}

// Protocol constructs a KindProtocol error.
func Protocol(channel, message string) *Error {
	return &Error{Kind: KindProtocol, Channel: channel, Message: message}
}

// Protocolf constructs a KindProtocol error with a formatted message.
func Protocolf(channel, format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Channel: channel, Message: fmt.Sprintf(format, args...)}
}

// Unsupported constructs a KindUnsupported error.
func Unsupported(channel, message string) *Error {
	return &Error{Kind: KindUnsupported, Channel: channel, Message: message}
}

// TDPMismatch constructs a KindTDPMismatch error.
func TDPMismatch(channel, message string) *Error {
	return &Error{Kind: KindTDPMismatch, Channel: channel, Message: message}
}

// TDPOpFailed constructs a KindTDPOpFailed error wrapping the underlying
// domain failure reported by the host file service.
func TDPOpFailed(channel, message string, cause error) *Error {
	return &Error{Kind: KindTDPOpFailed, Channel: channel, Message: message, Cause: cause}
}

// IO constructs a KindIO error wrapping a socket failure.
func IO(channel string, cause error) *Error {
	return &Error{Kind: KindIO, Channel: channel, Message: "i/o failure", Cause: cause}
}

// Is reports whether err is an *Error of the given kind. It allows
// callers to write `if rdperrors.Is(err, rdperrors.KindProtocol)` instead
// of a type assertion.
func Is(err error, kind Kind) bool {
	var e *Error
	if err == nil {
		return false
	}
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}
