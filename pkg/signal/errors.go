package signal

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a signaling failure. The category decides whether the
// error is absorbed as an advisory event or escalates the session to a
// terminal state.
type ErrorKind int

const (
	// ErrValidation marks bad input rejected before any state change
	// (self-call, empty peer id, busy).
	ErrValidation ErrorKind = iota
	// ErrTransport marks a delivery problem (relay unreachable, send failed).
	ErrTransport
	// ErrDecode marks a malformed payload; the input is discarded.
	ErrDecode
	// ErrNegotiation marks the media engine rejecting a description or
	// candidate.
	ErrNegotiation
	// ErrConnectivity marks the media engine reporting a failed connection.
	ErrConnectivity
)

func (k ErrorKind) String() string {
	switch k {
	case ErrValidation:
		return "validation"
	case ErrTransport:
		return "transport"
	case ErrDecode:
		return "decode"
	case ErrNegotiation:
		return "negotiation"
	case ErrConnectivity:
		return "connectivity"
	default:
		return "unknown"
	}
}

// Error is the typed error surfaced across the signaling layer.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a validation error from a format string.
func Validationf(format string, a ...any) *Error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, a...)}
}

// Decodef builds a decode error wrapping the parse failure.
func Decodef(err error, format string, a ...any) *Error {
	return &Error{Kind: ErrDecode, Msg: fmt.Sprintf(format, a...), Err: err}
}

// Transportf builds a transport error wrapping the delivery failure.
func Transportf(err error, format string, a ...any) *Error {
	return &Error{Kind: ErrTransport, Msg: fmt.Sprintf(format, a...), Err: err}
}

// Negotiationf builds a negotiation error wrapping the engine failure.
func Negotiationf(err error, format string, a ...any) *Error {
	return &Error{Kind: ErrNegotiation, Msg: fmt.Sprintf(format, a...), Err: err}
}

// Connectivityf builds a connectivity failure.
func Connectivityf(format string, a ...any) *Error {
	return &Error{Kind: ErrConnectivity, Msg: fmt.Sprintf(format, a...)}
}

// KindOf extracts the ErrorKind from err, defaulting to ErrTransport for
// untyped errors so callers always have something to report.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrTransport
}
