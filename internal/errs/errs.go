// Package errs defines the coded errors surfaced by a room session.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies a class of session error.
type Code string

const (
	CodeTransportUnavailable Code = "TRANSPORT_UNAVAILABLE"
	CodeSignalMalformed      Code = "SIGNAL_MALFORMED"
	CodeNegotiationGlare     Code = "NEGOTIATION_GLARE"
	CodeProtocolDesync       Code = "PROTOCOL_DESYNC"
	CodeSendDropped          Code = "SEND_DROPPED"
	CodeInvalidState         Code = "INVALID_STATE"
	CodeDeliveryDropped      Code = "DELIVERY_DROPPED"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code, so the sentinels below
// match any error of their class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrTransportUnavailable = &Error{Code: CodeTransportUnavailable, Message: "transport unavailable"}
	ErrSignalMalformed      = &Error{Code: CodeSignalMalformed, Message: "malformed signaling message"}
	ErrNegotiationGlare     = &Error{Code: CodeNegotiationGlare, Message: "simultaneous offers"}
	ErrProtocolDesync       = &Error{Code: CodeProtocolDesync, Message: "transfer protocol desync"}
	ErrSendDropped          = &Error{Code: CodeSendDropped, Message: "send dropped"}
	ErrInvalidState         = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrDeliveryDropped      = &Error{Code: CodeDeliveryDropped, Message: "delivery dropped"}
)

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf returns the code of the first coded error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
