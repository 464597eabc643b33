package errors

import (
	"errors"
	"fmt"
)

// Class partitions runtime failures by how they are handled: transport and
// protocol errors are retried or discarded locally, negotiation and
// terminal media errors additionally surface a user-visible message.
type Class string

const (
	ClassTransport     Class = "TRANSPORT"
	ClassNegotiation   Class = "NEGOTIATION"
	ClassTimeout       Class = "TIMEOUT"
	ClassProtocol      Class = "PROTOCOL"
	ClassTerminalMedia Class = "TERMINAL_MEDIA"
)

// AppError carries a failure class and an optional user-visible message
// alongside the wrapped cause.
type AppError struct {
	Class       Class
	Message     string
	UserMessage string
	Cause       error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Class, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Visible returns the message meant for the viewer, falling back to the
// internal message when none was set.
func (e *AppError) Visible() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

func newError(class Class, message string, cause error) *AppError {
	return &AppError{Class: class, Message: message, Cause: cause}
}

// NewTransport wraps a socket or network failure. Handled locally, drives
// a fixed-delay retry.
func NewTransport(message string, cause error) *AppError {
	return newError(ClassTransport, message, cause)
}

// NewNegotiation wraps an offer/answer/ICE step failure.
func NewNegotiation(message string, cause error) *AppError {
	return newError(ClassNegotiation, message, cause)
}

// NewTimeout wraps a probe timeout or expiry.
func NewTimeout(message string, cause error) *AppError {
	return newError(ClassTimeout, message, cause)
}

// NewProtocol wraps a malformed or unrecognized message. Callers discard
// these silently after logging.
func NewProtocol(message string, cause error) *AppError {
	return newError(ClassProtocol, message, cause)
}

// NewTerminalMedia wraps an ICE failed/disconnected condition. Surfaced to
// the viewer as text, never thrown.
func NewTerminalMedia(userMessage string, cause error) *AppError {
	e := newError(ClassTerminalMedia, userMessage, cause)
	e.UserMessage = userMessage
	return e
}

// IsClass reports whether err (or anything it wraps) is an AppError of the
// given class.
func IsClass(err error, class Class) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Class == class
	}
	return false
}

// Get extracts the AppError from an error chain, or nil.
func Get(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
