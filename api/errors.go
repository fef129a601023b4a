// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-nio.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	// Capacity errors.
	ErrBufferExhausted  = errors.New("buffer pool exhausted")
	ErrSessionExhausted = errors.New("session table exhausted")
	ErrStoreExhausted   = errors.New("file store exhausted")

	// ErrPending means no bytes are available yet on a non-blocking read.
	// It is a poll signal, never a stream failure.
	ErrPending = errors.New("no data available yet")

	ErrRegionReleased = errors.New("file region released")
	ErrInvalidMark    = errors.New("invalid or expired mark")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrClosed         = errors.New("resource is closed")
	ErrNotSupported   = errors.New("operation not supported")
	ErrConnectTimeout = errors.New("connect timeout")
	ErrInboxFull      = errors.New("event loop inbox full")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeBufferExhausted
	ErrCodeSessionExhausted
	ErrCodeStoreExhausted
	ErrCodeTimeout
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel the error was built from.
func (e *Error) Unwrap() error { return e.cause }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap creates a structured error matching cause under errors.Is.
func Wrap(code ErrorCode, cause error) *Error {
	e := NewError(code, cause.Error())
	e.cause = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of a structured error anywhere in err's chain.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if err == nil {
		return ErrCodeOK
	}
	return ErrCodeInternal
}
