// Package api
// Author: momentics@gmail.com
//
// Generic result with an explicit pending state.

package api

import "io"

// Status tells a Result's consumer what to do next.
type Status uint8

const (
	// StatusReady carries a value.
	StatusReady Status = iota
	// StatusPending means try again after the next readiness event.
	StatusPending
	// StatusEOF means the peer finished sending.
	StatusEOF
	// StatusError carries a failure in Err.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusPending:
		return "pending"
	case StatusEOF:
		return "eof"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Result wraps any payload or error.
type Result[T any] struct {
	Value  T
	Err    error
	Status Status
}

// Ready wraps a value.
func Ready[T any](v T) Result[T] { return Result[T]{Value: v, Status: StatusReady} }

// Pending reports that no value is available yet.
func Pending[T any]() Result[T] { return Result[T]{Status: StatusPending, Err: ErrPending} }

// EOF reports end of stream.
func EOF[T any]() Result[T] { return Result[T]{Status: StatusEOF, Err: io.EOF} }

// Failed wraps err.
func Failed[T any](err error) Result[T] { return Result[T]{Status: StatusError, Err: err} }

func (r Result[T]) Ok() bool        { return r.Status == StatusReady }
func (r Result[T]) IsPending() bool { return r.Status == StatusPending }
func (r Result[T]) IsEOF() bool     { return r.Status == StatusEOF }

// Get returns the value and, unless ready, the error explaining its absence.
func (r Result[T]) Get() (T, error) {
	if r.Status == StatusReady {
		return r.Value, nil
	}
	return r.Value, r.Err
}
