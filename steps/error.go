package steps

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/errwrap"
)

var (
	// ErrQueueCompleted is returned when pushing to or completing a queue that was completed before
	ErrQueueCompleted = errors.New("queue has already been completed")
	// ErrNotInFlow is raised when a construct is run with a context that was not created by a flow
	ErrNotInFlow = errors.New("must be run inside a flow")
	// ErrNilStep is returned when a step is not callable
	ErrNilStep = errors.New("step is not callable")
	// ErrNotAvailable is raised when a context method is used where the context does not support it
	ErrNotAvailable = errors.New("not available on this context")
)

// IsUnhandled returns true when this error contains or is an unhandled error
func IsUnhandled(err error) bool {
	return errwrap.ContainsType(err, new(UnhandledError))
}

// IsIllegalUsage returns true when this error contains or is an illegal usage error
func IsIllegalUsage(err error) bool {
	return errwrap.ContainsType(err, new(IllegalUsageError))
}

// StepErr creates a new error in a step
func StepErr(err error, construct string, index int) *StepError {
	switch e := err.(type) {
	case *StepError:
		return e
	case *backoff.PermanentError:
		return StepErr(e.Err, construct, index)
	case *PermanentError:
		return StepErr(e.Err, construct, index)
	default:
		return &StepError{Construct: construct, Index: index, Err: err}
	}
}

// StepError is the error a step signalled with End, it records where it was raised
type StepError struct {
	Construct string
	Index     int
	Err       error
}

func (s *StepError) Error() string {
	return s.Err.Error()
}

// Unwrap returns the error the step ended with
func (s *StepError) Unwrap() error {
	return s.Err
}

// WrappedErrors implements errwrap.Wrapper from https://github.com/hashicorp/errwrap
func (s *StepError) WrappedErrors() []error {
	return []error{s.Err}
}

// UnhandledError is raised when a flow's terminal step advances while an error is still set.
// It is fatal, the loop aborts with it.
type UnhandledError struct {
	Flow string
	Run  string
	Err  error
}

func (u *UnhandledError) Error() string {
	return fmt.Sprintf("unhandled error in %s (run %s): %v", u.Flow, u.Run, u.Err)
}

// Unwrap returns the error that was not handled
func (u *UnhandledError) Unwrap() error {
	return u.Err
}

// WrappedErrors implements errwrap.Wrapper from https://github.com/hashicorp/errwrap
func (u *UnhandledError) WrappedErrors() []error {
	return []error{u.Err}
}

// IllegalUsageError is a setup or misuse error, it surfaces to the caller right away
type IllegalUsageError struct {
	Op  string
	Err error
}

func (i *IllegalUsageError) Error() string {
	return fmt.Sprintf("illegal usage: %s: %v", i.Op, i.Err)
}

// Unwrap returns the cause
func (i *IllegalUsageError) Unwrap() error {
	return i.Err
}

// WrappedErrors implements errwrap.Wrapper from https://github.com/hashicorp/errwrap
func (i *IllegalUsageError) WrappedErrors() []error {
	return []error{i.Err}
}

func illegal(op string, err error) *IllegalUsageError {
	return &IllegalUsageError{Op: op, Err: err}
}

// PermanentErr returns a permanent error for use in the retry policy as circuit breaker
func PermanentErr(err error) *PermanentError {
	switch e := err.(type) {
	case *backoff.PermanentError:
		return &PermanentError{Err: e.Err}
	case *PermanentError:
		return e
	default:
		return &PermanentError{Err: err}
	}
}

// PermanentError signals to the retry policy that the operation should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the cause
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// WrappedErrors implements errwrap.Wrapper from https://github.com/hashicorp/errwrap
func (e *PermanentError) WrappedErrors() []error {
	return []error{e.Err}
}
