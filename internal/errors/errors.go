// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package errors defines the error type used throughout wharfq's internal
// packages: an operation name, a coarse-grained code, and an optional
// wrapped cause.
package errors

import (
	"errors"
	"fmt"
)

// Is and As are re-exported so callers don't need to import the standard
// library errors package alongside this one.
var (
	Is = errors.Is
	As = errors.As
)

// New and Unwrap are re-exported for the same reason.
func New(text string) error { return errors.New(text) }

// Code classifies an error for callers that need to branch on it without
// string matching.
type Code int

const (
	Unknown Code = iota
	NotFound
	AlreadyExists
	FailedPrecondition
	Internal
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case FailedPrecondition:
		return "failed_precondition"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Op describes the operation that produced an error, e.g. "rdb.Dequeue".
type Op string

// Error is the concrete error type produced by E.
type Error struct {
	Op   Op
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error from an Op, a Code, and either an error, a string, or
// a fmt-style (format, args...) pair.
func E(op Op, code Code, args ...interface{}) error {
	e := &Error{Op: op, Code: code}
	if len(args) == 0 {
		e.Err = errors.New(code.String())
		return e
	}
	switch v := args[0].(type) {
	case error:
		e.Err = v
	case string:
		if len(args) > 1 {
			e.Err = fmt.Errorf(v, args[1:]...)
		} else {
			e.Err = errors.New(v)
		}
	default:
		e.Err = fmt.Errorf("%v", v)
	}
	return e
}

// CodeOf extracts the Code carried by err, or Unknown if err was not
// produced by E.
func CodeOf(err error) Code {
	var e *Error
	if As(err, &e) {
		return e.Code
	}
	return Unknown
}

// Sentinel errors surfaced by internal/rdb and the public API.
var (
	ErrNoProcessableJob = errors.New("wharfq: no processable job")
	ErrDuplicateJob     = errors.New("wharfq: duplicate job id")
	ErrJobNotFound      = errors.New("wharfq: job not found")
	ErrLockNotHeld      = errors.New("wharfq: lock not held by this worker")
	ErrQueueClosed      = errors.New("wharfq: queue is closed")
	ErrHandlerInstalled = errors.New("wharfq: a handler is already installed")
)
