// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import "context"

// A Handler processes jobs popped off a queue.
//
// ProcessJob should return the job's result (marshaled with the same
// encoder used for job payloads) and a nil error on success. If it returns
// a non-nil error or panics, the job is retried if attempts remain,
// otherwise it is moved to failed.
type Handler interface {
	ProcessJob(context.Context, *Job) (interface{}, error)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as a Handler.
type HandlerFunc func(context.Context, *Job) (interface{}, error)

// ProcessJob calls fn(ctx, job).
func (fn HandlerFunc) ProcessJob(ctx context.Context, job *Job) (interface{}, error) {
	return fn(ctx, job)
}

// An ErrorHandler handles an error returned from a Handler, after wharfq
// has already decided whether the job will be retried or failed.
type ErrorHandler interface {
	HandleError(ctx context.Context, job *Job, err error)
}

// The ErrorHandlerFunc type is an adapter to allow the use of ordinary
// functions as an ErrorHandler.
type ErrorHandlerFunc func(ctx context.Context, job *Job, err error)

// HandleError calls fn(ctx, job, err).
func (fn ErrorHandlerFunc) HandleError(ctx context.Context, job *Job, err error) {
	fn(ctx, job, err)
}
