// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wharfq/wharfq/internal/base"
)

// Job is a single unit of work flowing through a Queue.
type Job struct {
	// ID uniquely identifies this job within its queue.
	ID string

	// Data is the job's payload, exactly as it was passed to Add.
	Data json.RawMessage

	// AttemptsMade is how many times this job's handler has been
	// invoked so far, including the current attempt.
	AttemptsMade int

	// Timestamp is when the job was added, in unix milliseconds.
	Timestamp int64

	opts base.JobOptions

	// emitProgress, when set by the dispatcher before a handler runs,
	// publishes a "progress" event snapshot for this job instance.
	// ReportProgress is a no-op on a Job obtained any other way (e.g.
	// from Queue.GetJob).
	emitProgress func(ctx context.Context, pct int)
}

// ReportProgress publishes a "progress" event carrying pct, a
// handler-reported completion percentage. It is never persisted to the
// job hash, only broadcast to listeners registered via Queue.On.
func (j *Job) ReportProgress(ctx context.Context, pct int) {
	if j.emitProgress != nil {
		j.emitProgress(ctx, pct)
	}
}

// MaxAttempts returns the total number of attempts this job is allowed,
// treating an unset Attempts as 1 (no retry).
func (j *Job) MaxAttempts() int {
	if j.opts.Attempts <= 0 {
		return 1
	}
	return j.opts.Attempts
}

// Timeout returns the handler timeout for this job, or 0 for no timeout.
func (j *Job) Timeout() time.Duration {
	return time.Duration(j.opts.TimeoutMs) * time.Millisecond
}

func jobFromMessage(msg *base.JobMessage) *Job {
	return &Job{
		ID:           msg.ID,
		Data:         msg.Data,
		AttemptsMade: msg.AttemptsMade,
		Timestamp:    msg.Timestamp,
		opts:         msg.Opts,
	}
}

// Option configures a single call to Client.Add.
type Option interface {
	apply(*base.JobOptions)
}

type optionFunc func(*base.JobOptions)

func (f optionFunc) apply(o *base.JobOptions) { f(o) }

// Delay schedules the job to become processable no sooner than d from now.
func Delay(d time.Duration) Option {
	return optionFunc(func(o *base.JobOptions) { o.Delay = d.Milliseconds() })
}

// Priority sets the job's priority; lower values run before higher ones
// among jobs waiting at the same time. Zero means unprioritized (FIFO).
func Priority(p int) Option {
	return optionFunc(func(o *base.JobOptions) { o.Priority = int64(p) })
}

// MaxRetry caps the number of attempts (including the first) the job gets
// before it is moved to failed. The default is 1.
func MaxRetry(n int) Option {
	return optionFunc(func(o *base.JobOptions) { o.Attempts = n })
}

// Timeout bounds how long a single handler invocation may run before the
// dispatcher treats it as failed.
func Timeout(d time.Duration) Option {
	return optionFunc(func(o *base.JobOptions) { o.TimeoutMs = d.Milliseconds() })
}

// Retention keeps a terminal (completed or failed) job around for at least
// d before the janitor is allowed to clean it up. Zero means clean up
// immediately once eligible.
func Retention(d time.Duration) Option {
	return optionFunc(func(o *base.JobOptions) { o.RetentionMs = d.Milliseconds() })
}

// JobID assigns an explicit, caller-chosen id instead of a generated UUID.
// Adding a second job with an id already present in the queue's job hash
// returns errors.ErrDuplicateJob.
func JobID(id string) Option {
	return optionFunc(func(o *base.JobOptions) { o.JobID = id })
}

func composeOptions(opts ...Option) base.JobOptions {
	var o base.JobOptions
	for _, opt := range opts {
		opt.apply(&o)
	}
	return o
}

func newJobID(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return uuid.NewString()
}
