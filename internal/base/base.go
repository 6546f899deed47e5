// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package base defines the foundational types, key names, and the Broker
// interface shared by the wharfq package and its internal/rdb
// implementation.
package base

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Version of the wharfq library.
const Version = "1.0.0"

// DefaultKeyPrefix is used when Config.KeyPrefix is unset.
const DefaultKeyPrefix = "wharf"

// Constants from the queue's coordination protocol (spec §3).
const (
	LockDuration         = 5000 * time.Millisecond
	LockRenewTime        = 2500 * time.Millisecond
	StalledCheckInterval = 5000 * time.Millisecond
	MaxStalledJobCount   = 1
	ClientCloseTimeout   = 5000 * time.Millisecond
	PollingInterval      = 5000 * time.Millisecond
	MaxTimeoutMs   int64 = 1<<31 - 1
)

// JobState denotes which collection currently owns a job id.
type JobState int

const (
	StateWaiting JobState = iota + 1
	StateActive
	StateDelayed
	StateCompleted
	StateFailed
	StatePaused
)

func (s JobState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateDelayed:
		return "delayed"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// KeyNamer maps symbolic collection names to fully-qualified Redis keys
// under a single queue's namespace: "<prefix>:<queue-name>:<subkey>".
type KeyNamer struct {
	Prefix string
	Name   string
}

// NewKeyNamer returns a KeyNamer for the given prefix and queue name,
// defaulting the prefix to DefaultKeyPrefix when empty.
func NewKeyNamer(prefix, name string) *KeyNamer {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &KeyNamer{Prefix: prefix, Name: name}
}

func (k *KeyNamer) base() string { return k.Prefix + ":" + k.Name + ":" }

func (k *KeyNamer) Wait() string       { return k.base() + "wait" }
func (k *KeyNamer) Paused() string     { return k.base() + "paused" }
func (k *KeyNamer) MetaPaused() string { return k.base() + "meta-paused" }
func (k *KeyNamer) Active() string     { return k.base() + "active" }
func (k *KeyNamer) Delayed() string    { return k.base() + "delayed" }
func (k *KeyNamer) Priority() string   { return k.base() + "priority" }
func (k *KeyNamer) Completed() string  { return k.base() + "completed" }
func (k *KeyNamer) Failed() string     { return k.base() + "failed" }

// Job returns the key of the hash holding job id's message and metadata.
func (k *KeyNamer) Job(id string) string { return k.base() + "job:" + id }

// Lock returns the key of job id's short-lived ownership lock.
func (k *KeyNamer) Lock(id string) string { return k.base() + id + ":lock" }

// Stalled returns the key of job id's stall counter.
func (k *KeyNamer) Stalled(id string) string { return k.base() + id + ":stalled-count" }

// RegistryKey is the set of every queue name that has ever had a job
// added under this prefix, used by the web inspector to discover queues
// without scanning the whole keyspace.
func (k *KeyNamer) RegistryKey() string { return k.Prefix + ":queues" }

// DelayedChannel is the pub/sub channel used to announce a new earliest
// delayed timestamp.
func (k *KeyNamer) DelayedChannel() string { return k.base() + "delayed" }

// PausedChannel is the pub/sub channel used to announce pause/resume.
func (k *KeyNamer) PausedChannel() string { return k.base() + "paused" }

// EventChannel is the pub/sub channel used to publish a global event of
// the given name for this queue.
func (k *KeyNamer) EventChannel(event string) string {
	return fmt.Sprintf("%s@%s", event, k.Name)
}

// JobMessage is the wire representation of a job's payload and metadata,
// written to and read from a job's hash key.
type JobMessage struct {
	ID           string          `json:"id"`
	Data         json.RawMessage `json:"data"`
	Opts         JobOptions      `json:"opts"`
	AttemptsMade int             `json:"attemptsMade"`
	Timestamp    int64           `json:"timestamp"`
	ProcessedOn  int64           `json:"processedOn,omitempty"`
	FinishedOn   int64           `json:"finishedOn,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
	ReturnValue  json.RawMessage `json:"returnValue,omitempty"`

	// Progress carries a handler-reported completion percentage; it is
	// only ever set on a "progress" event snapshot, never persisted to
	// the job hash.
	Progress int `json:"progress,omitempty"`
}

// JobOptions carries the producer-supplied options for a single job.
type JobOptions struct {
	Delay       int64  `json:"delay,omitempty"`    // ms, relative to enqueue time
	Priority    int64  `json:"priority,omitempty"` // lower runs first
	Attempts    int    `json:"attempts,omitempty"` // max attempts, 0 == 1
	TimeoutMs   int64  `json:"timeout,omitempty"`
	RetentionMs int64  `json:"retention,omitempty"`
	JobID       string `json:"jobId,omitempty"`
}

// EncodeMessage serializes msg for storage in its job hash.
func EncodeMessage(msg *JobMessage) ([]byte, error) { return sonic.Marshal(msg) }

// DecodeMessage deserializes a job hash's "msg" field back into a JobMessage.
func DecodeMessage(data []byte) (*JobMessage, error) {
	msg := new(JobMessage)
	if err := sonic.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ZEntry is a single member of a Redis sorted set query result.
type ZEntry struct {
	ID    string
	Score int64
}

// JobCounts reports the size of each collection for a queue.
type JobCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Paused    int64 `json:"paused"`
}

// Broker is the interface to the atomic Redis operations backing a Queue.
// See internal/rdb.RDB for the reference implementation.
type Broker interface {
	Ping() error
	Close() error

	// AddJob pushes a new job onto wait (or paused, or delayed/priority
	// depending on msg.Opts).
	AddJob(ctx context.Context, kn *KeyNamer, msg *JobMessage) error

	// MoveToActive performs the blocking (or, if block is false,
	// non-blocking) wait -> active transition and returns the
	// moved job, or nil if none was available.
	MoveToActive(ctx context.Context, kn *KeyNamer, block bool, timeout time.Duration) (*JobMessage, error)

	// UpdateDelaySet promotes every delayed entry with score <= at
	// (unix ms) into wait/paused, returning their ids (for "waiting"
	// event emission) and the next earliest delayed score, or ok=false
	// if delayed is now empty.
	UpdateDelaySet(ctx context.Context, kn *KeyNamer, at int64) (promoted []string, next int64, ok bool, err error)

	// MoveToCompleted and MoveToFailed only take effect if token still
	// matches the lock held on id, mirroring the lease-ownership check
	// every other terminal transition performs.
	MoveToCompleted(ctx context.Context, kn *KeyNamer, id string, result []byte, token string) error
	MoveToFailed(ctx context.Context, kn *KeyNamer, id string, reason string, token string) error

	// RetryJob moves id from active back onto wait (delayMs == 0) or
	// delayed (delayMs > 0) without touching its attemptsMade counter,
	// which MoveToActive already advanced when the job was dequeued.
	RetryJob(ctx context.Context, kn *KeyNamer, id string, delayMs int64, token string) error

	// MoveUnlockedJobsToWait scans active for jobs without a live lock,
	// requeueing or failing them per spec §4.3. A job moved to failed has
	// failedReason set to reason, same as MoveToFailed records.
	MoveUnlockedJobsToWait(ctx context.Context, kn *KeyNamer, reason string) (failedIDs, stalledIDs []string, err error)

	// PauseResumeGlobal performs the atomic wait<->paused rename and
	// publishes mode ("paused" or "resumed") on the paused channel.
	PauseResumeGlobal(ctx context.Context, kn *KeyNamer, mode string) error

	// CleanJobsInSet removes up to limit job ids from the given
	// collection ("completed" or "failed") whose own Retention option
	// has elapsed as of now (unix ms).
	CleanJobsInSet(ctx context.Context, kn *KeyNamer, collection string, now int64, limit int64) ([]string, error)

	GetJob(ctx context.Context, kn *KeyNamer, id string) (*JobMessage, error)
	RemoveJob(ctx context.Context, kn *KeyNamer, id string) error

	GetJobCounts(ctx context.Context, kn *KeyNamer) (*JobCounts, error)
	ListRange(ctx context.Context, kn *KeyNamer, collection string, start, stop int64) ([]string, error)

	// Empty truncates wait, paused, delayed and removes meta-paused.
	Empty(ctx context.Context, kn *KeyNamer) error

	// ListQueues returns every queue name that has had a job added under
	// this key prefix, per KeyNamer.RegistryKey.
	ListQueues(ctx context.Context, keyPrefix string) ([]string, error)
}
