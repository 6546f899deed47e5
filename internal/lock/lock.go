// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package lock wraps github.com/bsm/redislock to provide the per-job
// ownership lease a worker must hold while processing a job, including the
// redlock-style quorum variant used when a queue is configured with
// multiple independent Redis deployments (Config.Redlock).
package lock

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/wharfq/wharfq/internal/errors"
)

// Manager takes, renews and releases per-job locks. With a single client it
// behaves like a plain redislock.Client; with more than one it requires a
// quorum across clients, mirroring the Redlock algorithm.
type Manager struct {
	lockers     []*redislock.Client
	driftFactor float64
	retryCount  int
	retryDelay  time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithRedlock enables the multi-instance quorum algorithm, matching
// Config.Redlock in the public package.
func WithRedlock(driftFactor float64, retryCount int, retryDelay time.Duration) Option {
	return func(m *Manager) {
		m.driftFactor = driftFactor
		m.retryCount = retryCount
		m.retryDelay = retryDelay
	}
}

// NewManager builds a Manager backed by clients. A single client is the
// common case; more than one enables redlock quorum semantics.
func NewManager(clients []redis.UniversalClient, opts ...Option) *Manager {
	m := &Manager{retryCount: 0, driftFactor: 0.01}
	for _, c := range clients {
		m.lockers = append(m.lockers, redislock.New(c))
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lease is a held lock on a single job id, carrying the token used to prove
// ownership on release or renewal.
type Lease struct {
	key    string
	ttl    time.Duration
	quorum int
	locks  []*redislock.Lock
	token  string
}

// Token returns the opaque value proving ownership of this lease; it is
// threaded through to MoveToCompleted/MoveToFailed so a stale lock can
// never retire a job another worker has already reclaimed.
func (l *Lease) Token() string { return l.token }

// TakeLock attempts to acquire the lock for key with the given ttl. It
// returns errors.ErrLockNotHeld if the quorum (or, with a single backing
// client, the only lock) could not be obtained.
func (m *Manager) TakeLock(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	op := errors.Op("lock.TakeLock")
	var retry redislock.RetryStrategy
	if m.retryCount > 0 {
		retry = redislock.LimitRetry(redislock.LinearBackoff(m.retryDelay), m.retryCount)
	} else {
		retry = redislock.NoRetry()
	}
	lease := &Lease{key: key, ttl: ttl}
	needed := quorumSize(len(m.lockers))
	for _, locker := range m.lockers {
		l, err := locker.Obtain(ctx, key, ttl, &redislock.Options{RetryStrategy: retry})
		if err != nil {
			continue
		}
		lease.locks = append(lease.locks, l)
	}
	if len(lease.locks) < needed {
		lease.releaseAll(ctx)
		return nil, errors.E(op, errors.FailedPrecondition, errors.ErrLockNotHeld)
	}
	if len(lease.locks) > 0 {
		lease.token = lease.locks[0].Token()
	}
	lease.quorum = needed
	return lease, nil
}

// RenewLock extends lease's TTL, used by the self-rescheduling renewer at
// base.LockRenewTime intervals.
func (m *Manager) RenewLock(ctx context.Context, lease *Lease, ttl time.Duration) error {
	op := errors.Op("lock.RenewLock")
	held := 0
	for _, l := range lease.locks {
		if err := l.Refresh(ctx, ttl, nil); err == nil {
			held++
		}
	}
	if held < lease.quorum {
		return errors.E(op, errors.FailedPrecondition, errors.ErrLockNotHeld)
	}
	return nil
}

// ReleaseLock releases every underlying lock in the lease. Errors releasing
// an already-expired lock are not reported; the lease is gone regardless.
func (m *Manager) ReleaseLock(ctx context.Context, lease *Lease) error {
	lease.releaseAll(ctx)
	return nil
}

func (l *Lease) releaseAll(ctx context.Context) {
	for _, lk := range l.locks {
		_ = lk.Release(ctx)
	}
}

func quorumSize(n int) int {
	if n <= 1 {
		return n
	}
	return n/2 + 1
}
