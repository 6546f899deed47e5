// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"sync"
	"time"

	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/lock"
	"github.com/wharfq/wharfq/internal/log"
)

// renewer keeps every in-flight job's ownership lease alive by scheduling
// a single-shot renewal base.LockRenewTime after the last successful one,
// rather than polling all active leases on a shared ticker. A job's entry
// disappears as soon as its handler finishes, so a slow renewal for one
// job never delays another's.
type renewer struct {
	logger  *log.Logger
	lockMgr *lock.Manager
	timers  *timerManager

	mu      sync.Mutex
	entries map[string]*renewalEntry
}

type renewalEntry struct {
	lease   *lock.Lease
	timer   *time.Timer
	expired bool
}

func newRenewer(logger *log.Logger, lockMgr *lock.Manager, timers *timerManager) *renewer {
	return &renewer{
		logger:  logger,
		lockMgr: lockMgr,
		timers:  timers,
		entries: make(map[string]*renewalEntry),
	}
}

// Register starts the renewal cycle for jobID's lease.
func (r *renewer) Register(jobID string, lease *lock.Lease) {
	entry := &renewalEntry{lease: lease}
	r.mu.Lock()
	r.entries[jobID] = entry
	r.mu.Unlock()
	entry.timer = r.timers.AfterFunc(base.LockRenewTime, func() { r.renew(jobID) })
}

// Unregister stops renewing jobID's lease, called once its handler
// returns. It does not release the lock itself; the terminal-move scripts
// already do that atomically with the state transition.
func (r *renewer) Unregister(jobID string) {
	r.mu.Lock()
	entry, ok := r.entries[jobID]
	delete(r.entries, jobID)
	r.mu.Unlock()
	if ok && entry.timer != nil {
		entry.timer.Stop()
	}
}

// Expired reports whether jobID's lease failed to renew, meaning another
// worker may now believe it owns this job.
func (r *renewer) Expired(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[jobID]
	return ok && entry.expired
}

func (r *renewer) renew(jobID string) {
	r.mu.Lock()
	entry, ok := r.entries[jobID]
	r.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), base.LockRenewTime)
	err := r.lockMgr.RenewLock(ctx, entry.lease, base.LockDuration)
	cancel()
	if err != nil {
		r.logger.Warnf("Failed to renew lock for job %s: %v", jobID, err)
		r.mu.Lock()
		if e, ok := r.entries[jobID]; ok {
			e.expired = true
		}
		r.mu.Unlock()
		return
	}
	r.mu.Lock()
	_, stillActive := r.entries[jobID]
	r.mu.Unlock()
	if !stillActive {
		return
	}
	entry.timer = r.timers.AfterFunc(base.LockRenewTime, func() { r.renew(jobID) })
}

// Close stops every outstanding renewal timer without releasing locks.
func (r *renewer) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*renewalEntry)
	r.mu.Unlock()
	for _, e := range entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}
