// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"sync"
	"time"

	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/log"
)

// reaper periodically scans active for jobs whose ownership lock has
// expired without being renewed, almost always meaning the worker that
// held them crashed or was killed. Such a job is pushed back onto wait
// for another attempt, or moved to failed once it has stalled more than
// base.MaxStalledJobCount times.
type reaper struct {
	logger *log.Logger
	broker base.Broker
	kn     *base.KeyNamer
	events *eventBus

	done chan struct{}
	once sync.Once
}

func newReaper(logger *log.Logger, broker base.Broker, kn *base.KeyNamer, events *eventBus) *reaper {
	return &reaper{logger: logger, broker: broker, kn: kn, events: events, done: make(chan struct{})}
}

func (r *reaper) start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := time.NewTimer(base.StalledCheckInterval)
		defer timer.Stop()
		for {
			select {
			case <-r.done:
				r.logger.Debug("Reaper done")
				return
			case <-timer.C:
				r.exec()
				timer.Reset(base.StalledCheckInterval)
			}
		}
	}()
}

func (r *reaper) shutdown() {
	r.once.Do(func() {
		r.logger.Debug("Reaper shutting down...")
		close(r.done)
	})
}

// stalledFailureReason is recorded as failedReason on a job that exceeds
// base.MaxStalledJobCount, matching spec §4.3's mandated message.
const stalledFailureReason = "job stalled more than allowable limit"

func (r *reaper) exec() {
	ctx, cancel := context.WithTimeout(context.Background(), base.StalledCheckInterval)
	defer cancel()
	failedIDs, stalledIDs, err := r.broker.MoveUnlockedJobsToWait(ctx, r.kn, stalledFailureReason)
	if err != nil {
		r.logger.Errorf("Failed to sweep stalled jobs for queue %q: %v", r.kn.Name, err)
		r.events.emit(ctx, "error", &base.JobMessage{FailedReason: err.Error()})
		return
	}
	for _, id := range stalledIDs {
		r.logger.Warnf("Job %s stalled and was pushed back onto wait", id)
		r.events.emit(ctx, "stalled", &base.JobMessage{ID: id})
	}
	for _, id := range failedIDs {
		r.logger.Errorf("Job %s exceeded max stalled count and was moved to failed", id)
		r.events.emit(ctx, "failed", &base.JobMessage{ID: id, FailedReason: stalledFailureReason})
	}
}
