// Copyright 2022 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"sync"
	"time"

	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/log"
	"github.com/wharfq/wharfq/internal/timeutil"
)

// janitor is responsible for periodically deleting completed and failed
// jobs whose own Retention option has elapsed.
type janitor struct {
	logger *log.Logger
	broker base.Broker
	kn     *base.KeyNamer
	clock  timeutil.Clock
	events *eventBus

	done chan struct{}
	once sync.Once

	interval  time.Duration
	batchSize int
}

type janitorParams struct {
	logger    *log.Logger
	broker    base.Broker
	kn        *base.KeyNamer
	clock     timeutil.Clock
	events    *eventBus
	interval  time.Duration
	batchSize int
}

func newJanitor(params janitorParams) *janitor {
	return &janitor{
		logger:    params.logger,
		broker:    params.broker,
		kn:        params.kn,
		clock:     params.clock,
		events:    params.events,
		done:      make(chan struct{}),
		interval:  params.interval,
		batchSize: params.batchSize,
	}
}

func (j *janitor) shutdown() {
	j.once.Do(func() {
		j.logger.Debug("Janitor shutting down...")
		close(j.done)
	})
}

func (j *janitor) start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := time.NewTimer(j.interval)
		for {
			select {
			case <-j.done:
				j.logger.Debug("Janitor done")
				timer.Stop()
				return
			case <-timer.C:
				j.exec()
				timer.Reset(j.interval)
			}
		}
	}()
}

func (j *janitor) exec() {
	ctx, cancel := context.WithTimeout(context.Background(), base.ClientCloseTimeout)
	defer cancel()
	now := j.clock.Now().UnixMilli()
	for _, collection := range []string{"completed", "failed"} {
		removed, err := j.broker.CleanJobsInSet(ctx, j.kn, collection, now, int64(j.batchSize))
		if err != nil {
			j.logger.Errorf("Failed to clean %s jobs for queue %q: %v", collection, j.kn.Name, err)
			j.events.emit(ctx, "error", &base.JobMessage{FailedReason: err.Error()})
			continue
		}
		for _, id := range removed {
			j.events.emit(ctx, "cleaned", &base.JobMessage{ID: id})
		}
	}
}
