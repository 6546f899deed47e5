// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/log"
	"github.com/wharfq/wharfq/internal/timeutil"
)

// delayController promotes delayed jobs into wait once they come due. It
// keeps at most one outstanding one-shot timer armed for the next known
// delayed timestamp, woken early by a pub/sub notification whenever a
// nearer delayed job is added, and falls back to a periodic guardian poll
// in case a notification is ever missed.
type delayController struct {
	logger *log.Logger
	broker base.Broker
	kn     *base.KeyNamer
	clock  timeutil.Clock
	timers *timerManager
	events *eventBus

	sub *redis.PubSub

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	once sync.Once
}

func newDelayController(logger *log.Logger, broker base.Broker, kn *base.KeyNamer, clock timeutil.Clock, timers *timerManager, events *eventBus, subClient redis.UniversalClient) *delayController {
	return &delayController{
		logger: logger,
		broker: broker,
		kn:     kn,
		clock:  clock,
		timers: timers,
		events: events,
		sub:    subClient.Subscribe(context.Background(), kn.DelayedChannel()),
		done:   make(chan struct{}),
	}
}

func (d *delayController) start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.update()
		ch := d.sub.Channel()
		guardian := time.NewTicker(base.PollingInterval)
		defer guardian.Stop()
		for {
			select {
			case <-d.done:
				d.logger.Debug("Delay controller done")
				return
			case <-ch:
				d.update()
			case <-guardian.C:
				d.update()
			}
		}
	}()
}

func (d *delayController) shutdown() {
	d.once.Do(func() {
		d.logger.Debug("Delay controller shutting down...")
		d.mu.Lock()
		if d.timer != nil {
			d.timer.Stop()
		}
		d.mu.Unlock()
		d.sub.Close()
		close(d.done)
	})
}

// update promotes every due job and rearms the one-shot timer for the
// next earliest delayed timestamp, if any.
func (d *delayController) update() {
	ctx, cancel := context.WithTimeout(context.Background(), base.StalledCheckInterval)
	defer cancel()
	promoted, next, ok, err := d.broker.UpdateDelaySet(ctx, d.kn, d.clock.Now().UnixMilli())
	if err != nil {
		d.logger.Errorf("Failed to update delay set for queue %q: %v", d.kn.Name, err)
		d.events.emit(ctx, "error", &base.JobMessage{FailedReason: err.Error()})
		return
	}
	for _, id := range promoted {
		d.events.emit(ctx, "waiting", &base.JobMessage{ID: id})
	}
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	wait := time.Duration(next-d.clock.Now().UnixMilli()) * time.Millisecond
	if wait < 0 {
		wait = 0
	}
	d.mu.Lock()
	d.timer = d.timers.AfterFunc(wait, d.update)
	d.mu.Unlock()
}
