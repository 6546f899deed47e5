// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/log"
)

// healthchecker periodically pings the broker and logs and emits "error"
// only on the transition from up to down (and logs the transition back),
// rather than on every tick. healthcheckFunc, if set, receives the result
// of every ping, healthy or not.
type healthchecker struct {
	logger *log.Logger
	broker base.Broker
	kn     *base.KeyNamer
	events *eventBus

	done chan struct{}
	once sync.Once

	interval time.Duration

	healthcheckFunc func(error)

	down atomic.Bool
}

type healthcheckerParams struct {
	logger          *log.Logger
	broker          base.Broker
	kn              *base.KeyNamer
	events          *eventBus
	interval        time.Duration
	healthcheckFunc func(error)
}

func newHealthChecker(params healthcheckerParams) *healthchecker {
	return &healthchecker{
		logger:          params.logger,
		broker:          params.broker,
		kn:              params.kn,
		events:          params.events,
		done:            make(chan struct{}),
		interval:        params.interval,
		healthcheckFunc: params.healthcheckFunc,
	}
}

func (hc *healthchecker) shutdown() {
	hc.once.Do(func() {
		hc.logger.Debug("Healthchecker shutting down...")
		close(hc.done)
	})
}

func (hc *healthchecker) start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := time.NewTimer(hc.interval)
		for {
			select {
			case <-hc.done:
				hc.logger.Debug("Healthchecker done")
				timer.Stop()
				return
			case <-timer.C:
				hc.exec()
				timer.Reset(hc.interval)
			}
		}
	}()
}

// exec pings the broker and passes the result to healthcheckFunc. On the
// transition into failure it logs and emits an "error" event carrying the
// queue this healthchecker is watching so On handlers can tell a
// connection-level failure apart from a job-level one.
func (hc *healthchecker) exec() {
	err := hc.broker.Ping()
	wasDown := hc.down.Swap(err != nil)
	if err != nil && !wasDown {
		hc.logger.Errorf("Broker health check failed for queue %q: %v", hc.kn.Name, err)
		ctx, cancel := context.WithTimeout(context.Background(), base.ClientCloseTimeout)
		hc.events.emit(ctx, "error", &base.JobMessage{FailedReason: err.Error()})
		cancel()
	} else if err == nil && wasDown {
		hc.logger.Infof("Broker connection recovered for queue %q", hc.kn.Name)
	}
	if hc.healthcheckFunc != nil {
		hc.healthcheckFunc(err)
	}
}
