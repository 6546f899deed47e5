// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/log"
)

// pauseGate gates whether this Queue's dispatcher should be popping jobs.
// "Local" pause only affects this process (Queue.Stop); "global" pause
// reflects the cluster-wide wait<->paused rename, mirrored here by
// subscribing to the paused channel so every worker reacts the moment any
// one of them calls Queue.Pause, not just the one that issued it.
type pauseGate struct {
	logger *log.Logger
	kn     *base.KeyNamer
	broker base.Broker
	events *eventBus
	sub    *redis.PubSub

	local  atomic.Bool
	global atomic.Bool

	done chan struct{}
	once sync.Once
}

func newPauseGate(logger *log.Logger, broker base.Broker, kn *base.KeyNamer, events *eventBus, subClient redis.UniversalClient) *pauseGate {
	return &pauseGate{
		logger: logger,
		kn:     kn,
		broker: broker,
		events: events,
		sub:    subClient.Subscribe(context.Background(), kn.PausedChannel()),
		done:   make(chan struct{}),
	}
}

func (g *pauseGate) start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ch := g.sub.Channel()
		for {
			select {
			case <-g.done:
				g.logger.Debug("Pause gate done")
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				switch msg.Payload {
				case "paused":
					g.global.Store(true)
					g.events.emit(context.Background(), "paused", &base.JobMessage{})
				case "resumed":
					g.global.Store(false)
					g.events.emit(context.Background(), "resumed", &base.JobMessage{})
				}
			}
		}
	}()
}

func (g *pauseGate) shutdown() {
	g.once.Do(func() {
		g.logger.Debug("Pause gate shutting down...")
		g.sub.Close()
		close(g.done)
	})
}

// IsPaused reports whether the dispatcher should refrain from popping.
func (g *pauseGate) IsPaused() bool { return g.local.Load() || g.global.Load() }

// PauseLocal stops only this process's dispatcher, without affecting
// other workers sharing the queue.
func (g *pauseGate) PauseLocal() { g.local.Store(true) }

// ResumeLocal resumes this process's dispatcher.
func (g *pauseGate) ResumeLocal() { g.local.Store(false) }

// PauseGlobal renames wait to paused cluster-wide and notifies every
// worker subscribed to the paused channel, including this one.
func (g *pauseGate) PauseGlobal(ctx context.Context) error {
	return g.broker.PauseResumeGlobal(ctx, g.kn, "paused")
}

// ResumeGlobal reverses PauseGlobal.
func (g *pauseGate) ResumeGlobal(ctx context.Context) error {
	return g.broker.PauseResumeGlobal(ctx, g.kn, "resumed")
}
