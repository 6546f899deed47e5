// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/log"
)

// eventBus fans a job lifecycle event out to local, in-process handlers
// and, via PUBLISH on the queue's per-event channels, to any other process
// subscribed to the same queue. It dispatches to local handlers by reading
// back its own publishes through the subscription it holds, so in-process
// and cross-process listeners see exactly the same feed.
type eventBus struct {
	logger *log.Logger
	kn     *base.KeyNamer
	client redis.UniversalClient
	sub    *redis.PubSub

	mu       sync.RWMutex
	handlers map[string][]func(*Job)

	done chan struct{}
	once sync.Once
}

func newEventBus(logger *log.Logger, kn *base.KeyNamer, client redis.UniversalClient, subClient redis.UniversalClient) *eventBus {
	return &eventBus{
		logger:   logger,
		kn:       kn,
		client:   client,
		sub:      subClient.PSubscribe(context.Background(), "*@"+kn.Name),
		handlers: make(map[string][]func(*Job)),
		done:     make(chan struct{}),
	}
}

// On registers fn to run whenever event fires for this queue, whether
// emitted locally or by another process.
func (b *eventBus) On(event string, fn func(*Job)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], fn)
}

func (b *eventBus) start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ch := b.sub.Channel()
		for {
			select {
			case <-b.done:
				b.logger.Debug("Event bus done")
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.dispatch(msg)
			}
		}
	}()
}

func (b *eventBus) dispatch(msg *redis.Message) {
	event, name, found := strings.Cut(msg.Channel, "@")
	if !found || name != b.kn.Name {
		return
	}
	jm := new(base.JobMessage)
	if err := sonic.Unmarshal([]byte(msg.Payload), jm); err != nil {
		b.logger.Errorf("Failed to decode event payload on channel %s: %v", msg.Channel, err)
		return
	}
	job := jobFromMessage(jm)
	b.mu.RLock()
	fns := append([]func(*Job){}, b.handlers[event]...)
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(job)
	}
}

// emit publishes msg as event. The snapshot is rehydrated into a *Job by
// every subscriber, including this process's own dispatch loop.
func (b *eventBus) emit(ctx context.Context, event string, msg *base.JobMessage) {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		b.logger.Errorf("Failed to encode event payload for %s: %v", event, err)
		return
	}
	if err := b.client.Publish(ctx, b.kn.EventChannel(event), payload).Err(); err != nil {
		b.logger.Errorf("Failed to publish event %s: %v", event, err)
	}
}

func (b *eventBus) shutdown() {
	b.once.Do(func() {
		b.logger.Debug("Event bus shutting down...")
		b.sub.Close()
		close(b.done)
	})
}
