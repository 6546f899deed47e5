// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"sync"
	"time"
)

// timerManager tracks the one-shot timer callbacks started by the delay
// controller and the lock renewer so Close can wait for running callbacks
// to settle instead of leaking goroutines past shutdown. A callback whose
// timer fires after Close does not run.
type timerManager struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func newTimerManager() *timerManager { return &timerManager{} }

// AfterFunc behaves like time.AfterFunc, but the manager keeps track of the
// invocation while it runs and refuses to schedule new ones once Close has
// been called. Stopping the returned timer leaves nothing for Close to wait on.
func (m *timerManager) AfterFunc(d time.Duration, f func()) *time.Timer {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return time.NewTimer(0)
	}
	m.mu.Unlock()
	return time.AfterFunc(d, func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.wg.Add(1)
		m.mu.Unlock()
		defer m.wg.Done()
		f()
	})
}

// Close marks the manager closed and waits for in-flight timer callbacks to
// finish. Callers must have already stopped scheduling new timers.
func (m *timerManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
}
