// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package timeutil decouples code that needs the current time from the
// code that produces it, so tests can drive the clock explicitly.
package timeutil

import (
	"sync"
	"time"
)

// Clock tells the current time. Use RealClock in production and
// SimulatedClock in tests.
type Clock interface {
	Now() time.Time
}

// NewRealClock returns a Clock backed by time.Now.
func NewRealClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SimulatedClock is a Clock that only advances when told to. It is safe
// for concurrent use.
type SimulatedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewSimulatedClock returns a SimulatedClock initialized to t.
func NewSimulatedClock(t time.Time) *SimulatedClock {
	return &SimulatedClock{t: t}
}

func (c *SimulatedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// SetTime sets the clock to t.
func (c *SimulatedClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// AdvanceTime moves the clock forward by d.
func (c *SimulatedClock) AdvanceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
