package wharfq

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerManagerFiresCallback(t *testing.T) {
	m := newTimerManager()
	var fired atomic.Bool
	done := make(chan struct{})
	m.AfterFunc(10*time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for AfterFunc callback")
	}
	if !fired.Load() {
		t.Error("expected callback to have fired")
	}
}

func TestTimerManagerCloseWaitsForInFlightCallback(t *testing.T) {
	m := newTimerManager()
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	m.AfterFunc(0, func() {
		close(started)
		<-release
		finished.Store(true)
	})
	<-started
	closeDone := make(chan struct{})
	go func() {
		m.Close()
		close(closeDone)
	}()
	select {
	case <-closeDone:
		t.Fatal("Close returned before the in-flight callback finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-closeDone:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the callback finished")
	}
	if !finished.Load() {
		t.Error("expected the in-flight callback to have finished")
	}
}

func TestTimerManagerRefusesAfterClose(t *testing.T) {
	m := newTimerManager()
	m.Close()
	var fired atomic.Bool
	m.AfterFunc(0, func() { fired.Store(true) })
	time.Sleep(20 * time.Millisecond)
	if fired.Load() {
		t.Error("expected AfterFunc scheduled after Close to never run")
	}
}
