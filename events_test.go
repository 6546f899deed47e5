package wharfq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/log"
)

func TestEventBusDispatchesToLocalHandlers(t *testing.T) {
	client, _ := newMiniredisClient(t)
	kn := base.NewKeyNamer("wharf", "emails")
	b := newEventBus(log.NewLogger(nil), kn, client, client)

	var wg sync.WaitGroup
	b.start(&wg)
	t.Cleanup(b.shutdown)

	received := make(chan *Job, 1)
	b.On("completed", func(j *Job) { received <- j })

	b.emit(context.Background(), "completed", &base.JobMessage{ID: "job-1", ReturnValue: []byte(`"ok"`)})

	select {
	case j := <-received:
		if j.ID != "job-1" {
			t.Errorf("expected job-1, got %s", j.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the completed event to dispatch")
	}
}

func TestEventBusIgnoresOtherQueuesEvents(t *testing.T) {
	client, _ := newMiniredisClient(t)
	kn := base.NewKeyNamer("wharf", "emails")
	b := newEventBus(log.NewLogger(nil), kn, client, client)

	var wg sync.WaitGroup
	b.start(&wg)
	t.Cleanup(b.shutdown)

	received := make(chan *Job, 1)
	b.On("completed", func(j *Job) { received <- j })

	// A "reports" queue's eventBus publishes on its own channel; "emails"'s
	// subscription pattern ("*@emails") must not match it.
	otherKn := base.NewKeyNamer("wharf", "reports")
	otherBus := newEventBus(log.NewLogger(nil), otherKn, client, client)
	otherBus.emit(context.Background(), "completed", &base.JobMessage{ID: "job-in-other-queue"})

	select {
	case j := <-received:
		t.Fatalf("expected no delivery across queues, got job %s", j.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEventBusMultipleHandlersAllFire(t *testing.T) {
	client, _ := newMiniredisClient(t)
	kn := base.NewKeyNamer("wharf", "emails")
	b := newEventBus(log.NewLogger(nil), kn, client, client)

	var wg sync.WaitGroup
	b.start(&wg)
	t.Cleanup(b.shutdown)

	var mu sync.Mutex
	var calls []string
	done := make(chan struct{}, 2)
	b.On("failed", func(j *Job) { mu.Lock(); calls = append(calls, "first"); mu.Unlock(); done <- struct{}{} })
	b.On("failed", func(j *Job) { mu.Lock(); calls = append(calls, "second"); mu.Unlock(); done <- struct{}{} })

	b.emit(context.Background(), "failed", &base.JobMessage{ID: "job-1"})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for both handlers to fire")
		}
	}
	mu.Lock()
	n := len(calls)
	mu.Unlock()
	if n != 2 {
		t.Errorf("expected both handlers to fire, got %d calls", n)
	}
}
