package wharfq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/errors"
)

type emailPayload struct {
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
}

func TestClientAddAssignsGeneratedID(t *testing.T) {
	client, _ := newMiniredisClient(t)
	c := NewClientFromRedisClient(client, "emails", Config{})

	id, err := c.Add(context.Background(), emailPayload{UserID: 1, Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated job id")
	}

	job, err := c.broker.GetJob(context.Background(), c.kn, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	var got emailPayload
	if err := json.Unmarshal(job.Data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.UserID != 1 || got.Email != "a@example.com" {
		t.Errorf("unexpected payload round-trip: %+v", got)
	}
}

func TestClientAddHonorsExplicitJobID(t *testing.T) {
	client, _ := newMiniredisClient(t)
	c := NewClientFromRedisClient(client, "emails", Config{})

	id, err := c.Add(context.Background(), emailPayload{UserID: 2}, JobID("welcome-2"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id != "welcome-2" {
		t.Errorf("id = %q, want %q", id, "welcome-2")
	}
}

func TestClientAddRejectsDuplicateJobID(t *testing.T) {
	client, _ := newMiniredisClient(t)
	c := NewClientFromRedisClient(client, "emails", Config{})
	ctx := context.Background()

	if _, err := c.Add(ctx, emailPayload{}, JobID("dup")); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	_, err := c.Add(ctx, emailPayload{}, JobID("dup"))
	if err == nil {
		t.Fatal("expected an error adding a duplicate job id")
	}
	if !errors.Is(err, errors.ErrDuplicateJob) {
		t.Errorf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestClientAddWithOptionsStoresThem(t *testing.T) {
	client, _ := newMiniredisClient(t)
	c := NewClientFromRedisClient(client, "emails", Config{})

	id, err := c.Add(context.Background(), emailPayload{}, MaxRetry(5), Priority(2))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	job, err := c.broker.GetJob(context.Background(), c.kn, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Opts.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", job.Opts.Attempts)
	}
	if job.Opts.Priority != 2 {
		t.Errorf("Priority = %d, want 2", job.Opts.Priority)
	}
}

func TestClientAddEmitsWaitingEventWhenUndelayed(t *testing.T) {
	client, _ := newMiniredisClient(t)
	c := NewClientFromRedisClient(client, "emails", Config{})

	sub := client.PSubscribe(context.Background(), c.kn.EventChannel("*"))
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("Receive (subscribe confirmation): %v", err)
	}

	id, err := c.Add(context.Background(), emailPayload{UserID: 1, Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != c.kn.EventChannel("waiting") {
			t.Fatalf("channel = %q, want %q", msg.Channel, c.kn.EventChannel("waiting"))
		}
		var got base.JobMessage
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if got.ID != id {
			t.Errorf("event job id = %q, want %q", got.ID, id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the waiting event")
	}
}

func TestClientCloseNoOpWhenSharedConnection(t *testing.T) {
	client, _ := newMiniredisClient(t)
	c := NewClientFromRedisClient(client, "emails", Config{})
	if err := c.Close(); err != nil {
		t.Errorf("expected Close on a shared connection to be a no-op, got %v", err)
	}
	// The underlying client must still be usable since Close didn't close it.
	if _, err := c.Add(context.Background(), emailPayload{}); err != nil {
		t.Errorf("expected the client to remain usable after Close: %v", err)
	}
}
