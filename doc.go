// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

/*
Package wharfq provides a distributed job queue backed by Redis.

wharfq moves jobs through six collections per queue: wait, active,
delayed, completed, failed, and paused. A Client adds jobs; a Queue pops
them off wait (or, once ready, delayed), hands them to a Handler, and
retries or fails them based on the handler's result, all while holding a
short-lived ownership lock on each job so a crashed worker's jobs get
picked back up by someone else.

# Quick Start

Producer:

	client := wharfq.NewClient(wharfq.RedisClientOpt{Addr: "localhost:6379"}, "emails", wharfq.Config{})
	defer client.Close()

	id, err := client.Add(ctx, map[string]int{"userID": 42}, wharfq.MaxRetry(3))
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("added job %s", id)

Worker:

	q := wharfq.NewQueue(
		wharfq.RedisClientOpt{Addr: "localhost:6379"},
		"emails",
		wharfq.Config{},
		wharfq.QueueOptions{Concurrency: 10},
	)

	handler := wharfq.HandlerFunc(func(ctx context.Context, job *wharfq.Job) (interface{}, error) {
		log.Printf("processing job %s", job.ID)
		return nil, nil
	})

	if err := q.Run(handler); err != nil {
		log.Fatal(err)
	}

# Job Options

Available options for Client.Add:

	Delay(d)      - delay before the job becomes processable
	Priority(p)   - lower values run before higher ones among ready jobs
	MaxRetry(n)   - maximum attempts, including the first
	Timeout(d)    - per-attempt handler timeout
	Retention(d)  - how long a terminal job sticks around before cleanup
	JobID(id)     - caller-supplied id instead of a generated one

# Architecture

Each Queue keeps three Redis connections: one for scripted reads and
writes, one dedicated to its single outstanding blocking pop, and one for
pub/sub. Atomic transitions between collections are Lua scripts run
against the first connection; see internal/rdb.

A Queue runs several background goroutines alongside its dispatcher:
  - delayController: promotes delayed jobs once they come due
  - reaper: requeues or fails jobs whose ownership lock expired unrenewed
  - renewer: keeps each active job's lock alive while its handler runs
  - pauseGate: tracks local and cluster-wide pause state
  - eventBus: fans out completed/failed/retrying/stalled notifications
  - janitor: deletes terminal jobs once their own Retention elapses
  - healthchecker: periodically pings Redis

# Monitoring

wharfq includes a small web inspector. Start it with:

	go run ./ui

Then visit http://localhost:8080 to browse a queue's collections.
*/
package wharfq
