// Package main provides a web-based monitoring UI for wharfq.
package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/rdb"
)

// Inspector provides read-only access to wharfq data in Redis.
type Inspector struct {
	client    redis.UniversalClient
	rdb       *rdb.RDB
	keyPrefix string
}

// NewInspector creates a new Inspector with the given Redis client.
func NewInspector(client redis.UniversalClient, keyPrefix string) *Inspector {
	if keyPrefix == "" {
		keyPrefix = base.DefaultKeyPrefix
	}
	return &Inspector{client: client, rdb: rdb.NewRDB(client, client), keyPrefix: keyPrefix}
}

// QueueInfo holds collection sizes for a single queue.
type QueueInfo struct {
	Name      string
	Waiting   int64
	Active    int64
	Delayed   int64
	Completed int64
	Failed    int64
	Paused    bool
}

// JobInfo holds information about a single job for display.
type JobInfo struct {
	ID           string
	Queue        string
	State        string
	Payload      string
	MaxRetry     int
	AttemptsMade int
	FailedReason string
	FinishedAt   time.Time
	RunAt        time.Time
}

// DashboardStats holds aggregated statistics across every known queue.
type DashboardStats struct {
	TotalQueues    int
	TotalWaiting   int64
	TotalActive    int64
	TotalDelayed   int64
	TotalCompleted int64
	TotalFailed    int64
}

// GetQueues returns information about every queue registered under the
// inspector's key prefix.
func (i *Inspector) GetQueues(ctx context.Context) ([]QueueInfo, error) {
	qnames, err := i.rdb.ListQueues(ctx, i.keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get queues: %w", err)
	}

	var queues []QueueInfo
	for _, qname := range qnames {
		info, err := i.getQueueInfo(ctx, qname)
		if err != nil {
			continue
		}
		queues = append(queues, info)
	}

	sort.Slice(queues, func(a, b int) bool {
		return queues[a].Name < queues[b].Name
	})

	return queues, nil
}

func (i *Inspector) getQueueInfo(ctx context.Context, qname string) (QueueInfo, error) {
	kn := base.NewKeyNamer(i.keyPrefix, qname)

	counts, err := i.rdb.GetJobCounts(ctx, kn)
	if err != nil {
		return QueueInfo{}, err
	}

	paused, _ := i.client.Exists(ctx, kn.MetaPaused()).Result()

	return QueueInfo{
		Name:      qname,
		Waiting:   counts.Waiting,
		Active:    counts.Active,
		Delayed:   counts.Delayed,
		Completed: counts.Completed,
		Failed:    counts.Failed,
		Paused:    paused > 0,
	}, nil
}

// GetDashboardStats returns aggregated statistics for the dashboard.
func (i *Inspector) GetDashboardStats(ctx context.Context) (DashboardStats, error) {
	queues, err := i.GetQueues(ctx)
	if err != nil {
		return DashboardStats{}, err
	}

	var stats DashboardStats
	stats.TotalQueues = len(queues)

	for _, q := range queues {
		stats.TotalWaiting += q.Waiting
		stats.TotalActive += q.Active
		stats.TotalDelayed += q.Delayed
		stats.TotalCompleted += q.Completed
		stats.TotalFailed += q.Failed
	}

	return stats, nil
}

// GetJobs returns up to limit jobs from the given queue and collection.
func (i *Inspector) GetJobs(ctx context.Context, qname, collection string, limit int) ([]JobInfo, error) {
	kn := base.NewKeyNamer(i.keyPrefix, qname)

	ids, err := i.rdb.ListRange(ctx, kn, collection, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	var jobs []JobInfo
	for _, id := range ids {
		msg, err := i.rdb.GetJob(ctx, kn, id)
		if err != nil {
			continue
		}

		job := JobInfo{
			ID:           msg.ID,
			Queue:        qname,
			State:        collection,
			Payload:      string(msg.Data),
			MaxRetry:     msg.Opts.Attempts,
			AttemptsMade: msg.AttemptsMade,
			FailedReason: msg.FailedReason,
		}
		if msg.FinishedOn > 0 {
			job.FinishedAt = time.UnixMilli(msg.FinishedOn)
		}
		if msg.Opts.Delay > 0 && msg.FinishedOn == 0 {
			job.RunAt = time.UnixMilli(msg.Timestamp + msg.Opts.Delay)
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}
