// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/errors"
	"github.com/wharfq/wharfq/internal/log"
	"github.com/wharfq/wharfq/internal/rdb"
	"github.com/wharfq/wharfq/internal/timeutil"
)

// Client adds jobs to a queue. It holds its own Redis connection and is
// safe for concurrent use, so a producer process typically keeps a single
// Client alive for its lifetime.
type Client struct {
	kn               *base.KeyNamer
	broker           base.Broker
	publisher        redis.UniversalClient
	clock            timeutil.Clock
	logger           *log.Logger
	sharedConnection bool
}

// NewClient returns a Client for queueName using the given connection
// option.
func NewClient(r RedisConnOpt, queueName string, cfg Config) *Client {
	c := createRedisClient(cfg, ClientKindCommand, r)
	client := NewClientFromRedisClient(c, queueName, cfg)
	client.sharedConnection = false
	return client
}

// NewClientFromRedisClient returns a Client for queueName reusing an
// existing redis.UniversalClient.
func NewClientFromRedisClient(c redis.UniversalClient, queueName string, cfg Config) *Client {
	logger := log.NewLogger(cfg.Logger)
	logger.SetLevel(toInternalLogLevel(cfg.LogLevel))
	return &Client{
		kn:               base.NewKeyNamer(cfg.keyPrefixOrDefault(), queueName),
		broker:           rdb.NewRDB(c, c),
		publisher:        c,
		clock:            timeutil.NewRealClock(),
		logger:           logger,
		sharedConnection: true,
	}
}

// emit publishes a job lifecycle event the same way the Queue's event bus
// does, without holding a standing subscription of its own: a producer
// only ever needs to publish, never to dispatch to local handlers.
func (c *Client) emit(ctx context.Context, event string, msg *base.JobMessage) {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		c.logger.Errorf("Failed to encode event payload for %s: %v", event, err)
		return
	}
	if err := c.publisher.Publish(ctx, c.kn.EventChannel(event), payload).Err(); err != nil {
		c.logger.Errorf("Failed to publish event %s: %v", event, err)
	}
}

// Add places a new job onto the queue and returns the id it was assigned
// (either generated or the caller-supplied JobID option). If JobID names a
// job already present in the queue's job hash, Add returns
// errors.ErrDuplicateJob without modifying anything.
func (c *Client) Add(ctx context.Context, data interface{}, opts ...Option) (string, error) {
	op := errors.Op("Client.Add")
	payload, err := json.Marshal(data)
	if err != nil {
		return "", errors.E(op, errors.Internal, err)
	}
	jobOpts := composeOptions(opts...)
	id := newJobID(jobOpts.JobID)
	if jobOpts.JobID != "" {
		existing, err := c.broker.GetJob(ctx, c.kn, id)
		if err != nil {
			return "", errors.E(op, errors.Internal, err)
		}
		if existing != nil {
			return "", errors.E(op, errors.AlreadyExists, errors.ErrDuplicateJob)
		}
	}
	msg := &base.JobMessage{
		ID:        id,
		Data:      payload,
		Opts:      jobOpts,
		Timestamp: c.clock.Now().UnixMilli(),
	}
	if err := c.broker.AddJob(ctx, c.kn, msg); err != nil {
		return "", errors.E(op, errors.Internal, err)
	}
	c.logger.Debugf("Added job %s to queue %q", id, c.kn.Name)
	if jobOpts.Delay <= 0 {
		c.emit(ctx, "waiting", &base.JobMessage{ID: id})
	}
	return id, nil
}

// Close releases the client's Redis connection if it owns one.
func (c *Client) Close() error {
	if c.sharedConnection {
		return nil
	}
	return c.broker.Close()
}
