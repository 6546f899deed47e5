// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConnOpt is an interface for a connection option describing how to
// connect to Redis. It is the same union-of-options pattern the go-redis
// ecosystem exposes: implement MakeRedisClient to plug in a custom setup.
type RedisConnOpt interface {
	// MakeRedisClient returns a new redis client instance.
	// Return value is intended to be of type *redis.Client or *redis.ClusterClient.
	MakeRedisClient() interface{}
}

// RedisClientOpt wraps a redis.Options so it satisfies RedisConnOpt.
type RedisClientOpt struct {
	Addr     string
	Username string
	Password string
	DB       int
}

func (o RedisClientOpt) MakeRedisClient() interface{} {
	return redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Username: o.Username,
		Password: o.Password,
		DB:       o.DB,
	})
}

// RedisClusterClientOpt wraps a redis.ClusterOptions so it satisfies
// RedisConnOpt.
type RedisClusterClientOpt struct {
	Addrs    []string
	Username string
	Password string
}

func (o RedisClusterClientOpt) MakeRedisClient() interface{} {
	return redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:    o.Addrs,
		Username: o.Username,
		Password: o.Password,
	})
}

// ClientKind identifies which of a Queue's three logical connections is
// being constructed, so a Config.CreateClient override can tell them apart.
type ClientKind int

const (
	// ClientKindCommand is the general connection used for scripted
	// reads and writes.
	ClientKindCommand ClientKind = iota
	// ClientKindBlock is dedicated to the dispatcher's outstanding
	// blocking pop and must never be shared with ClientKindCommand.
	ClientKindBlock
	// ClientKindSubscriber is dedicated to pub/sub: delay wake-ups,
	// pause notifications, and the event bus.
	ClientKindSubscriber
)

func (k ClientKind) String() string {
	switch k {
	case ClientKindCommand:
		return "command"
	case ClientKindBlock:
		return "block"
	case ClientKindSubscriber:
		return "subscriber"
	default:
		return "unknown"
	}
}

// makeClient builds a redis.UniversalClient from a RedisConnOpt, panicking
// on an unsupported concrete type the same way the teacher's NewServer
// does.
func makeClient(r RedisConnOpt) redis.UniversalClient {
	c, ok := r.MakeRedisClient().(redis.UniversalClient)
	if !ok {
		panic(fmt.Sprintf("wharfq: unsupported RedisConnOpt type %T", r))
	}
	return c
}

// createRedisClient builds the client/block/subscriber connection for
// kind, deferring to cfg.CreateClient when the caller supplied one instead
// of constructing it from r directly.
func createRedisClient(cfg Config, kind ClientKind, r RedisConnOpt) redis.UniversalClient {
	if cfg.CreateClient != nil {
		return cfg.CreateClient(kind)
	}
	return makeClient(r)
}

// RedlockSettings tunes the multi-instance quorum lock algorithm used when
// Config.Clients names more than one independent Redis deployment.
type RedlockSettings struct {
	// DriftFactor is handed to the lock manager, which stores it but does
	// not apply it when obtaining or renewing leases. Defaults to 0.01 if
	// zero.
	DriftFactor float64

	// RetryCount is how many times to retry obtaining the quorum before
	// giving up. Defaults to 0 (no retry) if unset.
	RetryCount int

	// RetryDelay is the delay between retries. Defaults to 200ms if
	// RetryCount > 0 and this is zero.
	RetryDelay time.Duration
}

// Config configures a Queue.
type Config struct {
	// KeyPrefix namespaces every Redis key this queue touches. Defaults
	// to base.DefaultKeyPrefix ("wharf") if empty.
	KeyPrefix string

	// Clients lists the independent Redis deployments backing this
	// queue's locks. A single entry is the common case; more than one
	// enables the Redlock quorum algorithm for job ownership leases.
	//
	// If unset, CreateClient (or the RedisConnOpt passed to NewQueue) is
	// used as the sole client.
	Clients []RedisConnOpt

	// Redlock tunes the quorum algorithm when len(Clients) > 1.
	Redlock RedlockSettings

	// DB is not read by NewQueue, NewClient, or the lock clients built
	// from Clients; the logical database is the one selected by each
	// RedisConnOpt (for example RedisClientOpt.DB).
	DB int

	// Logger specifies the logger used by the queue. If unset, a
	// default logger writing to stderr is used.
	Logger Logger

	// LogLevel specifies the minimum log level to enable. If unset,
	// InfoLevel is used.
	LogLevel LogLevel

	// CreateClient, if set, overrides how the queue's command, block,
	// and subscriber connections are constructed, receiving which role
	// is being built instead of the RedisConnOpt passed to NewQueue.
	// Lock clients built from Clients are unaffected.
	CreateClient func(ClientKind) redis.UniversalClient
}

func (c Config) keyPrefixOrDefault() string {
	if c.KeyPrefix == "" {
		return "wharf"
	}
	return c.KeyPrefix
}
