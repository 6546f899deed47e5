// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/log"
	"github.com/wharfq/wharfq/internal/lock"
	"github.com/wharfq/wharfq/internal/rdb"
	"github.com/wharfq/wharfq/internal/timeutil"
)

// Queue pulls jobs off a single named queue and runs them through a
// Handler. It owns three logical Redis connections: a general one for
// scripted reads/writes, one dedicated to the dispatcher's outstanding
// blocking pop, and one dedicated to pub/sub (delay wake-ups, pause
// notifications, and the event bus).
type Queue struct {
	logger *log.Logger

	kn               *base.KeyNamer
	broker           base.Broker
	lockMgr          *lock.Manager
	clock            timeutil.Clock
	sharedConnection bool

	state *queueState

	wg         sync.WaitGroup
	timers     *timerManager
	renewer    *renewer
	delay      *delayController
	reaper     *reaper
	pause      *pauseGate
	events     *eventBus
	dispatcher *dispatcher
	janitor    *janitor
	healthchk  *healthchecker

	ready     chan struct{}
	readyOnce sync.Once
}

type queueState struct {
	mu    sync.Mutex
	value queueStateValue
}

type queueStateValue int

const (
	queueStateNew queueStateValue = iota
	queueStateActive
	queueStateStopped
	queueStateClosed
)

var queueStates = []string{"new", "active", "stopped", "closed"}

func (s queueStateValue) String() string {
	if queueStateNew <= s && s <= queueStateClosed {
		return queueStates[s]
	}
	return "unknown"
}

// ErrQueueClosed indicates that the operation is illegal because the
// queue has already been shut down.
var ErrQueueClosed = errors.New("wharfq: queue closed")

const (
	defaultShutdownTimeout  = 8 * time.Second
	defaultHealthCheckEvery = 15 * time.Second
	defaultJanitorInterval  = 8 * time.Second
	defaultJanitorBatch     = 100
)

// QueueOptions configures background behavior that isn't part of Config,
// since it applies per-queue instance rather than per-connection.
type QueueOptions struct {
	// Concurrency is the maximum number of jobs processed at once.
	// Defaults to runtime.NumCPU() if zero or negative.
	Concurrency int

	// BaseContext returns the base context for Handler invocations.
	// Defaults to context.Background.
	BaseContext func() context.Context

	RetryDelayFunc RetryDelayFunc
	IsFailure      func(error) bool
	ErrorHandler   ErrorHandler

	ShutdownTimeout time.Duration

	HealthCheckFunc     func(error)
	HealthCheckInterval time.Duration

	JanitorInterval  time.Duration
	JanitorBatchSize int
}

// NewQueue returns a Queue for queueName using r as the primary connection
// option. Three independent client instances are created from r for the
// command, blocking-pop, and pub/sub roles.
func NewQueue(r RedisConnOpt, queueName string, cfg Config, opts QueueOptions) *Queue {
	cmdClient := createRedisClient(cfg, ClientKindCommand, r)
	blockClient := createRedisClient(cfg, ClientKindBlock, r)
	subClient := createRedisClient(cfg, ClientKindSubscriber, r)
	q := newQueueFromClients(cmdClient, blockClient, subClient, lockClientsOrDefault(cfg, cmdClient), queueName, cfg, opts)
	q.sharedConnection = false
	return q
}

// NewQueueFromRedisClients builds a Queue reusing existing clients for the
// command, blocking-pop, and pub/sub roles. Callers remain responsible for
// closing clients themselves; Queue.Close will not close them.
func NewQueueFromRedisClients(cmdClient, blockClient, subClient redis.UniversalClient, queueName string, cfg Config, opts QueueOptions) *Queue {
	q := newQueueFromClients(cmdClient, blockClient, subClient, lockClientsOrDefault(cfg, cmdClient), queueName, cfg, opts)
	q.sharedConnection = true
	return q
}

func lockClientsOrDefault(cfg Config, fallback redis.UniversalClient) []redis.UniversalClient {
	if len(cfg.Clients) == 0 {
		return []redis.UniversalClient{fallback}
	}
	clients := make([]redis.UniversalClient, 0, len(cfg.Clients))
	for _, opt := range cfg.Clients {
		clients = append(clients, makeClient(opt))
	}
	return clients
}

func newQueueFromClients(cmdClient, blockClient, subClient redis.UniversalClient, lockClients []redis.UniversalClient, queueName string, cfg Config, opts QueueOptions) *Queue {
	logger := log.NewLogger(cfg.Logger)
	logger.SetLevel(toInternalLogLevel(cfg.LogLevel))

	kn := base.NewKeyNamer(cfg.keyPrefixOrDefault(), queueName)
	broker := rdb.NewRDB(cmdClient, blockClient)

	var lockOpts []lock.Option
	if len(lockClients) > 1 {
		rl := cfg.Redlock
		if rl.DriftFactor == 0 {
			rl.DriftFactor = 0.01
		}
		if rl.RetryCount > 0 && rl.RetryDelay == 0 {
			rl.RetryDelay = 200 * time.Millisecond
		}
		lockOpts = append(lockOpts, lock.WithRedlock(rl.DriftFactor, rl.RetryCount, rl.RetryDelay))
	}
	lockMgr := lock.NewManager(lockClients, lockOpts...)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	baseCtxFn := opts.BaseContext
	if baseCtxFn == nil {
		baseCtxFn = context.Background
	}
	retryDelayFunc := opts.RetryDelayFunc
	if retryDelayFunc == nil {
		retryDelayFunc = DefaultRetryDelayFunc
	}
	isFailureFunc := opts.IsFailure
	if isFailureFunc == nil {
		isFailureFunc = defaultIsFailureFunc
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	healthInterval := opts.HealthCheckInterval
	if healthInterval <= 0 {
		healthInterval = defaultHealthCheckEvery
	}
	janitorInterval := opts.JanitorInterval
	if janitorInterval <= 0 {
		janitorInterval = defaultJanitorInterval
	}
	janitorBatch := opts.JanitorBatchSize
	if janitorBatch <= 0 {
		janitorBatch = defaultJanitorBatch
	}

	clock := timeutil.NewRealClock()
	timers := newTimerManager()
	events := newEventBus(logger, kn, cmdClient, subClient)
	renew := newRenewer(logger, lockMgr, timers)
	pauseGate := newPauseGate(logger, broker, kn, events, subClient)
	delay := newDelayController(logger, broker, kn, clock, timers, events, subClient)
	reap := newReaper(logger, broker, kn, events)
	disp := newDispatcher(dispatcherParams{
		logger:          logger,
		broker:          broker,
		kn:              kn,
		lockMgr:         lockMgr,
		renewer:         renew,
		events:          events,
		pause:           pauseGate,
		concurrency:     concurrency,
		baseCtxFn:       baseCtxFn,
		retryDelayFunc:  retryDelayFunc,
		isFailureFunc:   isFailureFunc,
		errHandler:      opts.ErrorHandler,
		shutdownTimeout: shutdownTimeout,
	})
	jan := newJanitor(janitorParams{
		logger:    logger,
		broker:    broker,
		kn:        kn,
		clock:     clock,
		events:    events,
		interval:  janitorInterval,
		batchSize: janitorBatch,
	})
	health := newHealthChecker(healthcheckerParams{
		logger:          logger,
		broker:          broker,
		kn:              kn,
		events:          events,
		interval:        healthInterval,
		healthcheckFunc: opts.HealthCheckFunc,
	})

	return &Queue{
		logger:     logger,
		kn:         kn,
		broker:     broker,
		lockMgr:    lockMgr,
		clock:      clock,
		state:      &queueState{value: queueStateNew},
		timers:     timers,
		renewer:    renew,
		delay:      delay,
		reaper:     reap,
		pause:      pauseGate,
		events:     events,
		dispatcher: disp,
		janitor:    jan,
		healthchk:  health,
		ready:      make(chan struct{}),
	}
}

// On registers fn to run whenever event fires for this queue (one of
// "ready", "error", "waiting", "active", "progress", "completed",
// "failed", "retrying", "stalled", "removed", "cleaned", "paused",
// "resumed", or "no-job-retrieved"), whether it originated in this
// process or another one sharing the queue.
func (q *Queue) On(event string, fn func(*Job)) { q.events.On(event, fn) }

// Run starts processing handler and blocks until an OS signal requests
// shutdown, then drains in-flight jobs before returning.
func (q *Queue) Run(handler Handler) error {
	if err := q.Start(handler); err != nil {
		return err
	}
	q.waitForSignals()
	q.Shutdown()
	return nil
}

// Start begins dispatching jobs to handler without blocking.
func (q *Queue) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("wharfq: queue cannot run with a nil handler")
	}
	q.dispatcher.handler = handler
	if err := q.start(); err != nil {
		return err
	}
	q.logger.Info("Starting processing")
	q.healthchk.start(&q.wg)
	q.events.start(&q.wg)
	q.pause.start(&q.wg)
	q.delay.start(&q.wg)
	q.reaper.start(&q.wg)
	q.janitor.start(&q.wg)
	q.dispatcher.start(&q.wg)
	q.readyOnce.Do(func() { close(q.ready) })
	q.events.emit(context.Background(), "ready", &base.JobMessage{})
	return nil
}

// IsReady blocks until Start has run, or ctx is done first, and then pings
// the command connection. It does not check the blocking or subscriber
// connections, nor wait for Redis to confirm the delayed/paused
// subscriptions. It remains satisfied once Start has run.
func (q *Queue) IsReady(ctx context.Context) error {
	select {
	case <-q.ready:
		return q.broker.Ping()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) start() error {
	q.state.mu.Lock()
	defer q.state.mu.Unlock()
	switch q.state.value {
	case queueStateActive:
		return fmt.Errorf("wharfq: queue is already running")
	case queueStateStopped:
		return fmt.Errorf("wharfq: queue is stopped, waiting for shutdown")
	case queueStateClosed:
		return ErrQueueClosed
	}
	q.state.value = queueStateActive
	return nil
}

// Shutdown gracefully stops the queue, draining in-flight jobs before the
// configured shutdown timeout elapses.
func (q *Queue) Shutdown() {
	q.state.mu.Lock()
	if q.state.value == queueStateNew || q.state.value == queueStateClosed {
		q.state.mu.Unlock()
		return
	}
	q.state.value = queueStateClosed
	q.state.mu.Unlock()

	q.logger.Info("Starting graceful shutdown")
	q.dispatcher.shutdown()
	q.reaper.shutdown()
	q.delay.shutdown()
	q.pause.shutdown()
	q.events.shutdown()
	q.healthchk.shutdown()
	q.janitor.shutdown()
	q.renewer.Close()
	q.timers.Close()
	q.wg.Wait()

	if !q.sharedConnection {
		q.broker.Close()
	}
	q.logger.Info("Exiting")
}

// Stop pauses this process's dispatcher without affecting other workers
// sharing the queue and without closing the connection, mirroring the
// SIGTSTP-style local pause a single worker process might want.
func (q *Queue) Stop() {
	q.state.mu.Lock()
	if q.state.value != queueStateActive {
		q.state.mu.Unlock()
		return
	}
	q.state.value = queueStateStopped
	q.state.mu.Unlock()

	q.logger.Info("Pausing dispatcher")
	q.pause.PauseLocal()
}

// Ping checks connectivity to Redis.
func (q *Queue) Ping() error {
	q.state.mu.Lock()
	defer q.state.mu.Unlock()
	if q.state.value == queueStateClosed {
		return nil
	}
	return q.broker.Ping()
}

// Pause renames wait to paused cluster-wide so every worker sharing this
// queue stops picking up new jobs, without disturbing jobs already active.
func (q *Queue) Pause(ctx context.Context) error { return q.pause.PauseGlobal(ctx) }

// Resume reverses Pause.
func (q *Queue) Resume(ctx context.Context) error { return q.pause.ResumeGlobal(ctx) }

// GetJobCounts reports the size of every collection for this queue.
func (q *Queue) GetJobCounts(ctx context.Context) (*base.JobCounts, error) {
	return q.broker.GetJobCounts(ctx, q.kn)
}

// GetJob fetches a single job by id regardless of which collection it is
// currently in, or nil if it no longer exists.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	msg, err := q.broker.GetJob(ctx, q.kn, id)
	if err != nil || msg == nil {
		return nil, err
	}
	return jobFromMessage(msg), nil
}

// RemoveJob deletes a job from every collection it might be in.
func (q *Queue) RemoveJob(ctx context.Context, id string) error {
	if err := q.broker.RemoveJob(ctx, q.kn, id); err != nil {
		return err
	}
	q.events.emit(ctx, "removed", &base.JobMessage{ID: id})
	return nil
}

// Clean removes up to limit jobs from jobType ("completed" or "failed")
// whose own Retention option elapsed at least graceMs ago, returning the
// ids removed. Unlike the janitor's automatic sweep, Clean runs on demand
// with caller-supplied parameters.
func (q *Queue) Clean(ctx context.Context, jobType string, graceMs int64, limit int) ([]string, error) {
	now := q.clock.Now().UnixMilli() - graceMs
	removed, err := q.broker.CleanJobsInSet(ctx, q.kn, jobType, now, int64(limit))
	if err != nil {
		return nil, err
	}
	for _, id := range removed {
		q.events.emit(ctx, "cleaned", &base.JobMessage{ID: id})
	}
	return removed, nil
}

// ListJobs lists job ids currently in the named collection ("wait",
// "active", "delayed", "paused", "completed", or "failed").
func (q *Queue) ListJobs(ctx context.Context, collection string, start, stop int64) ([]string, error) {
	return q.broker.ListRange(ctx, q.kn, collection, start, stop)
}

// Empty truncates wait, paused, and delayed, leaving active, completed,
// and failed untouched.
func (q *Queue) Empty(ctx context.Context) error { return q.broker.Empty(ctx, q.kn) }
