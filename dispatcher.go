// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/lock"
	"github.com/wharfq/wharfq/internal/log"
	"golang.org/x/time/rate"
)

// dispatcher is the single blocking consumer of a queue's wait list. It
// holds the only outstanding BRPOPLPUSH at any given time; everything
// else (delay promotion, stalled recovery, pause) works around it instead
// of competing with it for the same blocking call.
type dispatcher struct {
	logger  *log.Logger
	broker  base.Broker
	kn      *base.KeyNamer
	lockMgr *lock.Manager
	renewer *renewer
	events  *eventBus
	pause   *pauseGate

	handler        Handler
	errHandler     ErrorHandler
	isFailureFunc  func(error) bool
	retryDelayFunc RetryDelayFunc
	baseCtxFn      func() context.Context

	sema          chan struct{}
	errLogLimiter *rate.Limiter

	done  chan struct{}
	quit  chan struct{}
	abort chan struct{}
	once  sync.Once

	shutdownTimeout time.Duration
	workers         sync.WaitGroup
}

type dispatcherParams struct {
	logger          *log.Logger
	broker          base.Broker
	kn              *base.KeyNamer
	lockMgr         *lock.Manager
	renewer         *renewer
	events          *eventBus
	pause           *pauseGate
	concurrency     int
	baseCtxFn       func() context.Context
	retryDelayFunc  RetryDelayFunc
	isFailureFunc   func(error) bool
	errHandler      ErrorHandler
	shutdownTimeout time.Duration
}

func newDispatcher(p dispatcherParams) *dispatcher {
	return &dispatcher{
		logger:         p.logger,
		broker:         p.broker,
		kn:             p.kn,
		lockMgr:        p.lockMgr,
		renewer:        p.renewer,
		events:         p.events,
		pause:          p.pause,
		baseCtxFn:      p.baseCtxFn,
		retryDelayFunc: p.retryDelayFunc,
		isFailureFunc:  p.isFailureFunc,
		errHandler:     p.errHandler,
		handler:        HandlerFunc(func(ctx context.Context, j *Job) (interface{}, error) { return nil, fmt.Errorf("wharfq: no handler installed") }),
		sema:           make(chan struct{}, p.concurrency),
		errLogLimiter:  rate.NewLimiter(rate.Every(3*time.Second), 1),
		done:           make(chan struct{}),
		quit:           make(chan struct{}),
		abort:          make(chan struct{}),
		shutdownTimeout: func() time.Duration {
			if p.shutdownTimeout > 0 {
				return p.shutdownTimeout
			}
			return 8 * time.Second
		}(),
	}
}

func (d *dispatcher) start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-d.done:
				d.logger.Debug("Dispatcher done")
				return
			default:
				d.exec()
			}
		}
	}()
}

// stop halts the dispatcher's own pop loop; in-flight workers keep running
// until shutdown forces them to abort.
func (d *dispatcher) stop() {
	d.once.Do(func() {
		d.logger.Debug("Dispatcher shutting down...")
		close(d.quit)
		d.done <- struct{}{}
	})
}

func (d *dispatcher) shutdown() {
	d.stop()
	time.AfterFunc(d.shutdownTimeout, func() { close(d.abort) })
	d.logger.Info("Waiting for in-flight jobs to finish...")
	d.workers.Wait()
	d.logger.Info("All jobs finished")
}

func (d *dispatcher) exec() {
	select {
	case <-d.quit:
		return
	case d.sema <- struct{}{}:
	}

	if d.pause.IsPaused() {
		<-d.sema
		time.Sleep(200 * time.Millisecond)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), base.PollingInterval)
	msg, err := d.broker.MoveToActive(ctx, d.kn, true, base.PollingInterval)
	cancel()
	if err != nil {
		if d.errLogLimiter.Allow() {
			d.logger.Errorf("Failed to pop next job for queue %q: %v", d.kn.Name, err)
		}
		<-d.sema
		return
	}
	if msg == nil {
		<-d.sema
		d.events.emit(context.Background(), "no-job-retrieved", &base.JobMessage{})
		return
	}

	lockCtx, lockCancel := context.WithTimeout(context.Background(), base.LockDuration)
	lease, err := d.lockMgr.TakeLock(lockCtx, d.kn.Lock(msg.ID), base.LockDuration)
	lockCancel()
	if err != nil {
		d.logger.Errorf("Failed to take ownership lock for job %s: %v", msg.ID, err)
		<-d.sema
		return
	}

	d.events.emit(context.Background(), "active", &base.JobMessage{ID: msg.ID})
	d.renewer.Register(msg.ID, lease)
	job := jobFromMessage(msg)
	job.emitProgress = func(ctx context.Context, pct int) {
		d.events.emit(ctx, "progress", &base.JobMessage{ID: job.ID, Progress: pct})
	}
	d.workers.Add(1)
	go func() {
		defer func() {
			d.renewer.Unregister(job.ID)
			<-d.sema
			d.workers.Done()
		}()
		d.process(job, lease)
	}()
}

type handlerResult struct {
	value interface{}
	err   error
}

func (d *dispatcher) process(job *Job, lease *lock.Lease) {
	ctx := d.baseCtxFn()
	var cancel context.CancelFunc
	if t := job.Timeout(); t > 0 {
		ctx, cancel = context.WithTimeout(ctx, t)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	resCh := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- handlerResult{err: fmt.Errorf("wharfq: handler panicked: %v", r)}
			}
		}()
		v, err := d.handler.ProcessJob(ctx, job)
		resCh <- handlerResult{value: v, err: err}
	}()

	select {
	case <-d.abort:
		d.logger.Warnf("Quitting worker for job %s before it finished", job.ID)
		d.requeue(job, lease)
	case <-ctx.Done():
		d.finish(job, lease, handlerResult{err: ctx.Err()})
	case res := <-resCh:
		d.finish(job, lease, res)
	}
}

func (d *dispatcher) requeue(job *Job, lease *lock.Lease) {
	if d.renewer.Expired(job.ID) {
		d.logger.Warnf("Lock for job %s was lost before shutdown requeue; leaving it to the reaper", job.ID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), base.ClientCloseTimeout)
	defer cancel()
	if err := d.broker.RetryJob(ctx, d.kn, job.ID, 0, lease.Token()); err != nil {
		d.logger.Errorf("Could not push job %s back to wait: %v", job.ID, err)
	}
}

func (d *dispatcher) finish(job *Job, lease *lock.Lease, res handlerResult) {
	if d.renewer.Expired(job.ID) {
		d.logger.Warnf("Lock for job %s was lost while it ran; skipping its own state transition", job.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), base.ClientCloseTimeout)
	defer cancel()

	if res.err != nil && d.isFailureFunc(res.err) {
		if d.errHandler != nil {
			d.errHandler.HandleError(ctx, job, res.err)
		}
		if job.AttemptsMade < job.MaxAttempts() {
			delay := d.retryDelayFunc(job.AttemptsMade, res.err, job)
			if err := d.broker.RetryJob(ctx, d.kn, job.ID, delay.Milliseconds(), lease.Token()); err != nil {
				d.logger.Errorf("Could not retry job %s: %v", job.ID, err)
				return
			}
			d.events.emit(ctx, "retrying", &base.JobMessage{ID: job.ID, FailedReason: res.err.Error()})
			return
		}
		if err := d.broker.MoveToFailed(ctx, d.kn, job.ID, res.err.Error(), lease.Token()); err != nil {
			d.logger.Errorf("Could not move job %s to failed: %v", job.ID, err)
			return
		}
		d.events.emit(ctx, "failed", &base.JobMessage{ID: job.ID, FailedReason: res.err.Error()})
		return
	}

	payload, err := sonic.Marshal(res.value)
	if err != nil {
		d.logger.Errorf("Could not encode result for job %s: %v", job.ID, err)
		payload = []byte("null")
	}
	if err := d.broker.MoveToCompleted(ctx, d.kn, job.ID, payload, lease.Token()); err != nil {
		d.logger.Errorf("Could not move job %s to completed: %v", job.ID, err)
		return
	}
	d.events.emit(ctx, "completed", &base.JobMessage{ID: job.ID, ReturnValue: payload})
}
