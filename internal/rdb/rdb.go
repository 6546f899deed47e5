// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package rdb encapsulates the interactions with Redis behind the
// wharfq/internal/base.Broker interface. Every multi-key transition is
// expressed as a server-side Lua script so it is atomic from the point of
// view of concurrent workers; see the KEYS/ARGV comment above each script
// for its contract.
package rdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"
	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/errors"
	"github.com/wharfq/wharfq/internal/timeutil"
)

// RDB is the reference Broker implementation. It holds the general client
// used for scripted operations and reads, and a dedicated blocking client
// reserved for BRPOPLPUSH so that a single outstanding blocking call never
// steals the connection other operations need.
type RDB struct {
	client         redis.UniversalClient
	blockingClient redis.UniversalClient
	clock          timeutil.Clock
}

// NewRDB returns an RDB using client for scripted/non-blocking operations
// and blockingClient for BRPOPLPUSH.
func NewRDB(client, blockingClient redis.UniversalClient) *RDB {
	return &RDB{client: client, blockingClient: blockingClient, clock: timeutil.NewRealClock()}
}

// SetClock overrides the clock used to timestamp jobs; tests use this to
// inject a SimulatedClock.
func (r *RDB) SetClock(c timeutil.Clock) { r.clock = c }

func (r *RDB) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

func (r *RDB) Close() error {
	return r.client.Close()
}

func (r *RDB) runScript(ctx context.Context, op errors.Op, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	res, err := script.Run(ctx, r.client, keys, args...).Result()
	if err != nil {
		return nil, errors.E(op, errors.Internal, fmt.Sprintf("redis eval error: %v", err))
	}
	return res, nil
}

// wrapLockMismatch recognizes the LOCK_MISMATCH sentinel a script returns
// when the caller's token no longer matches the job's lock, and surfaces
// it as errors.ErrLockNotHeld instead of a generic internal error.
func wrapLockMismatch(op errors.Op, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "LOCK_MISMATCH") {
		return errors.E(op, errors.FailedPrecondition, errors.ErrLockNotHeld)
	}
	return err
}

// KEYS[1] -> job hash key
// KEYS[2] -> wait key
// KEYS[3] -> paused key
// KEYS[4] -> meta-paused key
// KEYS[5] -> delayed key
// KEYS[6] -> priority key
// KEYS[7] -> delayed channel
// ARGV[1] -> job id
// ARGV[2] -> encoded job message
// ARGV[3] -> delay in ms (0 for none)
// ARGV[4] -> priority (0 for none)
// ARGV[5] -> now in unix ms
//
// Places the job onto delayed if a delay was requested, otherwise onto
// wait or paused depending on meta-paused, consulting the priority zset to
// find an insertion point via LINSERT when a priority was given.
var addJobCmd = redis.NewScript(`
redis.call("HSET", KEYS[1], "msg", ARGV[2], "retention", ARGV[6])
if tonumber(ARGV[3]) > 0 then
	redis.call("ZADD", KEYS[5], tonumber(ARGV[5]) + tonumber(ARGV[3]), ARGV[1])
	redis.call("PUBLISH", KEYS[7], tonumber(ARGV[5]) + tonumber(ARGV[3]))
	return "delayed"
end
local target = KEYS[2]
if redis.call("EXISTS", KEYS[4]) == 1 then
	target = KEYS[3]
end
if tonumber(ARGV[4]) > 0 then
	redis.call("ZADD", KEYS[6], tonumber(ARGV[4]), ARGV[1])
	local rank = redis.call("ZRANK", KEYS[6], ARGV[1])
	local placed = false
	local nxt = redis.call("ZRANGE", KEYS[6], rank + 1, rank + 1)
	if #nxt > 0 then
		if redis.call("LINSERT", target, "AFTER", nxt[1], ARGV[1]) ~= -1 then
			placed = true
		end
	end
	if not placed and rank > 0 then
		local prv = redis.call("ZRANGE", KEYS[6], rank - 1, rank - 1)
		if #prv > 0 then
			if redis.call("LINSERT", target, "BEFORE", prv[1], ARGV[1]) ~= -1 then
				placed = true
			end
		end
	end
	if not placed then
		redis.call("RPUSH", target, ARGV[1])
	end
else
	redis.call("LPUSH", target, ARGV[1])
end
return target`)

// AddJob stores msg's payload and places its id onto delayed, wait, or
// paused as appropriate.
func (r *RDB) AddJob(ctx context.Context, kn *base.KeyNamer, msg *base.JobMessage) error {
	op := errors.Op("rdb.AddJob")
	encoded, err := base.EncodeMessage(msg)
	if err != nil {
		return errors.E(op, errors.Internal, fmt.Sprintf("cannot encode job message: %v", err))
	}
	keys := []string{
		kn.Job(msg.ID), kn.Wait(), kn.Paused(), kn.MetaPaused(), kn.Delayed(), kn.Priority(), kn.DelayedChannel(),
	}
	argv := []interface{}{msg.ID, encoded, msg.Opts.Delay, msg.Opts.Priority, r.clock.Now().UnixMilli(), msg.Opts.RetentionMs}
	if _, err = r.runScript(ctx, op, addJobCmd, keys, argv...); err != nil {
		return err
	}
	r.client.SAdd(ctx, kn.RegistryKey(), kn.Name)
	return nil
}

// MoveToActive pops a job id from wait into active.
// When block is true it uses the dedicated blocking client with the given
// timeout; otherwise it performs a non-blocking pop. A nil message with a
// nil error means no job was available.
func (r *RDB) MoveToActive(ctx context.Context, kn *base.KeyNamer, block bool, timeout time.Duration) (*base.JobMessage, error) {
	op := errors.Op("rdb.MoveToActive")
	var id string
	var err error
	if block {
		id, err = r.blockingClient.BRPopLPush(ctx, kn.Wait(), kn.Active(), timeout).Result()
	} else {
		id, err = r.client.RPopLPush(ctx, kn.Wait(), kn.Active()).Result()
	}
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.E(op, errors.Internal, fmt.Sprintf("redis error: %v", err))
	}
	// Best-effort priority cleanup: not atomic with the move above, per
	// the accepted ordering hazard.
	r.client.ZRem(ctx, kn.Priority(), id)
	r.client.HIncrBy(ctx, kn.Job(id), "attemptsMade", 1)
	msg, err := r.GetJob(ctx, kn, id)
	if err != nil || msg == nil {
		return msg, err
	}
	msg.ProcessedOn = r.clock.Now().UnixMilli()
	r.client.HSet(ctx, kn.Job(id), "processedOn", msg.ProcessedOn)
	return msg, nil
}

// KEYS[1] -> active key
// KEYS[2] -> wait key
// KEYS[3] -> delayed key
// KEYS[4] -> lock key
// ARGV[1] -> job id
// ARGV[2] -> delay in ms (0 for immediate)
// ARGV[3] -> now unix ms
// ARGV[4] -> lock token held by this worker
var retryJobCmd = redis.NewScript(`
if redis.call("LREM", KEYS[1], 0, ARGV[1]) == 0 then
	return redis.error_reply("NOT_FOUND")
end
if tonumber(ARGV[2]) > 0 then
	redis.call("ZADD", KEYS[3], tonumber(ARGV[3]) + tonumber(ARGV[2]), ARGV[1])
else
	redis.call("LPUSH", KEYS[2], ARGV[1])
end
if redis.call("GET", KEYS[4]) == ARGV[4] then
	redis.call("DEL", KEYS[4])
end
return redis.status_reply("OK")`)

// RetryJob moves id from active back to wait or delayed for another
// attempt, per base.Broker.
func (r *RDB) RetryJob(ctx context.Context, kn *base.KeyNamer, id string, delayMs int64, token string) error {
	op := errors.Op("rdb.RetryJob")
	keys := []string{kn.Active(), kn.Wait(), kn.Delayed(), kn.Lock(id)}
	_, err := r.runScript(ctx, op, retryJobCmd, keys, id, delayMs, r.clock.Now().UnixMilli(), token)
	return err
}

// KEYS[1] -> delayed key
// KEYS[2] -> wait key
// KEYS[3] -> paused key
// KEYS[4] -> meta-paused key
// ARGV[1] -> now in unix ms
var updateDelaySetCmd = redis.NewScript(`
local ready = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local target = KEYS[2]
if redis.call("EXISTS", KEYS[4]) == 1 then
	target = KEYS[3]
end
for _, id in ipairs(ready) do
	redis.call("LPUSH", target, id)
	redis.call("ZREM", KEYS[1], id)
end
local nxt = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if #nxt == 0 then
	return {ready, false}
end
return {ready, nxt[2]}`)

// UpdateDelaySet promotes ready delayed jobs into wait/paused, returning
// their ids alongside the next earliest delayed timestamp, if any.
func (r *RDB) UpdateDelaySet(ctx context.Context, kn *base.KeyNamer, at int64) ([]string, int64, bool, error) {
	op := errors.Op("rdb.UpdateDelaySet")
	keys := []string{kn.Delayed(), kn.Wait(), kn.Paused(), kn.MetaPaused()}
	res, err := r.runScript(ctx, op, updateDelaySetCmd, keys, at)
	if err != nil {
		return nil, 0, false, err
	}
	rows, ok := res.([]interface{})
	if !ok || len(rows) != 2 {
		return nil, 0, false, errors.E(op, errors.Internal, "unexpected script return shape")
	}
	promoted, err := cast.ToStringSliceE(rows[0])
	if err != nil {
		return nil, 0, false, errors.E(op, errors.Internal, fmt.Sprintf("cast error: %v", err))
	}
	if rows[1] == nil {
		return promoted, 0, false, nil
	}
	next, err := cast.ToInt64E(rows[1])
	if err != nil {
		return nil, 0, false, errors.E(op, errors.Internal, fmt.Sprintf("cast error: %v", rows[1]))
	}
	return promoted, next, true, nil
}

// KEYS[1] -> active key
// KEYS[2] -> completed key
// KEYS[3] -> job hash key
// KEYS[4] -> lock key
// ARGV[1] -> job id
// ARGV[2] -> return value json
// ARGV[3] -> finishedOn unix ms
// ARGV[4] -> lock token held by this worker
var moveToCompletedCmd = redis.NewScript(`
if redis.call("GET", KEYS[4]) ~= ARGV[4] then
	return redis.error_reply("LOCK_MISMATCH")
end
if redis.call("LREM", KEYS[1], 0, ARGV[1]) == 0 then
	return redis.error_reply("NOT_FOUND")
end
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("HSET", KEYS[3], "returnValue", ARGV[2], "finishedOn", ARGV[3])
redis.call("DEL", KEYS[4])
return redis.status_reply("OK")`)

// MoveToCompleted moves id from active into completed and records result.
// It only takes effect if token still matches the lock held on id; if the
// lock was lost (expired and possibly reaped), it returns
// errors.ErrLockNotHeld and leaves every key untouched.
func (r *RDB) MoveToCompleted(ctx context.Context, kn *base.KeyNamer, id string, result []byte, token string) error {
	op := errors.Op("rdb.MoveToCompleted")
	keys := []string{kn.Active(), kn.Completed(), kn.Job(id), kn.Lock(id)}
	_, err := r.runScript(ctx, op, moveToCompletedCmd, keys, id, string(result), r.clock.Now().UnixMilli(), token)
	return wrapLockMismatch(op, err)
}

// KEYS[1] -> active key
// KEYS[2] -> failed key
// KEYS[3] -> job hash key
// KEYS[4] -> lock key
// ARGV[1] -> job id
// ARGV[2] -> failure reason
// ARGV[3] -> finishedOn unix ms
// ARGV[4] -> lock token held by this worker
var moveToFailedCmd = redis.NewScript(`
if redis.call("GET", KEYS[4]) ~= ARGV[4] then
	return redis.error_reply("LOCK_MISMATCH")
end
if redis.call("LREM", KEYS[1], 0, ARGV[1]) == 0 then
	return redis.error_reply("NOT_FOUND")
end
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("HSET", KEYS[3], "failedReason", ARGV[2], "finishedOn", ARGV[3])
redis.call("DEL", KEYS[4])
return redis.status_reply("OK")`)

// MoveToFailed moves id from active into failed and records the reason.
// Like MoveToCompleted, it only takes effect if token still matches the
// lock held on id, otherwise it returns errors.ErrLockNotHeld.
func (r *RDB) MoveToFailed(ctx context.Context, kn *base.KeyNamer, id, reason, token string) error {
	op := errors.Op("rdb.MoveToFailed")
	keys := []string{kn.Active(), kn.Failed(), kn.Job(id), kn.Lock(id)}
	_, err := r.runScript(ctx, op, moveToFailedCmd, keys, id, reason, r.clock.Now().UnixMilli(), token)
	return wrapLockMismatch(op, err)
}

// KEYS[1] -> active key
// KEYS[2] -> wait key
// KEYS[3] -> failed key
// ARGV[1] -> max stalled count
// ARGV[2] -> now unix ms
// ARGV[3] -> key prefix "<prefix>:<queue>:"
// ARGV[4] -> failure reason recorded on jobs that exceed the stall limit
var moveUnlockedJobsToWaitCmd = redis.NewScript(`
local ids = redis.call("LRANGE", KEYS[1], 0, -1)
local failed = {}
local stalled = {}
for _, id in ipairs(ids) do
	local lockKey = ARGV[3] .. id .. ":lock"
	if redis.call("EXISTS", lockKey) == 0 then
		local stalledKey = ARGV[3] .. id .. ":stalled-count"
		local count = tonumber(redis.call("INCR", stalledKey))
		redis.call("LREM", KEYS[1], 0, id)
		if count > tonumber(ARGV[1]) then
			redis.call("SADD", KEYS[3], id)
			redis.call("DEL", stalledKey)
			redis.call("HSET", ARGV[3] .. "job:" .. id, "failedReason", ARGV[4], "finishedOn", ARGV[2])
			table.insert(failed, id)
		else
			redis.call("LPUSH", KEYS[2], id)
			table.insert(stalled, id)
		end
	end
end
return {failed, stalled}`)

// MoveUnlockedJobsToWait implements the stalled-job sweep described in
// spec §4.3. A job that exceeds the stall limit has reason recorded as
// its failedReason, same as MoveToFailed does for handler-driven failures.
func (r *RDB) MoveUnlockedJobsToWait(ctx context.Context, kn *base.KeyNamer, reason string) ([]string, []string, error) {
	op := errors.Op("rdb.MoveUnlockedJobsToWait")
	keys := []string{kn.Active(), kn.Wait(), kn.Failed()}
	res, err := r.runScript(ctx, op, moveUnlockedJobsToWaitCmd, keys, base.MaxStalledJobCount, r.clock.Now().UnixMilli(), kn.Prefix+":"+kn.Name+":", reason)
	if err != nil {
		return nil, nil, err
	}
	rows, ok := res.([]interface{})
	if !ok || len(rows) != 2 {
		return nil, nil, errors.E(op, errors.Internal, "unexpected script return shape")
	}
	failedIDs, err := cast.ToStringSliceE(rows[0])
	if err != nil {
		return nil, nil, errors.E(op, errors.Internal, fmt.Sprintf("cast error: %v", err))
	}
	stalledIDs, err := cast.ToStringSliceE(rows[1])
	if err != nil {
		return nil, nil, errors.E(op, errors.Internal, fmt.Sprintf("cast error: %v", err))
	}
	return failedIDs, stalledIDs, nil
}

// KEYS[1] -> source key (wait when pausing, paused when resuming)
// KEYS[2] -> destination key
// KEYS[3] -> meta-paused key
// KEYS[4] -> paused channel
// ARGV[1] -> mode: "paused" | "resumed"
var pauseResumeGlobalCmd = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("RENAME", KEYS[1], KEYS[2])
end
if ARGV[1] == "paused" then
	redis.call("SET", KEYS[3], "1")
else
	redis.call("DEL", KEYS[3])
end
redis.call("PUBLISH", KEYS[4], ARGV[1])
return redis.status_reply("OK")`)

// PauseResumeGlobal renames wait<->paused, toggles meta-paused, and
// publishes mode on the paused channel.
func (r *RDB) PauseResumeGlobal(ctx context.Context, kn *base.KeyNamer, mode string) error {
	op := errors.Op("rdb.PauseResumeGlobal")
	var src, dst string
	if mode == "paused" {
		src, dst = kn.Wait(), kn.Paused()
	} else {
		src, dst = kn.Paused(), kn.Wait()
	}
	keys := []string{src, dst, kn.MetaPaused(), kn.PausedChannel()}
	_, err := r.runScript(ctx, op, pauseResumeGlobalCmd, keys, mode)
	return err
}

// KEYS[1] -> collection key (completed or failed set)
// ARGV[1] -> now unix ms
// ARGV[2] -> limit
// ARGV[3] -> key prefix "<prefix>:<queue>:"
//
// A job is eligible once now >= finishedOn + retention; retention is the
// value captured from JobOptions.RetentionMs at enqueue time, so cleanup
// honors each job's own Retention option rather than one global age.
var cleanJobsInSetCmd = redis.NewScript(`
local ids = redis.call("SMEMBERS", KEYS[1])
local removed = {}
local limit = tonumber(ARGV[2])
for _, id in ipairs(ids) do
	if #removed >= limit then
		break
	end
	local jobKey = ARGV[3] .. "job:" .. id
	local finishedOn = tonumber(redis.call("HGET", jobKey, "finishedOn") or "0")
	local retention = tonumber(redis.call("HGET", jobKey, "retention") or "0")
	if tonumber(ARGV[1]) >= finishedOn + retention then
		redis.call("SREM", KEYS[1], id)
		redis.call("DEL", jobKey)
		table.insert(removed, id)
	end
end
return removed`)

// CleanJobsInSet removes up to limit terminal jobs from collection whose
// own Retention option has elapsed as of now.
func (r *RDB) CleanJobsInSet(ctx context.Context, kn *base.KeyNamer, collection string, now, limit int64) ([]string, error) {
	op := errors.Op("rdb.CleanJobsInSet")
	var key string
	switch collection {
	case "completed":
		key = kn.Completed()
	case "failed":
		key = kn.Failed()
	default:
		return nil, errors.E(op, errors.FailedPrecondition, fmt.Sprintf("unsupported clean type %q", collection))
	}
	res, err := r.runScript(ctx, op, cleanJobsInSetCmd, []string{key}, now, limit, kn.Prefix+":"+kn.Name+":")
	if err != nil {
		return nil, err
	}
	return cast.ToStringSliceE(res)
}

// GetJob loads and decodes the job hash for id, or nil if it doesn't exist.
func (r *RDB) GetJob(ctx context.Context, kn *base.KeyNamer, id string) (*base.JobMessage, error) {
	op := errors.Op("rdb.GetJob")
	data, err := r.client.HGet(ctx, kn.Job(id), "msg").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.E(op, errors.Internal, fmt.Sprintf("redis error: %v", err))
	}
	msg, err := base.DecodeMessage([]byte(data))
	if err != nil {
		return nil, errors.E(op, errors.Internal, fmt.Sprintf("cannot decode job message: %v", err))
	}
	extra, err := r.client.HGetAll(ctx, kn.Job(id)).Result()
	if err == nil {
		if v, ok := extra["returnValue"]; ok {
			msg.ReturnValue = []byte(v)
		}
		if v, ok := extra["failedReason"]; ok {
			msg.FailedReason = v
		}
		if v, ok := extra["finishedOn"]; ok {
			msg.FinishedOn, _ = cast.ToInt64E(v)
		}
		if v, ok := extra["processedOn"]; ok {
			msg.ProcessedOn, _ = cast.ToInt64E(v)
		}
		if v, ok := extra["attemptsMade"]; ok {
			msg.AttemptsMade, _ = cast.ToIntE(v)
		}
	}
	return msg, nil
}

// RemoveJob deletes id from every collection and drops its hash.
func (r *RDB) RemoveJob(ctx context.Context, kn *base.KeyNamer, id string) error {
	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, kn.Wait(), 0, id)
	pipe.LRem(ctx, kn.Paused(), 0, id)
	pipe.LRem(ctx, kn.Active(), 0, id)
	pipe.ZRem(ctx, kn.Delayed(), id)
	pipe.ZRem(ctx, kn.Priority(), id)
	pipe.SRem(ctx, kn.Completed(), id)
	pipe.SRem(ctx, kn.Failed(), id)
	pipe.Del(ctx, kn.Job(id))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.E("rdb.RemoveJob", errors.Internal, fmt.Sprintf("redis error: %v", err))
	}
	return nil
}

// GetJobCounts reports the size of every collection.
func (r *RDB) GetJobCounts(ctx context.Context, kn *base.KeyNamer) (*base.JobCounts, error) {
	pipe := r.client.TxPipeline()
	wait := pipe.LLen(ctx, kn.Wait())
	active := pipe.LLen(ctx, kn.Active())
	delayed := pipe.ZCard(ctx, kn.Delayed())
	completed := pipe.SCard(ctx, kn.Completed())
	failed := pipe.SCard(ctx, kn.Failed())
	paused := pipe.LLen(ctx, kn.Paused())
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.E("rdb.GetJobCounts", errors.Internal, fmt.Sprintf("redis error: %v", err))
	}
	return &base.JobCounts{
		Waiting:   wait.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Paused:    paused.Val(),
	}, nil
}

// ListRange returns job ids from the named collection.
func (r *RDB) ListRange(ctx context.Context, kn *base.KeyNamer, collection string, start, stop int64) ([]string, error) {
	op := errors.Op("rdb.ListRange")
	switch collection {
	case "wait":
		return r.client.LRange(ctx, kn.Wait(), start, stop).Result()
	case "paused":
		return r.client.LRange(ctx, kn.Paused(), start, stop).Result()
	case "active":
		return r.client.LRange(ctx, kn.Active(), start, stop).Result()
	case "delayed":
		return r.client.ZRange(ctx, kn.Delayed(), start, stop).Result()
	case "completed":
		return r.client.SMembers(ctx, kn.Completed()).Result()
	case "failed":
		return r.client.SMembers(ctx, kn.Failed()).Result()
	default:
		return nil, errors.E(op, errors.FailedPrecondition, fmt.Sprintf("unsupported collection %q", collection))
	}
}

// Empty truncates wait, paused, delayed and drops meta-paused.
func (r *RDB) Empty(ctx context.Context, kn *base.KeyNamer) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, kn.Wait())
	pipe.Del(ctx, kn.Paused())
	pipe.Del(ctx, kn.Delayed())
	pipe.Del(ctx, kn.MetaPaused())
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.E("rdb.Empty", errors.Internal, fmt.Sprintf("redis error: %v", err))
	}
	return nil
}

// ListQueues returns the queue names registered under keyPrefix.
func (r *RDB) ListQueues(ctx context.Context, keyPrefix string) ([]string, error) {
	names, err := r.client.SMembers(ctx, keyPrefix+":queues").Result()
	if err != nil {
		return nil, errors.E("rdb.ListQueues", errors.Internal, fmt.Sprintf("redis error: %v", err))
	}
	return names, nil
}

// InfoServerVersion queries the Redis server version via INFO. Queue does
// not call it, so no minimum store version is checked at startup.
func (r *RDB) InfoServerVersion(ctx context.Context) (string, error) {
	info, err := r.client.Info(ctx, "server").Result()
	if err != nil {
		return "", errors.E("rdb.InfoServerVersion", errors.Internal, fmt.Sprintf("redis error: %v", err))
	}
	return parseRedisVersion(info), nil
}

func parseRedisVersion(info string) string {
	const marker = "redis_version:"
	idx := indexOf(info, marker)
	if idx == -1 {
		return ""
	}
	rest := info[idx+len(marker):]
	end := indexOf(rest, "\r\n")
	if end == -1 {
		end = indexOf(rest, "\n")
	}
	if end == -1 {
		return rest
	}
	return rest[:end]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
