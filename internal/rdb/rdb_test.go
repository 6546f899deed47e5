package rdb

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/wharfq/wharfq/internal/base"
	"github.com/wharfq/wharfq/internal/errors"
	"github.com/wharfq/wharfq/internal/lock"
	"github.com/wharfq/wharfq/internal/timeutil"
)

func setupRDB(t *testing.T) (*RDB, *miniredis.Miniredis, *timeutil.SimulatedClock) {
	r, _, mr, clock := setupRDBWithClient(t)
	return r, mr, clock
}

func setupRDBWithClient(t *testing.T) (*RDB, redis.UniversalClient, *miniredis.Miniredis, *timeutil.SimulatedClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	r := NewRDB(client, client)
	clock := timeutil.NewSimulatedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r.SetClock(clock)
	return r, client, mr, clock
}

// takeTestLock obtains a real ownership lock for id the way the dispatcher
// does, so tests can exercise MoveToCompleted/MoveToFailed with a token
// that will actually match.
func takeTestLock(t *testing.T, client redis.UniversalClient, kn *base.KeyNamer, id string) string {
	t.Helper()
	mgr := lock.NewManager([]redis.UniversalClient{client})
	lease, err := mgr.TakeLock(context.Background(), kn.Lock(id), time.Minute)
	require.NoError(t, err)
	return lease.Token()
}

func TestAddJobPlacesOnWait(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")

	msg := &base.JobMessage{ID: "job-1", Timestamp: 1}
	require.NoError(t, r.AddJob(ctx, kn, msg))

	ids, err := r.ListRange(ctx, kn, "wait", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, ids)

	queues, err := r.ListQueues(ctx, "wharf")
	require.NoError(t, err)
	require.Contains(t, queues, "emails")
}

func TestAddJobWithDelayPlacesOnDelayed(t *testing.T) {
	r, _, clock := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")

	msg := &base.JobMessage{ID: "job-1", Opts: base.JobOptions{Delay: 60_000}}
	require.NoError(t, r.AddJob(ctx, kn, msg))

	ids, err := r.ListRange(ctx, kn, "wait", 0, -1)
	require.NoError(t, err)
	require.Empty(t, ids)

	promoted, next, ok, err := r.UpdateDelaySet(ctx, kn, clock.Now().UnixMilli())
	require.NoError(t, err)
	require.Empty(t, promoted)
	require.True(t, ok)
	require.Equal(t, clock.Now().UnixMilli()+60_000, next)
}

func TestAddJobRespectsMetaPaused(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")

	require.NoError(t, r.PauseResumeGlobal(ctx, kn, "paused"))
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))

	waiting, err := r.ListRange(ctx, kn, "wait", 0, -1)
	require.NoError(t, err)
	require.Empty(t, waiting)

	paused, err := r.ListRange(ctx, kn, "paused", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, paused)
}

func TestMoveToActiveNonBlocking(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))

	msg, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "job-1", msg.ID)
	require.Equal(t, 1, msg.AttemptsMade)

	active, err := r.ListRange(ctx, kn, "active", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, active)
}

func TestMoveToActiveEmptyReturnsNil(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")

	msg, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestMoveToCompletedStoresReturnValue(t *testing.T) {
	r, client, _, _ := setupRDBWithClient(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)
	token := takeTestLock(t, client, kn, "job-1")

	require.NoError(t, r.MoveToCompleted(ctx, kn, "job-1", []byte(`"ok"`), token))

	active, err := r.ListRange(ctx, kn, "active", 0, -1)
	require.NoError(t, err)
	require.Empty(t, active)

	completed, err := r.ListRange(ctx, kn, "completed", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, completed)

	stored, err := r.GetJob(ctx, kn, "job-1")
	require.NoError(t, err)
	require.Equal(t, `"ok"`, string(stored.ReturnValue))
}

func TestMoveToCompletedRejectsStaleToken(t *testing.T) {
	r, client, _, _ := setupRDBWithClient(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)
	takeTestLock(t, client, kn, "job-1")

	err = r.MoveToCompleted(ctx, kn, "job-1", []byte(`"ok"`), "a-token-nobody-holds")
	require.ErrorIs(t, err, errors.ErrLockNotHeld)

	active, err := r.ListRange(ctx, kn, "active", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, active, "a rejected transition must leave active untouched")
}

func TestMoveToFailedRecordsReason(t *testing.T) {
	r, client, _, _ := setupRDBWithClient(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)
	token := takeTestLock(t, client, kn, "job-1")

	require.NoError(t, r.MoveToFailed(ctx, kn, "job-1", "boom", token))

	failed, err := r.ListRange(ctx, kn, "failed", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, failed)

	stored, err := r.GetJob(ctx, kn, "job-1")
	require.NoError(t, err)
	require.Equal(t, "boom", stored.FailedReason)
}

func TestMoveToFailedRejectsStaleToken(t *testing.T) {
	r, client, _, _ := setupRDBWithClient(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)
	takeTestLock(t, client, kn, "job-1")

	err = r.MoveToFailed(ctx, kn, "job-1", "boom", "a-token-nobody-holds")
	require.ErrorIs(t, err, errors.ErrLockNotHeld)

	active, err := r.ListRange(ctx, kn, "active", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, active, "a rejected transition must leave active untouched")
}

func TestRetryJobImmediate(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)

	require.NoError(t, r.RetryJob(ctx, kn, "job-1", 0, "tok"))

	waiting, err := r.ListRange(ctx, kn, "wait", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, waiting)

	active, err := r.ListRange(ctx, kn, "active", 0, -1)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestRetryJobWithDelayGoesToDelayed(t *testing.T) {
	r, _, clock := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)

	require.NoError(t, r.RetryJob(ctx, kn, "job-1", 30_000, "tok"))

	delayed, err := r.ListRange(ctx, kn, "delayed", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, delayed)

	promoted, next, ok, err := r.UpdateDelaySet(ctx, kn, clock.Now().UnixMilli())
	require.NoError(t, err)
	require.Empty(t, promoted)
	require.True(t, ok)
	require.Equal(t, clock.Now().UnixMilli()+30_000, next)
}

func TestMoveUnlockedJobsToWaitRequeuesFirstStall(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)

	failedIDs, stalledIDs, err := r.MoveUnlockedJobsToWait(ctx, kn, "job stalled more than allowable limit")
	require.NoError(t, err)
	require.Empty(t, failedIDs)
	require.Equal(t, []string{"job-1"}, stalledIDs)

	waiting, err := r.ListRange(ctx, kn, "wait", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, waiting)
}

func TestMoveUnlockedJobsToWaitFailsAfterMaxStalls(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))

	const reason = "job stalled more than allowable limit"
	for i := 0; i <= base.MaxStalledJobCount; i++ {
		_, err := r.MoveToActive(ctx, kn, false, 0)
		require.NoError(t, err)
		_, _, err = r.MoveUnlockedJobsToWait(ctx, kn, reason)
		require.NoError(t, err)
	}

	failed, err := r.ListRange(ctx, kn, "failed", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, failed)

	stored, err := r.GetJob(ctx, kn, "job-1")
	require.NoError(t, err)
	require.Equal(t, reason, stored.FailedReason)
	require.NotZero(t, stored.FinishedOn)
}

func TestMoveUnlockedJobsToWaitSkipsLockedJobs(t *testing.T) {
	r, mr, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)
	require.NoError(t, mr.Set(kn.Lock("job-1"), "held"))

	failedIDs, stalledIDs, err := r.MoveUnlockedJobsToWait(ctx, kn, "job stalled more than allowable limit")
	require.NoError(t, err)
	require.Empty(t, failedIDs)
	require.Empty(t, stalledIDs)

	active, err := r.ListRange(ctx, kn, "active", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, active)
}

func TestPauseResumeGlobal(t *testing.T) {
	r, mr, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))

	require.NoError(t, r.PauseResumeGlobal(ctx, kn, "paused"))
	require.True(t, mr.Exists(kn.MetaPaused()))
	paused, err := r.ListRange(ctx, kn, "paused", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, paused)

	require.NoError(t, r.PauseResumeGlobal(ctx, kn, "resumed"))
	require.False(t, mr.Exists(kn.MetaPaused()))
	waiting, err := r.ListRange(ctx, kn, "wait", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, waiting)
}

func TestCleanJobsInSetRemovesExpiredOnly(t *testing.T) {
	r, client, _, clock := setupRDBWithClient(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")

	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "old", Opts: base.JobOptions{RetentionMs: 1000}}))
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "new", Opts: base.JobOptions{RetentionMs: 1000}}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)
	_, err = r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)
	oldToken := takeTestLock(t, client, kn, "old")
	require.NoError(t, r.MoveToCompleted(ctx, kn, "old", nil, oldToken))

	clock.AdvanceTime(2 * time.Second)
	newToken := takeTestLock(t, client, kn, "new")
	require.NoError(t, r.MoveToCompleted(ctx, kn, "new", nil, newToken))

	removed, err := r.CleanJobsInSet(ctx, kn, "completed", clock.Now().UnixMilli(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, removed)

	remaining, err := r.ListRange(ctx, kn, "completed", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"new"}, remaining)
}

func TestGetJobRoundTrip(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1", Opts: base.JobOptions{Attempts: 3}}))

	msg, err := r.GetJob(ctx, kn, "job-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "job-1", msg.ID)
	require.Equal(t, 3, msg.Opts.Attempts)
}

func TestGetJobMissingReturnsNil(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	msg, err := r.GetJob(ctx, kn, "nope")
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestRemoveJobDropsFromEveryCollection(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))

	require.NoError(t, r.RemoveJob(ctx, kn, "job-1"))

	msg, err := r.GetJob(ctx, kn, "job-1")
	require.NoError(t, err)
	require.Nil(t, msg)

	waiting, err := r.ListRange(ctx, kn, "wait", 0, -1)
	require.NoError(t, err)
	require.Empty(t, waiting)
}

func TestGetJobCounts(t *testing.T) {
	r, _, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-2"}))
	_, err := r.MoveToActive(ctx, kn, false, 0)
	require.NoError(t, err)

	counts, err := r.GetJobCounts(ctx, kn)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts.Waiting)
	require.Equal(t, int64(1), counts.Active)
}

func TestEmptyTruncatesQueue(t *testing.T) {
	r, mr, _ := setupRDB(t)
	ctx := context.Background()
	kn := base.NewKeyNamer("wharf", "emails")
	require.NoError(t, r.AddJob(ctx, kn, &base.JobMessage{ID: "job-1"}))
	require.NoError(t, r.PauseResumeGlobal(ctx, kn, "paused"))

	require.NoError(t, r.Empty(ctx, kn))

	require.False(t, mr.Exists(kn.Wait()))
	require.False(t, mr.Exists(kn.Paused()))
	require.False(t, mr.Exists(kn.MetaPaused()))
}
