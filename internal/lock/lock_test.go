package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/wharfq/wharfq/internal/errors"
)

func newTestClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestTakeLockSingleClient(t *testing.T) {
	m := NewManager([]redis.UniversalClient{newTestClient(t)})
	ctx := context.Background()

	lease, err := m.TakeLock(ctx, "wharf:emails:job-1:lock", 5*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, lease.Token())
}

func TestTakeLockConflictFails(t *testing.T) {
	client := newTestClient(t)
	m := NewManager([]redis.UniversalClient{client})
	ctx := context.Background()

	_, err := m.TakeLock(ctx, "wharf:emails:job-1:lock", 5*time.Second)
	require.NoError(t, err)

	_, err = m.TakeLock(ctx, "wharf:emails:job-1:lock", 5*time.Second)
	require.Error(t, err)
	require.Equal(t, errors.FailedPrecondition, errors.CodeOf(err))
}

func TestReleaseLockAllowsReacquire(t *testing.T) {
	client := newTestClient(t)
	m := NewManager([]redis.UniversalClient{client})
	ctx := context.Background()

	lease, err := m.TakeLock(ctx, "wharf:emails:job-1:lock", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, m.ReleaseLock(ctx, lease))

	_, err = m.TakeLock(ctx, "wharf:emails:job-1:lock", 5*time.Second)
	require.NoError(t, err)
}

func TestRenewLockExtendsTTL(t *testing.T) {
	client := newTestClient(t)
	m := NewManager([]redis.UniversalClient{client})
	ctx := context.Background()

	lease, err := m.TakeLock(ctx, "wharf:emails:job-1:lock", 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, m.RenewLock(ctx, lease, 5*time.Second))
}

func TestQuorumSize(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 2: 2, 3: 2, 5: 3}
	for n, want := range cases {
		if got := quorumSize(n); got != want {
			t.Errorf("quorumSize(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestRedlockQuorumAcrossMultipleClients(t *testing.T) {
	clients := []redis.UniversalClient{newTestClient(t), newTestClient(t), newTestClient(t)}
	m := NewManager(clients, WithRedlock(0.01, 0, 0))
	ctx := context.Background()

	lease, err := m.TakeLock(ctx, "wharf:emails:job-1:lock", 5*time.Second)
	require.NoError(t, err)
	require.Len(t, lease.locks, 3)
	require.Equal(t, 2, lease.quorum)
}

func TestRedlockQuorumToleratesMinorityFailure(t *testing.T) {
	healthy := []redis.UniversalClient{newTestClient(t), newTestClient(t), newTestClient(t)}
	// Pre-take the lock on one of the three backing clients so that client
	// alone fails to obtain it, leaving a majority (2/3) still available.
	pre := NewManager([]redis.UniversalClient{healthy[0]})
	ctx := context.Background()
	_, err := pre.TakeLock(ctx, "wharf:emails:job-1:lock", 5*time.Second)
	require.NoError(t, err)

	m := NewManager(healthy, WithRedlock(0.01, 0, 0))
	lease, err := m.TakeLock(ctx, "wharf:emails:job-1:lock", 5*time.Second)
	require.NoError(t, err)
	require.Len(t, lease.locks, 2)
}
