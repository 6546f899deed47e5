package wharfq

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/wharfq/wharfq/internal/lock"
)

// newMiniredisClient starts an embedded Redis-compatible server for the
// duration of the test and returns a client connected to it.
func newMiniredisClient(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// newLockManagerForTest builds a single-client lock.Manager backed by
// client, the shape every background component that takes job leases
// expects.
func newLockManagerForTest(client redis.UniversalClient) *lock.Manager {
	return lock.NewManager([]redis.UniversalClient{client})
}
