//go:build integration

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestStore(t *testing.T) {
	s := NewStore(newRedis(t), time.Minute)
	ctx := context.Background()

	_, claimed, err := s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, claimed)

	_, _, err = s.Begin(ctx, "k1")
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, s.Complete(ctx, "k1", "order-1"))
	result, claimed, err := s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-1", result)
}

func TestStore_Abort(t *testing.T) {
	s := NewStore(newRedis(t), time.Minute)
	ctx := context.Background()

	_, claimed, err := s.Begin(ctx, "k2")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.Abort(ctx, "k2"))

	_, claimed, err = s.Begin(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, claimed)
}
