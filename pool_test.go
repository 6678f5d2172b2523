package memd

import (
	"context"
	"testing"
	"time"

	"github.com/pior/memd/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnPool(t *testing.T) *connPool {
	t.Helper()
	d := NewDispatcher(DispatcherConfig{Logger: discardLogger()})
	pool, err := newConnPool(func(context.Context) (*Connection, error) {
		return NewConnection(testutils.NewConnectionMock(), 0, d), nil
	}, 2)
	require.NoError(t, err)
	t.Cleanup(pool.close)
	return pool
}

func TestConnPoolReusesConnections(t *testing.T) {
	pool := newTestConnPool(t)
	ctx := context.Background()

	first, err := pool.acquire(ctx)
	require.NoError(t, err)
	id := first.Value().ID()
	first.Release()

	second, err := pool.acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, second.Value().ID())
	second.Release()

	stats := pool.stats()
	assert.Equal(t, int32(1), stats.TotalConns)
	assert.Equal(t, int32(1), stats.IdleConns)
	assert.Equal(t, uint64(1), stats.CreatedConns)
	assert.Equal(t, uint64(2), stats.AcquireCount)
}

func TestConnPoolSkipsClosedConnections(t *testing.T) {
	pool := newTestConnPool(t)
	ctx := context.Background()

	res, err := pool.acquire(ctx)
	require.NoError(t, err)
	closed := res.Value()
	require.NoError(t, closed.Close())
	<-closed.Done()
	res.Release()

	res, err = pool.acquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, closed.ID(), res.Value().ID())
	assert.False(t, res.Value().IsClosed())
	res.Release()

	require.Eventually(t, func() bool {
		return pool.stats().DestroyedConns == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint64(2), pool.stats().CreatedConns)
}

func TestConnPoolReap(t *testing.T) {
	pool := newTestConnPool(t)
	ctx := context.Background()

	live, err := pool.acquire(ctx)
	require.NoError(t, err)
	dead, err := pool.acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, dead.Value().Close())
	<-dead.Value().Done()
	live.Release()
	dead.Release()

	assert.Equal(t, 1, pool.reap())
	assert.Equal(t, 0, pool.reap())
	require.Eventually(t, func() bool {
		return pool.stats().TotalConns == 1
	}, time.Second, time.Millisecond)
}
