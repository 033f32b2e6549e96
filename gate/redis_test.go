package gate

import (
	"io"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisGate(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRedis(client, log), mr
}

func TestRedisAcquireRelease(t *testing.T) {
	g, _ := newTestRedisGate(t)

	require.True(t, g.TryAcquire(1))
	assert.False(t, g.TryAcquire(1))
	assert.True(t, g.TryAcquire(2))

	g.Release(1)
	assert.True(t, g.TryAcquire(1))
}

func TestRedisSlotExpires(t *testing.T) {
	g, mr := newTestRedisGate(t)

	require.True(t, g.TryAcquire(1))
	assert.False(t, g.TryAcquire(1))

	// A process that died before Release must not wedge the user forever.
	mr.FastForward(slotTTL)
	assert.True(t, g.TryAcquire(1))
}

func TestRedisFailsClosedWhenUnreachable(t *testing.T) {
	g, mr := newTestRedisGate(t)
	mr.Close()

	assert.False(t, g.TryAcquire(1), "an unreachable gate store must deny, not admit")
}
