package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/voice-broadcast/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func testConfig(name string) Config {
	return Config{
		Stream:       name,
		Group:        "test-group",
		Consumer:     "test-consumer",
		PollInterval: 50 * time.Millisecond,
		ClaimIdle:    5 * time.Second,
		BatchSize:    10,
		MaxLen:       1000,
	}
}

func TestStream_PublishAndConsume(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	stream, err := NewStream(adapter, testConfig("test:events"))
	require.NoError(t, err)

	ctx := context.Background()
	type payload struct {
		Handle string `json:"handle"`
		Kind   string `json:"kind"`
	}

	_, err = stream.PublishJSON(ctx, payload{Handle: "h-1", Kind: "answered"})
	require.NoError(t, err)

	received := make(chan Delivery, 1)
	err = stream.Consume(func(ctx context.Context, d Delivery) error {
		received <- d
		return nil
	})
	require.NoError(t, err)

	select {
	case d := <-received:
		var p payload
		require.NoError(t, json.Unmarshal(d.Data, &p))
		assert.Equal(t, "h-1", p.Handle)
		assert.Equal(t, "answered", p.Kind)
		assert.False(t, d.Redelivered)
	case <-time.After(2 * time.Second):
		t.Fatal("entry not received")
	}

	require.NoError(t, stream.Stop(time.Second))
}

func TestStream_FailedHandlerLeavesEntryPending(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	cfg := testConfig("test:pending")
	stream, err := NewStream(adapter, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = stream.Publish(ctx, []byte("boom"))
	require.NoError(t, err)

	handled := make(chan struct{}, 1)
	err = stream.Consume(func(ctx context.Context, d Delivery) error {
		handled <- struct{}{}
		return assert.AnError
	})
	require.NoError(t, err)

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("entry not handled")
	}
	require.NoError(t, stream.Stop(time.Second))

	// Not acked: the entry is still pending for the group.
	pending, err := adapter.XPendingExt(cfg.Stream, cfg.Group, "-", "+", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestStream_Len(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	stream, err := NewStream(adapter, testConfig("test:len"))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err = stream.Publish(ctx, []byte("x"))
		require.NoError(t, err)
	}

	n, err := stream.Len()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestStream_RequiresName(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	_, err := NewStream(adapter, Config{})
	assert.Error(t, err)
}
