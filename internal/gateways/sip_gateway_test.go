package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/voice-broadcast/internal/queue"
	"github.com/nimasrn/voice-broadcast/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeHealth_StateTransitions(t *testing.T) {
	h := NewBridgeHealth(2, 4)

	assert.Equal(t, StateHealthy, h.State())

	h.RecordFailure()
	assert.Equal(t, StateHealthy, h.State())

	h.RecordFailure()
	assert.Equal(t, StateDegraded, h.State())

	h.RecordFailure()
	h.RecordFailure()
	assert.Equal(t, StateUnreachable, h.State())

	// One success resets the streak.
	h.RecordSuccess()
	assert.Equal(t, StateHealthy, h.State())
	assert.Equal(t, int32(0), h.ConsecutiveFails.Load())
}

func TestBridgeHealth_SuccessRate(t *testing.T) {
	h := NewBridgeHealth(3, 10)

	assert.Equal(t, 1.0, h.SuccessRate())

	h.RecordSuccess()
	h.RecordFailure()
	assert.InDelta(t, 0.5, h.SuccessRate(), 0.001)
}

func setupFeed(t *testing.T, stream string) (*miniredis.Miniredis, *queue.Stream) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	feed, err := queue.NewStream(adapter, queue.Config{
		Stream:       stream,
		Group:        "test-dispatcher",
		Consumer:     "test-1",
		PollInterval: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	return mr, feed
}

func TestSIPGateway_RoutesEventsByHandle(t *testing.T) {
	mr, feed := setupFeed(t, "gw:events")
	defer mr.Close()

	g, err := NewSIPGateway(SIPGatewayConfig{BaseURL: "http://bridge.invalid"}, feed)
	require.NoError(t, err)
	defer feed.Stop(time.Second)

	// Register a route the way PlaceCall would.
	events := make(chan CallEvent, 8)
	g.mu.Lock()
	g.routes["h-42"] = events
	g.mu.Unlock()

	ctx := context.Background()
	_, err = feed.PublishJSON(ctx, CallEvent{Handle: "h-42", Type: EventAnswered, Timestamp: time.Now()})
	require.NoError(t, err)
	_, err = feed.PublishJSON(ctx, CallEvent{Handle: "h-unknown", Type: EventBusy, Timestamp: time.Now()})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "h-42", ev.Handle)
		assert.Equal(t, EventAnswered, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not routed")
	}

	// The unknown-handle event is dropped, not queued anywhere.
	select {
	case ev := <-events:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSIPGateway_ReleaseClosesRoute(t *testing.T) {
	mr, feed := setupFeed(t, "gw:events2")
	defer mr.Close()

	g, err := NewSIPGateway(SIPGatewayConfig{BaseURL: "http://bridge.invalid"}, feed)
	require.NoError(t, err)
	defer feed.Stop(time.Second)

	events := make(chan CallEvent, 8)
	g.mu.Lock()
	g.routes["h-1"] = events
	g.mu.Unlock()

	g.Release("h-1")

	_, open := <-events
	assert.False(t, open)

	// Releasing twice is harmless.
	g.Release("h-1")
}

func TestSIPGateway_ReleaseDuringRouting(t *testing.T) {
	g, err := NewSIPGateway(SIPGatewayConfig{BaseURL: "http://bridge.invalid"}, nil)
	require.NoError(t, err)

	payload, err := json.Marshal(CallEvent{Handle: "h-1", Type: EventEnded, Timestamp: time.Now()})
	require.NoError(t, err)

	// A late bridge event may race the lifecycle releasing the handle; the
	// event must be dropped, never sent into the closed channel.
	for i := 0; i < 2000; i++ {
		events := make(chan CallEvent, 1)
		g.mu.Lock()
		g.routes["h-1"] = events
		g.mu.Unlock()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.Release("h-1")
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, g.routeEvent(context.Background(), queue.Delivery{Data: payload}))
		}()
		wg.Wait()
	}
}

func TestSIPGateway_PlaceCallUnreachableBridge(t *testing.T) {
	g, err := NewSIPGateway(SIPGatewayConfig{
		BaseURL:        "http://127.0.0.1:1", // nothing listens here
		RequestTimeout: 200 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	_, err = g.PlaceCall(context.Background(), PlaceRequest{
		CallID:      "c-1",
		PhoneNumber: "+1234567890",
	})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, int32(1), g.Health().ConsecutiveFails.Load())
}

func TestSIPGateway_RequiresBaseURL(t *testing.T) {
	_, err := NewSIPGateway(SIPGatewayConfig{}, nil)
	assert.Error(t, err)
}
