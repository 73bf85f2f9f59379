package notifications

import (
	"context"
	"testing"
	"time"

	"retroboard/internal/observability"
	"retroboard/internal/realtime"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRegisterAndUnregister(t *testing.T) {
	h := NewHub(observability.NopLogger())

	c1, err := h.Register(1, 10, nil)
	require.NoError(t, err)
	c2, err := h.Register(1, 11, nil)
	require.NoError(t, err)
	_, err = h.Register(2, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, h.totalConns)

	h.UnregisterClient(c1)
	h.UnregisterClient(c2)
	assert.Equal(t, 1, h.totalConns)
	_, ok := h.conns[1]
	assert.False(t, ok, "empty board entry is removed")

	// Unregistering twice must not corrupt the count.
	h.UnregisterClient(c1)
	assert.Equal(t, 1, h.totalConns)
}

func TestHubPerBoardConnectionLimit(t *testing.T) {
	h := NewHub(observability.NopLogger())

	for i := 0; i < maxConnsPerBoard; i++ {
		_, err := h.Register(1, uint(i+1), nil)
		require.NoError(t, err)
	}
	_, err := h.Register(1, 999, nil)
	assert.Error(t, err)

	// Other boards are unaffected by one board being full.
	_, err = h.Register(2, 1, nil)
	assert.NoError(t, err)
}

func TestHubBroadcastReachesOnlyThatBoard(t *testing.T) {
	h := NewHub(observability.NopLogger())

	c1, err := h.Register(1, 10, nil)
	require.NoError(t, err)
	c2, err := h.Register(2, 10, nil)
	require.NoError(t, err)

	h.Broadcast(1, `{"kind":"POST_DELETE"}`)

	select {
	case msg := <-c1.Send:
		assert.Equal(t, `{"kind":"POST_DELETE"}`, string(msg))
	default:
		t.Fatal("board 1 client did not receive the broadcast")
	}
	select {
	case <-c2.Send:
		t.Fatal("board 2 client must not receive board 1 events")
	default:
	}
}

func TestHubDropsMessagesForSlowConsumers(t *testing.T) {
	h := NewHub(observability.NopLogger())
	c, err := h.Register(1, 10, nil)
	require.NoError(t, err)

	// Fill the buffer and then some; Broadcast must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(c.Send)+50; i++ {
			h.Broadcast(1, "event")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow consumer")
	}
	assert.Len(t, c.Send, cap(c.Send))
}

func TestHubWiringForwardsBusMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	bus := realtime.NewBus(client, observability.NopLogger())

	h := NewHub(observability.NopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWiring(ctx, bus))

	c, err := h.Register(5, 10, nil)
	require.NoError(t, err)

	env, err := realtime.NewEnvelope(realtime.KindPostDelete, 3, realtime.PostDeletePayload{ID: 1})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, 5, env))

	select {
	case msg := <-c.Send:
		assert.Contains(t, string(msg), `"POST_DELETE"`)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not forward the bus message")
	}
}
