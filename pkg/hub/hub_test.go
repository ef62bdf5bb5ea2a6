package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attach registers a bare client (no websocket) for testing fan-out.
func attach(t *testing.T, h *Hub, buf int) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan Message, buf)}
	h.register <- c
	return c
}

func TestHub_BroadcastFanOut(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a := attach(t, h, 4)
	b := attach(t, h, 4)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 1}))

	for _, c := range []*Client{a, b} {
		select {
		case m := <-c.send:
			assert.False(t, m.Binary)
			assert.JSONEq(t, `{"n":1}`, string(m.Data))
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	slow := attach(t, h, 1)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	h.BroadcastBinary([]byte{1})
	h.BroadcastBinary([]byte{2})

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)

	m, ok := <-slow.send
	assert.True(t, ok)
	assert.True(t, m.Binary)
	_, ok = <-slow.send
	assert.False(t, ok, "send channel closed after drop")
}

func TestHub_StopClosesClients(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := attach(t, h, 1)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	<-h.Done()

	_, ok := <-c.send
	assert.False(t, ok)
	assert.Nil(t, NewClient(h, nil), "registration after stop is refused")
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New("idle") // Run never started
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.BroadcastBinary([]byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked")
	}
}

func TestClient_SendReachesOnlyThatClient(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a := attach(t, h, 4)
	b := attach(t, h, 4)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, a.SendJSON(map[string]string{"type": "hello"}))

	select {
	case m := <-a.send:
		assert.JSONEq(t, `{"type":"hello"}`, string(m.Data))
	case <-time.After(time.Second):
		t.Fatal("direct message not delivered")
	}

	h.BroadcastBinary([]byte{9})
	select {
	case m := <-b.send:
		assert.True(t, m.Binary, "b sees the broadcast, not the hello")
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestClient_SendAfterStop(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := attach(t, h, 1)
	cancel()
	<-h.Done()

	assert.False(t, c.Send(Message{Data: []byte("{}")}))
}
