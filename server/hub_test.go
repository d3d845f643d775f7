package server

import (
	"context"
	"testing"
	"time"

	"github.com/MattCruikshank/goft/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	// Cleanups run last in, first out: the hub stops before the leak check.
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return hub, cancel, stopped
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for data")
		return nil
	}
}

func waitClosed(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("send channel not closed")
		}
	}
}

func TestHubBroadcast(t *testing.T) {
	hub, _, _ := startHub(t)

	alice := &models.User{ID: 1, Name: "alice"}
	bob := &models.User{ID: 2, Name: "bob"}
	tab1 := hub.NewClient(nil, alice, 1, nil)
	tab2 := hub.NewClient(nil, alice, 1, nil)
	other := hub.NewClient(nil, bob, 1, nil)
	elsewhere := hub.NewClient(nil, bob, 2, nil)
	for _, c := range []*Client{tab1, tab2, other, elsewhere} {
		require.True(t, hub.Register(c))
	}
	require.Eventually(t, func() bool { return hub.ClientCount(1) == 3 && hub.ClientCount(2) == 1 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast(1, alice.ID, []byte("own"), []byte("others"))
	assert.Equal(t, "own", string(receive(t, tab1)))
	assert.Equal(t, "own", string(receive(t, tab2)))
	assert.Equal(t, "others", string(receive(t, other)))

	// The hub delivers in order, so room 2's first delivery proves it missed room 1's.
	hub.Broadcast(2, bob.ID, []byte("room2"), []byte("room2"))
	assert.Equal(t, "room2", string(receive(t, elsewhere)))
}

func TestHubSendTo(t *testing.T) {
	hub, _, _ := startHub(t)

	alice := &models.User{ID: 1, Name: "alice"}
	tab1 := hub.NewClient(nil, alice, 1, nil)
	tab2 := hub.NewClient(nil, alice, 1, nil)
	require.True(t, hub.Register(tab1))
	require.True(t, hub.Register(tab2))

	hub.SendTo(tab1, []byte("error"))
	hub.Broadcast(1, alice.ID, []byte("next"), nil)

	assert.Equal(t, "error", string(receive(t, tab1)))
	assert.Equal(t, "next", string(receive(t, tab1)))
	assert.Equal(t, "next", string(receive(t, tab2)))
}

func TestHubUnregister(t *testing.T) {
	hub, _, _ := startHub(t)

	c := hub.NewClient(nil, &models.User{ID: 1, Name: "alice"}, 1, nil)
	require.True(t, hub.Register(c))
	hub.Unregister(c)
	waitClosed(t, c)
	assert.Equal(t, 0, hub.ClientCount(1))

	// A second unregister is a no-op.
	hub.Unregister(c)
	hub.SendTo(c, []byte("ignored"))
}

func TestHubDropsSlowClient(t *testing.T) {
	hub, _, _ := startHub(t)

	slow := hub.NewClient(nil, &models.User{ID: 1, Name: "alice"}, 1, nil)
	require.True(t, hub.Register(slow))

	for i := 0; i <= cap(slow.send); i++ {
		hub.Broadcast(1, 2, nil, []byte("x"))
	}
	require.Eventually(t, func() bool { return hub.ClientCount(1) == 0 }, 2*time.Second, 10*time.Millisecond)
	waitClosed(t, slow)
}

func TestHubRunStopsOnCancel(t *testing.T) {
	hub, cancel, stopped := startHub(t)

	c := hub.NewClient(nil, &models.User{ID: 1, Name: "alice"}, 7, nil)
	require.True(t, hub.Register(c))

	cancel()
	<-stopped
	waitClosed(t, c)
	assert.Equal(t, 0, hub.ClientCount(7))

	late := hub.NewClient(nil, &models.User{ID: 2, Name: "bob"}, 7, nil)
	assert.False(t, hub.Register(late))
	hub.Unregister(c)
	hub.Broadcast(7, 1, nil, nil)
}
