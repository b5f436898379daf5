package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConnection is an in-memory Connection for hub tests.
type mockConnection struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
}

func (m *mockConnection) WriteMessage(_ int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, append([]byte(nil), data...))
	return nil
}

func (m *mockConnection) ReadMessage() (int, []byte, error) {
	select {} // block forever; tests drive writes only
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConnection) SetReadDeadline(time.Time) error  { return nil }
func (m *mockConnection) SetWriteDeadline(time.Time) error { return nil }
func (m *mockConnection) SetReadLimit(int64)               {}
func (m *mockConnection) SetPongHandler(func(string) error) {}
func (m *mockConnection) RemoteAddr() string               { return "127.0.0.1:0" }

func startedHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub
}

func registeredClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := NewClientWithConnection(hub, &mockConnection{}, nil)
	hub.register <- client
	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func recv(t *testing.T, client *Client) []byte {
	t.Helper()
	select {
	case msg := <-client.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_RegisterSendsConnectionMessage(t *testing.T) {
	hub := startedHub(t)
	client := registeredClient(t, hub)

	var env Envelope
	require.NoError(t, json.Unmarshal(recv(t, client), &env))
	assert.Equal(t, TypeConnection, env.Type)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "connected", data["status"])
	assert.Equal(t, client.id, data["client_id"])
}

func TestHub_BroadcastEnvelope(t *testing.T) {
	hub := startedHub(t)
	client := registeredClient(t, hub)
	recv(t, client) // connection greeting

	hub.Broadcast("operation:status", map[string]any{"id": "op-1", "status": "running"})

	var env Envelope
	require.NoError(t, json.Unmarshal(recv(t, client), &env))
	assert.Equal(t, "operation:status", env.Type)
	assert.NotEmpty(t, env.Timestamp)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "running", data["status"])
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	hub := startedHub(t)
	client := registeredClient(t, hub)

	hub.unregister <- client
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	waitFor(t, func() bool {
		for {
			select {
			case _, ok := <-client.send:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	})
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub := startedHub(t)
	client := registeredClient(t, hub)

	// fill the client's buffer without draining it
	for i := 0; i < cap(client.send); i++ {
		select {
		case client.send <- []byte("x"):
		default:
		}
	}

	hub.Broadcast("operation:progress", nil)
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_StartIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	hub.Start()
	hub.Stop()
}

func TestHub_Stats(t *testing.T) {
	hub := startedHub(t)
	client := registeredClient(t, hub)
	recv(t, client)

	hub.Broadcast("operation:complete", nil)
	recv(t, client)

	total, active, sent := hub.Stats()
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(1), active)
	assert.GreaterOrEqual(t, sent, int64(1))
}
