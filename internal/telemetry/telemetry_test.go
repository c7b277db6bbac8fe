package telemetry_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/signalnine/grind/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) telemetry.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev telemetry.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHubBroadcast(t *testing.T) {
	hub := telemetry.NewHub("sess-1", zerolog.Nop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	a := dial(t, "ws"+srv.URL[4:])
	b := dial(t, "ws"+srv.URL[4:])
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 5*time.Second, 10*time.Millisecond)

	hub.Publish(telemetry.Event{Type: telemetry.EventStat, Iteration: 3, Payload: "cpu=12,mem=34"})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, telemetry.EventStat, ev.Type)
		assert.Equal(t, "sess-1", ev.Session)
		assert.Equal(t, uint64(3), ev.Iteration)
		assert.Equal(t, "cpu=12,mem=34", ev.Payload)
	}
}

func TestHubForgetsClosedClients(t *testing.T) {
	hub := telemetry.NewHub("s", zerolog.Nop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[4:], nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "bye")
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)

	// Publishing with nobody listening is fine.
	hub.Publish(telemetry.Event{Type: telemetry.EventAborted, Cause: "stalled_output"})
}

func TestListen(t *testing.T) {
	hub := telemetry.NewHub("s", zerolog.Nop())
	srv, err := telemetry.Listen("127.0.0.1:0", hub)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	conn := dial(t, "ws://"+srv.Addr)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)
	hub.Publish(telemetry.Event{Type: telemetry.EventCompleted, Iteration: 1, DurationMs: 42})
	ev := readEvent(t, conn)
	assert.Equal(t, int64(42), ev.DurationMs)
}
