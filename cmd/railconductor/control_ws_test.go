package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

// NOTE: These tests focus on hub behavior (fanout + slow-client disconnection)
// without standing up a real websocket server.
//
// We intentionally avoid relying on network I/O. We construct Clients with a nil
// websocket.Conn and ensure our test paths never require actual writes.
// For slow-client eviction, the hub calls conn.Close(); nil is safe (hub guards against nil).

// newTestHub returns a hub with small buffers for deterministic tests.
func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(slog.Default(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

// encodeTestBroadcast renders a reducer broadcast to the wire bytes the
// broadcaster would hand the hub.
func encodeTestBroadcast(t *testing.T, b StateBroadcast) []byte {
	t.Helper()
	ev, ok := convertBroadcast(b)
	if !ok {
		t.Fatalf("broadcast %T did not convert", b)
	}
	msg, err := json.Marshal(envelope{Type: ev.Type, Data: ev.Data})
	if err != nil {
		t.Fatalf("marshal broadcast: %v", err)
	}
	return msg
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)

	// Run the hub loop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	// Create two clients with buffered send channels and nil conns (not used in this test).
	c1 := &Client{
		hub:        hub,
		conn:       nil,
		send:       make(chan []byte, 4),
		remoteAddr: "c1",
		logger:     slog.Default(),
	}
	c2 := &Client{
		hub:        hub,
		conn:       nil,
		send:       make(chan []byte, 4),
		remoteAddr: "c2",
		logger:     slog.Default(),
	}

	// Ensure registrations have been processed by the hub goroutine before broadcasting.
	hub.register <- c1
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c1]
		return ok
	}, "client1 not registered in time")

	hub.register <- c2
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c2]
		return ok
	}, "client2 not registered in time")

	msg := encodeTestBroadcast(t, BroadcastValuesChanged{
		Values: []FunctionValue{{ID: FuncBell, Value: 1}},
	})

	// Avoid BroadcastBytes() here because it is intentionally non-blocking and may
	// drop if the hub broadcast queue is temporarily full during scheduling.
	hub.broadcast <- msg

	// Both clients should receive the message.
	select {
	case got := <-c1.send:
		if string(got) != string(msg) {
			t.Fatalf("client1 got %q, want %q", string(got), string(msg))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for client1 to receive broadcast")
	}

	select {
	case got := <-c2.send:
		if string(got) != string(msg) {
			t.Fatalf("client2 got %q, want %q", string(got), string(msg))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for client2 to receive broadcast")
	}

	// Shutdown hub.
	cancel()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for hub to stop")
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// sendBuf=1 so we can fill it easily; broadcastBuf ample.
	hub := newTestHub(t, 1, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	// Slow client: send buffer will fill and we never drain it.
	slow := &Client{
		hub:        hub,
		conn:       nil,
		send:       make(chan []byte, 1),
		remoteAddr: "slow",
		logger:     slog.Default(),
	}

	// Fast client: we will drain its channel.
	fast := &Client{
		hub:        hub,
		conn:       nil,
		send:       make(chan []byte, 8),
		remoteAddr: "fast",
		logger:     slog.Default(),
	}

	// Ensure registrations have been processed by the hub goroutine before broadcasting.
	hub.register <- slow
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[slow]
		return ok
	}, "slow client not registered in time")

	hub.register <- fast
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[fast]
		return ok
	}, "fast client not registered in time")

	// Pre-fill slow client buffer to simulate it being stuck.
	slow.send <- []byte(`"already queued"`)

	// Broadcast should attempt to enqueue to slow, hit default, and disconnect it,
	// while still delivering to fast.
	msg := encodeTestBroadcast(t, BroadcastTransmitStatus{
		OK:    false,
		Error: "network is unreachable",
	})

	// Avoid BroadcastBytes() here for the same reason as above; we want deterministic delivery
	// into the hub's select loop.
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", string(got), string(msg))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// The slow client should be disconnected and its send channel should be closed.
	// (There may still be the pre-filled message in the buffer; drain it first.)
	select {
	case <-slow.send:
	default:
	}

	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")
}

// TestConvertBroadcast_ValueNamesResolved verifies the outbound value payload
// carries catalogue names alongside ids
func TestConvertBroadcast_ValueNamesResolved(t *testing.T) {
	ev, ok := convertBroadcast(BroadcastValuesChanged{
		Values: []FunctionValue{{ID: FuncBell, Value: 1}},
		At:     time.Unix(1000, 0),
	})
	if !ok {
		t.Fatalf("expected values_changed to convert")
	}
	if ev.Type != "values_changed" {
		t.Errorf("expected type values_changed, got %q", ev.Type)
	}
	data, ok := ev.Data.(wsValuesChangedData)
	if !ok {
		t.Fatalf("unexpected data type %T", ev.Data)
	}
	if len(data.Values) != 1 || data.Values[0].Name != "Bell" || data.Values[0].Value != 1 {
		t.Errorf("unexpected payload %+v", data.Values)
	}
}

// TestConvertBroadcast_CaptureResult verifies terminal capture results reach
// clients as strings
func TestConvertBroadcast_CaptureResult(t *testing.T) {
	ev, ok := convertBroadcast(BroadcastCaptureChanged{
		Function: FuncHorn,
		Result:   CaptureTimedOut,
		At:       time.Unix(1000, 0),
	})
	if !ok {
		t.Fatalf("expected capture_changed to convert")
	}
	data := ev.Data.(wsCaptureChangedData)
	if data.Result != "timed_out" || data.Function != FuncHorn || data.Listening {
		t.Errorf("unexpected payload %+v", data)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
