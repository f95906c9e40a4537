package anova

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeCloud is a minimal websocket server standing in for the Anova
// cloud. The handler receives each accepted connection.
type fakeCloud struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	query map[string]string
}

func newFakeCloud(t *testing.T, onConn func(*websocket.Conn)) *fakeCloud {
	t.Helper()

	fc := &fakeCloud{}
	fc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		fc.query = map[string]string{}
		for k := range r.URL.Query() {
			fc.query[k] = r.URL.Query().Get(k)
		}
		fc.mu.Unlock()

		conn, err := fc.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fc.mu.Lock()
		fc.conns = append(fc.conns, conn)
		fc.mu.Unlock()
		if onConn != nil {
			onConn(conn)
		}
	}))

	t.Cleanup(func() {
		fc.mu.Lock()
		for _, c := range fc.conns {
			c.Close()
		}
		fc.mu.Unlock()
		fc.server.Close()
	})

	return fc
}

func (fc *fakeCloud) url() string {
	return "ws" + strings.TrimPrefix(fc.server.URL, "http")
}

func (fc *fakeCloud) queryParam(key string) string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.query[key]
}

func newTestClient(t *testing.T, fc *fakeCloud) *Client {
	t.Helper()

	client := NewClient(Config{
		URL:            fc.url(),
		Token:          "test-token",
		CommandTimeout: 2 * time.Second,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

// TestConnectSendsAuthParams verifies the dial carries the token and
// platform identifiers.
func TestConnectSendsAuthParams(t *testing.T) {
	fc := newFakeCloud(t, nil)
	client := newTestClient(t, fc)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}

	if got := fc.queryParam("token"); got != "test-token" {
		t.Errorf("token param = %q, want test-token", got)
	}
	if got := fc.queryParam("supportedAccessories"); got != "APO" {
		t.Errorf("supportedAccessories param = %q, want APO", got)
	}
}

// TestConnectInvalidURL verifies scheme validation.
func TestConnectInvalidURL(t *testing.T) {
	client := NewClient(Config{URL: "http://nope", Token: "t"})
	defer client.Close()

	if err := client.Connect(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// TestStateEventDelivery verifies state pushes reach the callback with
// the raw payload intact.
func TestStateEventDelivery(t *testing.T) {
	fc := newFakeCloud(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"command":"EVENT_APO_STATE","payload":{"cookerId":"oven-1","nodes":{"lamp":{"on":true}}}}`,
		))
	})
	client := newTestClient(t, fc)

	states := make(chan map[string]interface{}, 1)
	client.SetOnState(func(raw map[string]interface{}) {
		states <- raw
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case raw := <-states:
		if raw["cookerId"] != "oven-1" {
			t.Errorf("cookerId = %v, want oven-1", raw["cookerId"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("state event not delivered")
	}
}

// TestDeviceListDelivery verifies discovery events reach the callback.
func TestDeviceListDelivery(t *testing.T) {
	fc := newFakeCloud(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"command":"EVENT_APO_WIFI_LIST","payload":[{"cookerId":"oven-1","type":"oven_v2"}]}`,
		))
	})
	client := newTestClient(t, fc)

	lists := make(chan []DiscoveredDevice, 1)
	client.SetOnDevices(func(devices []DiscoveredDevice) {
		lists <- devices
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case devices := <-lists:
		if len(devices) != 1 || devices[0].CookerID != "oven-1" {
			t.Errorf("devices = %+v, want [oven-1]", devices)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("device list not delivered")
	}
}

// TestSendCommandRoundTrip verifies request/response correlation.
func TestSendCommandRoundTrip(t *testing.T) {
	fc := newFakeCloud(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			reply, _ := json.Marshal(Envelope{
				Command:   MessageResponse,
				RequestID: env.RequestID,
				Payload:   json.RawMessage(`{"status":"ok"}`),
			})
			conn.WriteMessage(websocket.TextMessage, reply)
		}
	})
	client := newTestClient(t, fc)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.SendCommand(context.Background(), "oven-1", CommandStopCook, nil); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	stats := client.Stats()
	if stats.FramesTx == 0 {
		t.Error("FramesTx = 0, want > 0")
	}
}

// TestSendCommandRejected verifies cloud-side rejection surfaces as
// ErrCommandFailed.
func TestSendCommandRejected(t *testing.T) {
	fc := newFakeCloud(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			reply, _ := json.Marshal(Envelope{
				Command:   MessageResponse,
				RequestID: env.RequestID,
				Payload:   json.RawMessage(`{"status":"error","error":"device offline"}`),
			})
			conn.WriteMessage(websocket.TextMessage, reply)
		}
	})
	client := newTestClient(t, fc)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := client.SendCommand(context.Background(), "oven-1", CommandStartCook, nil)
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("SendCommand() error = %v, want ErrCommandFailed", err)
	}
}

// TestSendCommandTimeout verifies a silent cloud times the command out.
func TestSendCommandTimeout(t *testing.T) {
	fc := newFakeCloud(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			// Never reply.
		}
	})

	client := NewClient(Config{
		URL:            fc.url(),
		Token:          "t",
		CommandTimeout: 200 * time.Millisecond,
	})
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := client.SendCommand(context.Background(), "oven-1", CommandSetLamp, map[string]interface{}{"on": true})
	if !errors.Is(err, ErrCommandTimeout) {
		t.Errorf("SendCommand() error = %v, want ErrCommandTimeout", err)
	}
}

// TestSendCommandNotConnected verifies the disconnected error path.
func TestSendCommandNotConnected(t *testing.T) {
	client := NewClient(Config{URL: "wss://example.invalid", Token: "t"})
	defer client.Close()

	err := client.SendCommand(context.Background(), "oven-1", CommandStopCook, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendCommand() error = %v, want ErrNotConnected", err)
	}
}

// TestDisconnectCallback verifies a dropped session notifies the
// scheduler and flips the connected flag.
func TestDisconnectCallback(t *testing.T) {
	fc := newFakeCloud(t, func(conn *websocket.Conn) {
		conn.Close()
	})
	client := newTestClient(t, fc)

	dropped := make(chan error, 1)
	client.SetOnDisconnect(func(err error) {
		dropped <- err
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case err := <-dropped:
		if err == nil {
			t.Error("disconnect callback with nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback not invoked")
	}

	deadline := time.Now().Add(2 * time.Second)
	for client.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after session drop")
	}
}

// TestReconnectAfterDrop verifies Connect establishes a fresh session
// after a drop.
func TestReconnectAfterDrop(t *testing.T) {
	var first sync.Once
	fc := newFakeCloud(t, func(conn *websocket.Conn) {
		closed := false
		first.Do(func() {
			conn.Close()
			closed = true
		})
		if closed {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"command":"EVENT_APO_STATE","payload":{"id":"oven-1"}}`,
		))
	})
	client := newTestClient(t, fc)

	dropped := make(chan error, 1)
	client.SetOnDisconnect(func(err error) { dropped <- err })
	states := make(chan map[string]interface{}, 1)
	client.SetOnState(func(raw map[string]interface{}) { states <- raw })

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("first session did not drop")
	}

	// Scheduler's poll tick would do this.
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() after drop error = %v", err)
	}

	select {
	case raw := <-states:
		if raw["id"] != "oven-1" {
			t.Errorf("id = %v, want oven-1", raw["id"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state event on second session")
	}
}

// TestCloseIdempotent verifies Close is safe to call repeatedly.
func TestCloseIdempotent(t *testing.T) {
	fc := newFakeCloud(t, nil)
	client := NewClient(Config{URL: fc.url(), Token: "t"})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if err := client.Connect(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Connect() after Close error = %v, want ErrNotConnected", err)
	}
}
