package relay

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stage-manager/internal/config"
	"stage-manager/internal/socket"

	"github.com/gorilla/websocket"
)

const testSecret = "test-secret"

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RelayJWTSecret = testSecret
	cfg.BroadcastWorkers = 2
	return cfg
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

func token(t *testing.T, userID string, elevated bool) string {
	t.Helper()
	raw, err := IssueToken(testSecret, userID, elevated, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return raw
}

func wsURL(ts *httptest.Server, session string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + session
}

func dialWS(t *testing.T, ts *httptest.Server, session, userID string, elevated bool) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, session)+"?token="+token(t, userID, elevated), nil)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) socket.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	var env socket.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// waitForEnvelope skips presence updates until an envelope with op arrives.
func waitForEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration, op string) socket.Envelope {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn, time.Until(deadline))
		if env.Op == op {
			return env
		}
	}
	t.Fatalf("timed out waiting for %s", op)
	return socket.Envelope{}
}

// waitForPresence reads until a presence envelope lists want users.
func waitForPresence(t *testing.T, conn *websocket.Conn, timeout time.Duration, want int) socket.Presence {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn, time.Until(deadline))
		if env.Op != socket.OpPresence {
			continue
		}
		var presence socket.Presence
		if err := env.Decode(&presence); err != nil {
			t.Fatalf("decode presence: %v", err)
		}
		if len(presence.Users) == want {
			return presence
		}
	}
	t.Fatalf("timed out waiting for %d users", want)
	return socket.Presence{}
}

func expectNoEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration, op string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env socket.Envelope
		if json.Unmarshal(payload, &env) == nil && env.Op == op {
			t.Fatalf("expected no %s message, got %s", op, payload)
		}
	}
}
