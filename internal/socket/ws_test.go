package socket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newEchoRelay(t *testing.T, received chan<- Envelope) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			received <- env
		}
	})
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; tcp4 listener unavailable: %v", err)
	}
	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	t.Cleanup(server.Close)
	return server
}

func TestWSTransportEmitReportsWriteResult(t *testing.T) {
	received := make(chan Envelope, 4)
	server := newEchoRelay(t, received)
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")

	transport, err := Dial(context.Background(), endpoint, "token", 4)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() { _ = transport.Close() })

	env, _ := NewEnvelope(OpRemoveStageObject, TargetOthers, RemovePayload{ID: "door"})
	if err := transport.Emit(env); err != nil {
		t.Fatalf("emit: %v", err)
	}
	select {
	case got := <-received:
		if got.Op != OpRemoveStageObject {
			t.Fatalf("unexpected op %q", got.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("relay never received the envelope")
	}

	_ = transport.conn.Close()
	if err := transport.Emit(env); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected write failure to surface from Emit, got %v", err)
	}
	if err := transport.Emit(env); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected closed transport to fail, got %v", err)
	}
}
