package socket

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WSTransport is a Transport over a websocket connection to the relay.
// Emit returns once the frame is written, so its error is the completion
// signal for that envelope.
type WSTransport struct {
	conn      *websocket.Conn
	send      chan outbound
	in        chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a relay session endpoint, e.g.
// ws://host/ws/sessions/table-1, authenticating with token.
func Dial(ctx context.Context, endpoint, token string, queueSize int) (*WSTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	query := u.Query()
	query.Set("token", token)
	u.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	t := &WSTransport{
		conn: conn,
		send: make(chan outbound, queueSize),
		in:   make(chan Envelope, queueSize),
		done: make(chan struct{}),
	}
	log.Printf("relay connected url=%s", u.Redacted())
	go t.writeLoop()
	go t.readLoop()
	return t, nil
}

type outbound struct {
	env    Envelope
	result chan error
}

func (t *WSTransport) Emit(env Envelope) error {
	select {
	case <-t.done:
		return errClosed
	default:
	}
	out := outbound{env: env, result: make(chan error, 1)}
	select {
	case t.send <- out:
	default:
		return fmt.Errorf("%w: send queue full", ErrSendFailed)
	}
	select {
	case err := <-out.result:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		return nil
	case <-t.done:
		return errClosed
	}
}

func (t *WSTransport) Incoming() <-chan Envelope { return t.in }

func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = t.conn.Close()
	})
	return nil
}

func (t *WSTransport) writeLoop() {
	for {
		select {
		case out := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := t.conn.WriteJSON(out.env)
			out.result <- err
			if err != nil {
				log.Printf("relay write failed op=%s error=%v", out.env.Op, err)
				_ = t.Close()
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *WSTransport) readLoop() {
	defer close(t.in)
	defer t.Close()
	for {
		var env Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			select {
			case <-t.done:
			default:
				log.Printf("relay disconnected error=%v", err)
			}
			return
		}
		select {
		case t.in <- env:
		case <-t.done:
			return
		}
	}
}
