package socket

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrSendFailed marks a transient transport failure. Callers leave their
// state untouched and retry later.
var ErrSendFailed = errors.New("send failed")

var errClosed = fmt.Errorf("%w: transport closed", ErrSendFailed)

// Transport is a best-effort relay connection. Emit returns once the
// envelope has been handed to the relay, or with an error wrapping
// ErrSendFailed; callers commit state only on a nil result. Incoming is
// closed when the connection ends.
type Transport interface {
	Emit(env Envelope) error
	Incoming() <-chan Envelope
	Close() error
}

// LocalBus is an in-process relay for one session. It stamps senders,
// honors targets and announces presence the same way the websocket relay
// does.
type LocalBus struct {
	mu        sync.Mutex
	session   string
	queueSize int
	peers     map[string]*LocalTransport
}

func NewLocalBus(session string, queueSize int) *LocalBus {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &LocalBus{session: session, queueSize: queueSize, peers: make(map[string]*LocalTransport)}
}

// Connect joins userID to the bus and broadcasts the new presence list.
func (b *LocalBus) Connect(userID string, elevated bool) *LocalTransport {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := &LocalTransport{
		bus:    b,
		member: Member{ID: userID, Elevated: elevated},
		in:     make(chan Envelope, b.queueSize),
	}
	if old := b.peers[userID]; old != nil {
		old.closeLocked()
	}
	b.peers[userID] = t
	b.presenceLocked()
	return t
}

func (b *LocalBus) disconnect(t *LocalTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peers[t.member.ID] != t {
		return
	}
	delete(b.peers, t.member.ID)
	t.closeLocked()
	b.presenceLocked()
}

func (b *LocalBus) presenceLocked() {
	users := make([]Member, 0, len(b.peers))
	for _, peer := range b.peers {
		users = append(users, peer.member)
	}
	env, err := NewEnvelope(OpPresence, TargetAll, Presence{Users: users})
	if err != nil {
		return
	}
	env.Session = b.session
	for _, peer := range b.peers {
		peer.deliverLocked(env)
	}
}

func (b *LocalBus) route(from *LocalTransport, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if from.closed {
		return errClosed
	}
	env.Session = b.session
	env.Sender = from.member.ID
	env.Elevated = from.member.Elevated
	for id, peer := range b.peers {
		switch env.Target {
		case "", TargetOthers:
			if id == from.member.ID {
				continue
			}
		case TargetAll:
		default:
			if id != env.Target {
				continue
			}
		}
		peer.deliverLocked(env)
	}
	return nil
}

// LocalTransport is one user's connection to a LocalBus.
type LocalTransport struct {
	bus    *LocalBus
	member Member
	in     chan Envelope
	closed bool

	failMu  sync.Mutex
	failErr error
	emitted []Envelope
}

func (t *LocalTransport) Emit(env Envelope) error {
	t.failMu.Lock()
	failErr := t.failErr
	if failErr == nil {
		t.emitted = append(t.emitted, env)
	}
	t.failMu.Unlock()
	if failErr != nil {
		return failErr
	}
	return t.bus.route(t, env)
}

func (t *LocalTransport) Incoming() <-chan Envelope { return t.in }

func (t *LocalTransport) Close() error {
	t.bus.disconnect(t)
	return nil
}

// FailSends makes every Emit return err until called again with nil.
func (t *LocalTransport) FailSends(err error) {
	t.failMu.Lock()
	defer t.failMu.Unlock()
	t.failErr = err
}

// Emitted returns the envelopes accepted by Emit so far.
func (t *LocalTransport) Emitted() []Envelope {
	t.failMu.Lock()
	defer t.failMu.Unlock()
	out := make([]Envelope, len(t.emitted))
	copy(out, t.emitted)
	return out
}

func (t *LocalTransport) deliverLocked(env Envelope) {
	if t.closed {
		return
	}
	select {
	case t.in <- env:
	default:
		log.Printf("local bus dropped envelope op=%s user=%s", env.Op, t.member.ID)
	}
}

func (t *LocalTransport) closeLocked() {
	if t.closed {
		return
	}
	t.closed = true
	close(t.in)
}
