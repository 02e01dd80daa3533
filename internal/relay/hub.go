package relay

import (
	"encoding/json"
	"log"
	"slices"
	"time"

	"stage-manager/internal/socket"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/remeh/sizedwaitgroup"
	"github.com/sasha-s/go-deadlock"
)

const writeWait = 10 * time.Second

type client struct {
	id       string
	session  string
	userID   string
	elevated bool
	conn     *websocket.Conn
	writeMu  deadlock.Mutex
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// hub groups connections by session. Broadcasts encode once and fan out to
// at most workers concurrent writers.
type hub struct {
	mu       deadlock.Mutex
	sessions map[string]map[string]*client
	workers  int
}

func newHub(workers int) *hub {
	if workers <= 0 {
		workers = 1
	}
	return &hub{
		sessions: make(map[string]map[string]*client),
		workers:  workers,
	}
}

func (h *hub) Add(session, userID string, elevated bool, conn *websocket.Conn) *client {
	c := &client{
		id:       uuid.NewString(),
		session:  session,
		userID:   userID,
		elevated: elevated,
		conn:     conn,
	}
	h.mu.Lock()
	group := h.sessions[session]
	if group == nil {
		group = make(map[string]*client)
		h.sessions[session] = group
	}
	group[c.id] = c
	h.mu.Unlock()
	h.announce(session)
	return c
}

func (h *hub) Remove(c *client) {
	h.mu.Lock()
	group := h.sessions[c.session]
	if _, ok := group[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(group, c.id)
	if len(group) == 0 {
		delete(h.sessions, c.session)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
	h.announce(c.session)
}

// Members lists connected users of a session, sorted by id. A user with
// several connections is elevated if any of them is.
func (h *hub) Members(session string) []socket.Member {
	h.mu.Lock()
	defer h.mu.Unlock()
	byUser := make(map[string]bool)
	for _, c := range h.sessions[session] {
		byUser[c.userID] = byUser[c.userID] || c.elevated
	}
	members := make([]socket.Member, 0, len(byUser))
	for id, elevated := range byUser {
		members = append(members, socket.Member{ID: id, Elevated: elevated})
	}
	slices.SortFunc(members, func(a, b socket.Member) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return members
}

func (h *hub) announce(session string) {
	env, err := socket.NewEnvelope(socket.OpPresence, socket.TargetAll, socket.Presence{Users: h.Members(session)})
	if err != nil {
		return
	}
	env.Session = session
	h.Route(nil, env)
}

// Route delivers env to the clients its target selects. from is nil for
// relay-originated messages.
func (h *hub) Route(from *client, env socket.Envelope) int {
	h.mu.Lock()
	group := h.sessions[env.Session]
	targets := make([]*client, 0, len(group))
	for _, c := range group {
		switch env.Target {
		case "", socket.TargetOthers:
			if from != nil && c.userID == from.userID {
				continue
			}
		case socket.TargetAll:
		default:
			if c.userID != env.Target {
				continue
			}
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return 0
	}
	swg := sizedwaitgroup.New(h.workers)
	failed := make(chan *client, len(targets))
	for _, c := range targets {
		swg.Add()
		go func(c *client) {
			defer swg.Done()
			if err := c.write(data); err != nil {
				failed <- c
			}
		}(c)
	}
	swg.Wait()
	close(failed)
	for c := range failed {
		log.Printf("ws write failed session=%s user=%s", c.session, c.userID)
		h.Remove(c)
	}
	return len(targets)
}
