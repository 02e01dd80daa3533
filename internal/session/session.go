package session

import (
	"context"
	"errors"
	"log"
	"time"

	"stage-manager/internal/persistence"
	"stage-manager/internal/socket"
	"stage-manager/internal/stage"
	"stage-manager/internal/syncer"
)

var (
	ErrClosed       = errors.New("session closed")
	ErrDisconnected = errors.New("relay disconnected")
	ErrNoStore      = errors.New("session has no store")
)

type Options struct {
	UserID   string
	Elevated bool
	Interval time.Duration
	Viewport stage.Viewport
	Registry *stage.Registry
	Renderer stage.Renderer
}

// Session owns one client's stage and runs every mutation, inbound message
// and sync tick on a single goroutine. Nothing it wires together takes a
// lock.
type Session struct {
	stage     *stage.Manager
	dir       *socket.Directory
	sockets   *socket.Manager
	syncer    *syncer.Manager
	adapter   *persistence.Adapter
	transport socket.Transport
	interval  time.Duration
	sceneID   string

	jobs chan func()
	done chan struct{}
}

// New wires a session. adapter may be nil when nothing is persisted.
func New(opts Options, transport socket.Transport, adapter *persistence.Adapter) *Session {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	dir := socket.NewDirectory(opts.UserID, opts.Elevated)
	stageMgr := stage.NewManager(opts.Registry, dir, opts.Renderer)
	if opts.Viewport.Screen.Width > 0 {
		stageMgr.SetViewport(opts.Viewport)
	}
	sockets := socket.NewManager(stageMgr, dir, transport)
	engine := syncer.NewManager(stageMgr, dir, sockets)
	sockets.SetListener(engine)
	sockets.Snapshot = engine.Known
	return &Session{
		stage:     stageMgr,
		dir:       dir,
		sockets:   sockets,
		syncer:    engine,
		adapter:   adapter,
		transport: transport,
		interval:  opts.Interval,
		jobs:      make(chan func()),
		done:      make(chan struct{}),
	}
}

// Run drives the loop until ctx ends or the transport closes.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	incoming := s.transport.Incoming()
	log.Printf("session started user=%s elevated=%t interval=%s", s.dir.UserID(), s.dir.IsElevated(s.dir.UserID()), s.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = s.syncer.Tick(ctx)
		case env, ok := <-incoming:
			if !ok {
				log.Printf("session stopped user=%s reason=disconnected", s.dir.UserID())
				return ErrDisconnected
			}
			if err := s.sockets.Handle(env); err != nil {
				log.Printf("envelope rejected op=%s sender=%s error=%v", env.Op, env.Sender, err)
			}
		case job := <-s.jobs:
			job()
		}
	}
}

// Do runs fn on the session loop and waits for it.
func (s *Session) Do(ctx context.Context, fn func(*stage.Manager) error) error {
	result := make(chan error, 1)
	job := func() { result <- fn(s.stage) }
	select {
	case s.jobs <- job:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync runs one reconciliation tick now instead of waiting for the ticker.
func (s *Session) Sync(ctx context.Context) error {
	return s.Do(ctx, func(*stage.Manager) error {
		_, err := s.syncer.Tick(ctx)
		return err
	})
}

// LoadScene replaces the local stage with the stored world, scene and user
// objects. Loaded objects are neither dirty nor re-broadcast.
func (s *Session) LoadScene(ctx context.Context, sceneID string) error {
	if s.adapter == nil {
		return ErrNoStore
	}
	list, err := s.adapter.Load(ctx, sceneID, s.dir.UserID())
	if err != nil {
		return err
	}
	return s.Do(ctx, func(m *stage.Manager) error {
		m.Clear()
		s.syncer.Reset()
		loaded := m.Load(list)
		s.syncer.Seed(loaded)
		s.sceneID = sceneID
		log.Printf("scene loaded scene_id=%s objects=%d", sceneID, len(loaded))
		return nil
	})
}

// Persist writes the local user's objects, plus the world and current
// scene when this client is the leader, and returns how many keys changed.
func (s *Session) Persist(ctx context.Context) (int, error) {
	if s.adapter == nil {
		return 0, ErrNoStore
	}
	var keys []persistence.Key
	var objects []stage.Serialized
	err := s.Do(ctx, func(m *stage.Manager) error {
		self := s.dir.UserID()
		keys = []persistence.Key{persistence.UserKey(self)}
		if s.dir.Leader() == self {
			keys = append(keys, persistence.WorldKey())
			if s.sceneID != "" {
				keys = append(keys, persistence.SceneKey(s.sceneID))
			}
		}
		for _, obj := range m.Objects().All() {
			objects = append(objects, obj.Serialize())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return s.adapter.Save(ctx, keys, objects)
}

// Close ends the transport; Run returns once the incoming channel drains.
func (s *Session) Close() error {
	return s.transport.Close()
}

// Stage, Directory, Sockets and Syncer must only be used from inside Do.
func (s *Session) Stage() *stage.Manager { return s.stage }
func (s *Session) Directory() *socket.Directory { return s.dir }
func (s *Session) Sockets() *socket.Manager { return s.sockets }
func (s *Session) Syncer() *syncer.Manager { return s.syncer }
