package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stage-manager/internal/stage"
)

var ErrInvalidKey = errors.New("invalid storage key")

// Store is a scoped key/value store of serialized object lists. The world
// scope uses an empty owner; scene and user scopes are keyed by scene id
// and user id.
type Store interface {
	Get(ctx context.Context, scope stage.Scope, owner string) ([]stage.Serialized, error)
	Set(ctx context.Context, scope stage.Scope, owner string, objects []stage.Serialized) error
}

type Key struct {
	Scope stage.Scope
	Owner string
}

func WorldKey() Key { return Key{Scope: stage.ScopeGlobal} }

func SceneKey(sceneID string) Key { return Key{Scope: stage.ScopeScene, Owner: sceneID} }

func UserKey(userID string) Key { return Key{Scope: stage.ScopeUser, Owner: userID} }

func (k Key) String() string {
	return "stage:" + string(k.Scope) + ":" + k.Owner
}

func (k Key) Validate() error {
	if !k.Scope.Persistent() {
		return fmt.Errorf("%w: scope %q is not persisted", ErrInvalidKey, k.Scope)
	}
	if k.Scope == stage.ScopeGlobal && k.Owner != "" {
		return fmt.Errorf("%w: world scope takes no owner", ErrInvalidKey)
	}
	if k.Scope != stage.ScopeGlobal && k.Owner == "" {
		return fmt.Errorf("%w: %s scope requires an owner", ErrInvalidKey, k.Scope)
	}
	return nil
}

// MemoryStore keeps deep copies of every list in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	sets   map[Key][]stage.Serialized
	writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[Key][]stage.Serialized)}
}

func (s *MemoryStore) Get(_ context.Context, scope stage.Scope, owner string) ([]stage.Serialized, error) {
	key := Key{Scope: scope, Owner: owner}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneList(s.sets[key]), nil
}

func (s *MemoryStore) Set(_ context.Context, scope stage.Scope, owner string, objects []stage.Serialized) error {
	key := Key{Scope: scope, Owner: owner}
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[key] = cloneList(objects)
	s.writes++
	return nil
}

// Writes counts successful Set calls.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func cloneList(in []stage.Serialized) []stage.Serialized {
	out := make([]stage.Serialized, 0, len(in))
	for _, data := range in {
		out = append(out, data.Clone())
	}
	return out
}
