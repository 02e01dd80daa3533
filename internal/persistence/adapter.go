package persistence

import (
	"context"
	"fmt"
	"log"
	"slices"

	"stage-manager/internal/stage"
)

// Adapter maps live objects onto scoped store keys.
type Adapter struct {
	store Store
}

func NewAdapter(store Store) *Adapter {
	return &Adapter{store: store}
}

func (a *Adapter) Store() Store { return a.store }

// Load returns the world, scene and user lists, in that order. An empty
// sceneID or userID skips that scope.
func (a *Adapter) Load(ctx context.Context, sceneID, userID string) ([]stage.Serialized, error) {
	keys := []Key{WorldKey()}
	if sceneID != "" {
		keys = append(keys, SceneKey(sceneID))
	}
	if userID != "" {
		keys = append(keys, UserKey(userID))
	}
	out := make([]stage.Serialized, 0)
	for _, key := range keys {
		list, err := a.store.Get(ctx, key.Scope, key.Owner)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		out = append(out, list...)
	}
	return out, nil
}

// Save writes the objects belonging to each key and returns how many keys
// were written. Keys whose stored list already equals the new one are
// skipped. Temp objects are never stored.
func (a *Adapter) Save(ctx context.Context, keys []Key, objects []stage.Serialized) (int, error) {
	written := 0
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return written, err
		}
		next := make([]stage.Serialized, 0)
		for _, data := range objects {
			if belongs(key, data) {
				next = append(next, data)
			}
		}
		stored, err := a.store.Get(ctx, key.Scope, key.Owner)
		if err != nil {
			return written, fmt.Errorf("read %s: %w", key, err)
		}
		if stage.EqualList(stored, next) {
			continue
		}
		if err := a.store.Set(ctx, key.Scope, key.Owner, next); err != nil {
			return written, fmt.Errorf("write %s: %w", key, err)
		}
		log.Printf("stage objects saved key=%s count=%d", key, len(next))
		written++
	}
	return written, nil
}

// belongs reports whether data is stored under key. Scene and user objects
// without scopeOwners belong to whichever scene or user key is being saved.
func belongs(key Key, data stage.Serialized) bool {
	if data.Scope != key.Scope {
		return false
	}
	if key.Scope == stage.ScopeGlobal {
		return true
	}
	return len(data.ScopeOwners) == 0 || slices.Contains(data.ScopeOwners, key.Owner)
}

// Import validates objects with registry and merges them into the list
// stored under key, replacing entries with the same id.
func Import(ctx context.Context, store Store, registry *stage.Registry, key Key, objects []stage.Serialized) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	for _, data := range objects {
		if data.Scope != key.Scope {
			return 0, fmt.Errorf("%w: object %s has scope %s, want %s", stage.ErrInvalidScope, data.ID, data.Scope, key.Scope)
		}
		if _, err := registry.Decode(data); err != nil {
			return 0, fmt.Errorf("object %s: %w", data.ID, err)
		}
	}
	stored, err := store.Get(ctx, key.Scope, key.Owner)
	if err != nil {
		return 0, err
	}
	for _, data := range objects {
		idx := slices.IndexFunc(stored, func(existing stage.Serialized) bool { return existing.ID == data.ID })
		if idx >= 0 {
			stored[idx] = data
		} else {
			stored = append(stored, data)
		}
	}
	if err := store.Set(ctx, key.Scope, key.Owner, stored); err != nil {
		return 0, err
	}
	return len(objects), nil
}
