package syncer

import (
	"context"
	"log"
	"maps"
	"slices"

	"stage-manager/internal/socket"
	"stage-manager/internal/stage"
)

// Sender is the slice of socket.Manager the engine needs.
type Sender interface {
	SyncStageObjects(ctx context.Context, msg socket.SyncMessage) error
}

// Manager is the per-client reconciliation engine. knownObjects holds the
// last state this client broadcast or received; a tick sends only what
// differs from it.
type Manager struct {
	stage  *stage.Manager
	dir    *socket.Directory
	sender Sender
	known  map[string]stage.Serialized
}

func NewManager(stageMgr *stage.Manager, dir *socket.Directory, sender Sender) *Manager {
	return &Manager{
		stage:  stageMgr,
		dir:    dir,
		sender: sender,
		known:  make(map[string]stage.Serialized),
	}
}

// Known returns the last synchronized form of id.
func (m *Manager) Known(id string) (stage.Serialized, bool) {
	data, ok := m.known[id]
	return data, ok
}

// KnownObjects returns a copy of the snapshot.
func (m *Manager) KnownObjects() map[string]stage.Serialized {
	return maps.Clone(m.known)
}

// Seed records objects as already synchronized, e.g. after loading a scene
// from storage.
func (m *Manager) Seed(objects []*stage.Object) {
	for _, obj := range objects {
		m.known[obj.ID()] = obj.Serialize()
	}
}

// Reset forgets the snapshot without broadcasting anything.
func (m *Manager) Reset() {
	clear(m.known)
}

func (m *Manager) RemoteAdded(data stage.Serialized) {
	m.known[data.ID] = data.Clone()
}

func (m *Manager) RemoteUpdated(p stage.Patch) {
	prev, ok := m.known[p.ID]
	if !ok {
		if obj, live := m.stage.Get(p.ID); live {
			m.known[p.ID] = obj.Serialize()
		}
		return
	}
	merged, err := stage.Merge(prev, p)
	if err != nil {
		log.Printf("sync snapshot merge failed id=%s error=%v", p.ID, err)
		delete(m.known, p.ID)
		return
	}
	m.known[p.ID] = merged
}

func (m *Manager) RemoteRemoved(id string) {
	delete(m.known, id)
}

// Tick runs one reconciliation pass. A tick with nothing to send makes no
// transport call and changes nothing. When the send fails every dirty flag
// and the snapshot are left as they were, so the same changes go out on
// the next tick.
func (m *Manager) Tick(ctx context.Context) (bool, error) {
	msg := socket.NewSyncMessage()
	self := m.dir.UserID()
	included := make(map[string]*stage.Object)
	current := make(map[string]stage.Serialized)

	for _, obj := range m.stage.Objects().All() {
		id := obj.ID()
		prev, known := m.known[id]
		if known && !obj.Dirty() {
			continue
		}
		if !m.dir.Responsible(obj) {
			continue
		}
		data := obj.Serialize()
		if !known {
			if !m.stage.CanAddStageObjects(self) && !m.stage.CanModifyStageObject(self, id) {
				continue
			}
			msg.Added[id] = data
		} else {
			if !m.stage.CanModifyStageObject(self, id) {
				continue
			}
			diff := stage.Diff(prev, data)
			if diff.Empty() {
				continue
			}
			msg.Updated[id] = diff
		}
		msg.Revisions[id] = obj.Revision() + 1
		included[id] = obj
		current[id] = data
	}
	for _, id := range sortedIDs(m.known) {
		if m.stage.Objects().Contains(id) {
			continue
		}
		if !m.mayRemove(self, id) {
			// Gone locally but not ours to remove: stop tracking it so it
			// cannot hold back the rest of the message.
			log.Printf("sync removal dropped id=%s user=%s", id, self)
			delete(m.known, id)
			continue
		}
		msg.Removed = append(msg.Removed, id)
	}

	if msg.Empty() {
		return false, nil
	}
	if err := m.sender.SyncStageObjects(ctx, msg); err != nil {
		log.Printf("sync send failed added=%d updated=%d removed=%d error=%v", len(msg.Added), len(msg.Updated), len(msg.Removed), err)
		return false, err
	}

	for id, obj := range included {
		m.known[id] = current[id]
		obj.SetRevision(msg.Revisions[id])
		obj.ClearDirty()
	}
	for _, id := range msg.Removed {
		delete(m.known, id)
	}
	return true, nil
}

// mayRemove applies the socket layer's rule for ids that are no longer
// live: elevated users, or an owner in the last synchronized form.
func (m *Manager) mayRemove(userID, id string) bool {
	if m.dir.IsElevated(userID) {
		return true
	}
	prior, ok := m.known[id]
	return ok && slices.Contains(prior.Owners, userID)
}

func sortedIDs(in map[string]stage.Serialized) []string {
	ids := make([]string, 0, len(in))
	for id := range in {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
