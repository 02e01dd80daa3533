package socket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"stage-manager/internal/stage"
)

// Listener observes remote changes after they are applied locally. The
// synchronization engine uses it to keep its snapshot in step so remote
// state is never echoed back.
type Listener interface {
	RemoteAdded(data stage.Serialized)
	RemoteUpdated(p stage.Patch)
	RemoteRemoved(id string)
}

// Manager issues and receives the three stage operations. Every outbound
// operation is permission-checked before anything is emitted; every inbound
// one is re-checked against the relay-stamped sender.
type Manager struct {
	stage     *stage.Manager
	dir       *Directory
	transport Transport
	listener  Listener

	// Snapshot resolves objects that are gone locally but were last
	// broadcast, so removals can still be permission-checked.
	Snapshot func(id string) (stage.Serialized, bool)
}

func NewManager(stageMgr *stage.Manager, dir *Directory, transport Transport) *Manager {
	return &Manager{stage: stageMgr, dir: dir, transport: transport}
}

func (m *Manager) Directory() *Directory { return m.dir }

func (m *Manager) SetListener(l Listener) { m.listener = l }

// AddStageObject broadcasts a full object to everyone else.
func (m *Manager) AddStageObject(ctx context.Context, data stage.Serialized) error {
	self := m.dir.UserID()
	if !m.stage.CanAddStageObjects(self) {
		return fmt.Errorf("%w: user %s cannot add stage objects", stage.ErrPermission, self)
	}
	var rev uint64
	if obj, ok := m.stage.Get(data.ID); ok {
		rev = obj.Revision()
	}
	return m.emit(ctx, OpAddStageObject, TargetOthers, AddPayload{Object: data, Revision: rev})
}

// RemoveStageObject broadcasts the removal of id to everyone else.
func (m *Manager) RemoveStageObject(ctx context.Context, id string) error {
	self := m.dir.UserID()
	if !m.canRemove(self, id) {
		return fmt.Errorf("%w: user %s cannot delete %s", stage.ErrPermission, self, id)
	}
	return m.emit(ctx, OpRemoveStageObject, TargetOthers, RemovePayload{ID: id})
}

// SyncStageObjects broadcasts one reconciliation message. The whole message
// is rejected if any entry is not permitted for the local user.
func (m *Manager) SyncStageObjects(ctx context.Context, msg SyncMessage) error {
	self := m.dir.UserID()
	for id := range msg.Added {
		if !m.stage.CanAddStageObjects(self) && !m.stage.CanModifyStageObject(self, id) {
			return fmt.Errorf("%w: user %s cannot add %s", stage.ErrPermission, self, id)
		}
	}
	for id := range msg.Updated {
		if !m.stage.CanModifyStageObject(self, id) {
			return fmt.Errorf("%w: user %s cannot modify %s", stage.ErrPermission, self, id)
		}
	}
	for _, id := range msg.Removed {
		if !m.canRemove(self, id) {
			return fmt.Errorf("%w: user %s cannot delete %s", stage.ErrPermission, self, id)
		}
	}
	return m.emit(ctx, OpSyncStageObjects, TargetOthers, msg)
}

func (m *Manager) canRemove(userID, id string) bool {
	if _, ok := m.stage.Get(id); ok {
		return m.stage.CanDeleteStageObject(userID, id)
	}
	if m.dir.IsElevated(userID) {
		return true
	}
	if m.Snapshot == nil {
		return false
	}
	prior, ok := m.Snapshot(id)
	return ok && slices.Contains(prior.Owners, userID)
}

func (m *Manager) emit(ctx context.Context, op, target string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := NewEnvelope(op, target, payload)
	if err != nil {
		return err
	}
	if err := m.transport.Emit(env); err != nil {
		if errors.Is(err, ErrSendFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Handle applies one inbound envelope. Rejected operations are logged and
// dropped; they never affect other clients.
func (m *Manager) Handle(env Envelope) error {
	if env.Op == OpPresence {
		var presence Presence
		if err := env.Decode(&presence); err != nil {
			log.Printf("socket presence rejected error=%v", err)
			return err
		}
		left := m.dir.Update(presence)
		if len(left) > 0 {
			log.Printf("socket presence users=%d left=%v", len(presence.Users), left)
		}
		return nil
	}
	if env.Sender == "" {
		err := fmt.Errorf("%w: %s without sender", stage.ErrValidation, env.Op)
		log.Printf("socket message rejected op=%s error=%v", env.Op, err)
		return err
	}
	if env.Sender == m.dir.UserID() {
		return nil
	}
	m.dir.Observe(env.Sender, env.Elevated)

	var err error
	switch env.Op {
	case OpAddStageObject:
		var payload AddPayload
		if err = env.Decode(&payload); err == nil {
			err = m.applyAdd(env.Sender, payload.Object, payload.Revision)
		}
	case OpRemoveStageObject:
		var payload RemovePayload
		if err = env.Decode(&payload); err == nil {
			err = m.applyRemove(env.Sender, payload.ID)
		}
	case OpSyncStageObjects:
		var msg SyncMessage
		if err = env.Decode(&msg); err == nil {
			err = m.ApplySync(env.Sender, msg)
		}
	default:
		err = fmt.Errorf("%w: unknown op %q", stage.ErrValidation, env.Op)
	}
	if err != nil {
		log.Printf("socket message rejected op=%s sender=%s error=%v", env.Op, env.Sender, err)
	}
	return err
}

// ApplySync applies removals, then adds, then updates, so an id both removed
// and added in one message ends up re-created.
func (m *Manager) ApplySync(sender string, msg SyncMessage) error {
	var errs []error
	for _, id := range msg.Removed {
		if err := m.applyRemove(sender, id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range sortedKeys(msg.Added) {
		data := msg.Added[id]
		if data.ID != id {
			errs = append(errs, fmt.Errorf("%w: added key %q does not match id %q", stage.ErrValidation, id, data.ID))
			continue
		}
		if err := m.applyAdd(sender, data, msg.Revisions[id]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range sortedKeys(msg.Updated) {
		p := msg.Updated[id]
		if p.ID == "" {
			p.ID = id
		}
		if p.ID != id {
			errs = append(errs, fmt.Errorf("%w: updated key %q does not match id %q", stage.ErrValidation, id, p.ID))
			continue
		}
		if err := m.applyUpdate(sender, p, msg.Revisions[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) applyAdd(sender string, data stage.Serialized, rev uint64) error {
	_, exists := m.stage.Get(data.ID)
	allowed := m.stage.CanAddStageObjects(sender) || (exists && m.stage.CanModifyStageObject(sender, data.ID))
	if !allowed {
		return fmt.Errorf("%w: user %s cannot add %s", stage.ErrPermission, sender, data.ID)
	}
	_, accepted, err := m.stage.AddRemote(sender, data, rev)
	if err != nil {
		return err
	}
	if accepted && m.listener != nil {
		m.listener.RemoteAdded(data)
	}
	return nil
}

func (m *Manager) applyUpdate(sender string, p stage.Patch, rev uint64) error {
	if _, ok := m.stage.Get(p.ID); !ok {
		return nil
	}
	if !m.stage.CanModifyStageObject(sender, p.ID) {
		return fmt.Errorf("%w: user %s cannot modify %s", stage.ErrPermission, sender, p.ID)
	}
	accepted, err := m.stage.ApplyRemote(sender, p, rev)
	if err != nil {
		return err
	}
	if accepted && m.listener != nil {
		m.listener.RemoteUpdated(p)
	}
	return nil
}

func (m *Manager) applyRemove(sender, id string) error {
	if _, ok := m.stage.Get(id); !ok {
		if m.listener != nil {
			m.listener.RemoteRemoved(id)
		}
		return nil
	}
	if !m.stage.CanDeleteStageObject(sender, id) {
		return fmt.Errorf("%w: user %s cannot delete %s", stage.ErrPermission, sender, id)
	}
	m.stage.RemoveRemote(id)
	if m.listener != nil {
		m.listener.RemoteRemoved(id)
	}
	return nil
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
