package stage

import (
	"fmt"
	"log"
)

// Manager is the single point of truth for one client's stage: it owns the
// collection and the layer containers, builds objects through the registry
// and gates every mutating entry point behind the permission predicates.
//
// Local entry points take the acting user id and fail with ErrPermission
// before touching anything. Remote entry points are called by the socket
// layer after it has re-validated the sender, and never mark objects dirty.
type Manager struct {
	registry *Registry
	perms    Permissions
	renderer Renderer
	objects  *Collection
	layers   map[Layer]*LayerContainer
	nodes    map[*Object]*renderBinding
	viewport Viewport
}

func NewManager(registry *Registry, perms Permissions, renderer Renderer) *Manager {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if renderer == nil {
		renderer = NullRenderer{}
	}
	m := &Manager{
		registry: registry,
		perms:    perms,
		renderer: renderer,
		objects:  NewCollection(),
		layers:   make(map[Layer]*LayerContainer, len(Layers)),
		nodes:    make(map[*Object]*renderBinding),
		viewport: DefaultViewport(),
	}
	for _, layer := range Layers {
		m.layers[layer] = newLayerContainer(layer)
	}
	m.objects.onReorder = m.reparent
	return m
}

func (m *Manager) Registry() *Registry { return m.registry }
func (m *Manager) Objects() *Collection { return m.objects }
func (m *Manager) Permissions() Permissions { return m.perms }
func (m *Manager) Viewport() Viewport { return m.viewport }
func (m *Manager) SetViewport(vp Viewport) { m.viewport = vp }
func (m *Manager) UserID() string { return m.perms.UserID() }

// Container returns the render container for layer, or nil if the layer is
// not part of the enumeration.
func (m *Manager) Container(layer Layer) *LayerContainer {
	return m.layers[layer]
}

// RegisterStageObject adds a type to the registry.
func (m *Manager) RegisterStageObject(name string, factory Factory) error {
	return m.registry.Register(name, factory)
}

func (m *Manager) CanAddStageObjects(userID string) bool {
	return m.perms.IsElevated(userID)
}

func (m *Manager) CanDeleteStageObject(userID, id string) bool {
	if m.perms.IsElevated(userID) {
		return true
	}
	obj, ok := m.objects.Get(id)
	return ok && obj.HasOwner(userID)
}

func (m *Manager) CanModifyStageObject(userID, id string) bool {
	return m.CanDeleteStageObject(userID, id)
}

func (m *Manager) Get(id string) (*Object, bool) {
	return m.objects.Get(id)
}

// Add creates an object of type typ locally on behalf of userID. Absent
// keys in data keep their defaults. The object starts dirty and claimed, so
// the next tick broadcasts it.
func (m *Manager) Add(userID, typ string, data Patch) (*Object, error) {
	if !m.CanAddStageObjects(userID) {
		return nil, fmt.Errorf("%w: user %s cannot add stage objects", ErrPermission, userID)
	}
	obj, err := m.materialize(typ, data)
	if err != nil {
		return nil, err
	}
	obj.markDirty()
	log.Printf("stage object added id=%s type=%s layer=%s user=%s", obj.ID(), obj.Type(), obj.Layer(), userID)
	return obj, nil
}

// Update applies a partial change on behalf of userID.
func (m *Manager) Update(userID string, p Patch) (*Object, error) {
	obj, ok := m.objects.Get(p.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	if !m.CanModifyStageObject(userID, p.ID) {
		return nil, fmt.Errorf("%w: user %s cannot modify %s", ErrPermission, userID, p.ID)
	}
	if err := obj.Apply(p); err != nil {
		return nil, err
	}
	return obj, nil
}

// Remove destroys an object on behalf of userID.
func (m *Manager) Remove(userID, id string) error {
	obj, ok := m.objects.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !m.CanDeleteStageObject(userID, id) {
		return fmt.Errorf("%w: user %s cannot delete %s", ErrPermission, userID, id)
	}
	obj.Destroy()
	log.Printf("stage object removed id=%s user=%s", id, userID)
	return nil
}

// Load materializes objects read from storage. They are neither dirty nor
// claimed; existing ids are skipped. Invalid entries are logged and
// skipped so one bad record does not block a scene.
func (m *Manager) Load(list []Serialized) []*Object {
	loaded := make([]*Object, 0, len(list))
	for _, data := range list {
		if data.ID != "" && m.objects.Contains(data.ID) {
			continue
		}
		obj, err := m.materialize(data.Type, PatchFrom(data))
		if err != nil {
			log.Printf("stage object load skipped id=%s type=%s error=%v", data.ID, data.Type, err)
			continue
		}
		loaded = append(loaded, obj)
	}
	return loaded
}

// Clear destroys every object without broadcasting, e.g. on scene teardown.
func (m *Manager) Clear() {
	for _, obj := range m.objects.All() {
		obj.Destroy()
	}
}

// AddRemote applies an addStageObject received from sender and reports
// whether the payload was accepted. An existing object with the same id is
// brought to the payload's state in place; a different type replaces it.
// The payload is fully built before anything local changes, so a rejected
// payload leaves the existing object as it was.
func (m *Manager) AddRemote(sender string, data Serialized, rev uint64) (*Object, bool, error) {
	existing, ok := m.objects.Get(data.ID)
	if ok && !m.acceptRevision(existing, sender, rev) {
		return existing, false, nil
	}
	if ok && Equal(existing.Serialize(), data) {
		existing.revision = rev
		return existing, true, nil
	}
	built, err := m.registry.Decode(data)
	if err != nil {
		return nil, false, err
	}
	if ok && built.Type() == existing.Type() {
		if _, err := existing.applyRemote(Diff(existing.Serialize(), built.Serialize()), sender); err != nil {
			return nil, false, err
		}
		existing.revision = rev
		return existing, true, nil
	}
	if ok {
		existing.Destroy()
	}
	if err := m.index(built); err != nil {
		return nil, false, err
	}
	built.writer = sender
	built.revision = rev
	return built, true, nil
}

// ApplyRemote applies an update from sender and reports whether it was
// accepted. Unknown ids and stale revisions are ignored.
func (m *Manager) ApplyRemote(sender string, p Patch, rev uint64) (bool, error) {
	obj, ok := m.objects.Get(p.ID)
	if !ok {
		return false, nil
	}
	if !m.acceptRevision(obj, sender, rev) {
		return false, nil
	}
	if _, err := obj.applyRemote(p, sender); err != nil {
		return false, err
	}
	obj.revision = rev
	return true, nil
}

// RemoveRemote destroys id if present. Unknown ids are ignored.
func (m *Manager) RemoveRemote(id string) bool {
	obj, ok := m.objects.Get(id)
	if !ok {
		return false
	}
	obj.Destroy()
	return true
}

// acceptRevision orders changes by (revision, writer id). A zero incoming
// revision is an unversioned change and always applies.
func (m *Manager) acceptRevision(obj *Object, sender string, rev uint64) bool {
	if rev == 0 {
		return true
	}
	if rev != obj.revision {
		return rev > obj.revision
	}
	current := obj.writer
	if obj.claimed || current == "" {
		current = m.UserID()
	}
	return sender > current
}

// materialize is the shared construct-then-index path for local and remote
// creation. The collection is untouched unless construction succeeds.
func (m *Manager) materialize(typ string, data Patch) (*Object, error) {
	if data.ID != "" && m.objects.Contains(data.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, data.ID)
	}
	obj, err := m.registry.Build(typ, data)
	if err != nil {
		return nil, err
	}
	if err := m.index(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// index attaches a built object and adds it to the collection.
func (m *Manager) index(obj *Object) error {
	m.attach(obj)
	if err := m.objects.Set(obj.ID(), obj); err != nil {
		obj.Destroy()
		return err
	}
	return nil
}

type renderBinding struct {
	layer Layer
	node  RenderNode
}

func (m *Manager) attach(obj *Object) {
	m.nodes[obj] = &renderBinding{layer: obj.Layer(), node: m.renderer.Attach(obj.Layer(), obj)}
	m.layers[obj.Layer()].add(obj)
	obj.detach = func() {
		for _, c := range m.layers {
			c.remove(obj)
		}
		if binding, ok := m.nodes[obj]; ok {
			m.renderer.Detach(binding.node)
			delete(m.nodes, obj)
		}
	}
}

// reparent moves obj to the container for its current layer, re-sorts, and
// re-attaches its render node when the layer changed.
func (m *Manager) reparent(obj *Object) {
	if obj.destroyed {
		return
	}
	target := m.layers[obj.Layer()]
	for layer, c := range m.layers {
		if layer != obj.Layer() {
			c.remove(obj)
		}
	}
	target.add(obj)
	target.sort()
	if binding, ok := m.nodes[obj]; ok && binding.layer != obj.Layer() {
		m.renderer.Detach(binding.node)
		binding.layer = obj.Layer()
		binding.node = m.renderer.Attach(obj.Layer(), obj)
	}
}

// Select marks the ids userID may modify as selected, clearing any previous
// selection unless additive is set. Unknown ids are ignored. It returns the
// number of objects selected by this call.
func (m *Manager) Select(userID string, additive bool, ids ...string) int {
	if !additive {
		m.Deselect()
	}
	selected := 0
	for _, id := range ids {
		obj, ok := m.objects.Get(id)
		if !ok || !m.CanModifyStageObject(userID, id) {
			continue
		}
		obj.SetSelected(true)
		selected++
	}
	return selected
}

// Deselect clears the selection.
func (m *Manager) Deselect() {
	for _, obj := range m.objects.Selected() {
		obj.SetSelected(false)
	}
}
