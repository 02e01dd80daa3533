package stage

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// SchemaVersion is embedded in every serialized payload.
const SchemaVersion = "1.2.0"

var schemaVersion = semver.MustParse(SchemaVersion)

// NewID returns a fresh object id.
func NewID() string {
	return uuid.NewString()
}

// Object is one replicated overlay element. The common transform and
// ownership fields live here; type-specific fields live in the Variant.
//
// Objects are not safe for concurrent use. A session touches them from a
// single goroutine.
type Object struct {
	id  string
	typ string

	name                 string
	layer                Layer
	scope                Scope
	scopeOwners          []string
	owners               []string
	bounds               Rect
	skew                 Point
	angle                float64
	alpha                float64
	zIndex               int
	locked               bool
	visible              bool
	filters              []Filter
	triggersEnabled      bool
	triggers             map[string][]TriggerAction
	restrictToVisualArea bool

	variant Variant

	dirty    bool
	claimed  bool
	writer   string
	revision uint64

	selected    bool
	dragging    bool
	resizing    bool
	placing     bool
	highlighted bool

	collection *Collection
	detach     func()
	destroyed  bool
}

func newObject(id string, variant Variant) *Object {
	obj := &Object{
		id:          id,
		typ:         variant.Type(),
		name:        id,
		layer:       LayerPrimary,
		scope:       ScopeScene,
		scopeOwners: []string{},
		owners:      []string{},
		alpha:       1,
		visible:     true,
		filters:     []Filter{},
		triggers:    map[string][]TriggerAction{},
		variant:     variant,
	}
	variant.Bind(obj)
	return obj
}

func (o *Object) ID() string { return o.id }
func (o *Object) Type() string { return o.typ }
func (o *Object) Name() string { return o.name }
func (o *Object) Layer() Layer { return o.layer }
func (o *Object) Scope() Scope { return o.scope }
func (o *Object) ScopeOwners() []string { return cloneList(o.scopeOwners) }
func (o *Object) Owners() []string { return cloneList(o.owners) }
func (o *Object) Bounds() Rect { return o.bounds }
func (o *Object) Skew() Point { return o.skew }
func (o *Object) Angle() float64 { return o.angle }
func (o *Object) Alpha() float64 { return o.alpha }
func (o *Object) ZIndex() int { return o.zIndex }
func (o *Object) Locked() bool { return o.locked }
func (o *Object) Visible() bool { return o.visible }
func (o *Object) RestrictToVisualArea() bool { return o.restrictToVisualArea }
func (o *Object) TriggersEnabled() bool { return o.triggersEnabled }
func (o *Object) Variant() Variant { return o.variant }
func (o *Object) Dirty() bool { return o.dirty }
func (o *Object) Destroyed() bool { return o.destroyed }
func (o *Object) Selected() bool { return o.selected }
func (o *Object) Dragging() bool { return o.dragging }
func (o *Object) Resizing() bool { return o.resizing }
func (o *Object) Placing() bool { return o.placing }
func (o *Object) Highlighted() bool { return o.highlighted }
func (o *Object) Triggers() map[string][]TriggerAction {
	return cloneTriggers(o.triggers)
}

// HasOwner reports whether userID is listed in owners.
func (o *Object) HasOwner(userID string) bool {
	for _, owner := range o.owners {
		if owner == userID {
			return true
		}
	}
	return false
}

// Claimed reports whether the last replicated change came from this client.
func (o *Object) Claimed() bool { return o.claimed }

// Writer is the sender of the last applied remote change, or "" if none.
func (o *Object) Writer() string { return o.writer }

// Revision is the logical clock of the last broadcast or applied change.
func (o *Object) Revision() uint64 { return o.revision }

// SetRevision records the revision a broadcast carried.
func (o *Object) SetRevision(rev uint64) { o.revision = rev }

// ClearDirty is called by the synchronization loop after a successful send.
func (o *Object) ClearDirty() { o.dirty = false }

// Release drops the local writer claim, e.g. when the object was loaded
// from storage rather than edited here.
func (o *Object) Release() {
	o.claimed = false
	o.writer = ""
}

func (o *Object) markDirty() {
	o.dirty = true
	o.claimed = true
	o.writer = ""
}

func (o *Object) SetName(name string) {
	if o.name == name {
		return
	}
	o.name = name
	o.markDirty()
}

func (o *Object) SetBounds(bounds Rect) {
	if o.bounds == bounds {
		return
	}
	o.bounds = bounds
	o.markDirty()
}

func (o *Object) SetSkew(skew Point) {
	if o.skew == skew {
		return
	}
	o.skew = skew
	o.markDirty()
}

func (o *Object) SetAngle(angle float64) {
	if o.angle == angle {
		return
	}
	o.angle = angle
	o.markDirty()
}

// SetAlpha clamps alpha into [0, 1].
func (o *Object) SetAlpha(alpha float64) {
	alpha = clamp(alpha, 0, 1)
	if o.alpha == alpha {
		return
	}
	o.alpha = alpha
	o.markDirty()
}

func (o *Object) SetZIndex(z int) {
	if o.zIndex == z {
		return
	}
	o.zIndex = z
	o.markDirty()
	if o.collection != nil && o.collection.onReorder != nil {
		o.collection.onReorder(o)
	}
}

func (o *Object) SetLocked(locked bool) {
	if o.locked == locked {
		return
	}
	o.locked = locked
	o.markDirty()
}

func (o *Object) SetVisible(visible bool) {
	if o.visible == visible {
		return
	}
	o.visible = visible
	o.markDirty()
}

func (o *Object) SetRestrictToVisualArea(restrict bool) {
	if o.restrictToVisualArea == restrict {
		return
	}
	o.restrictToVisualArea = restrict
	o.markDirty()
}

func (o *Object) SetOwners(owners []string) {
	if sameJSON(o.owners, cloneList(owners)) {
		return
	}
	o.owners = cloneList(owners)
	o.markDirty()
}

func (o *Object) SetTriggers(enabled bool, triggers map[string][]TriggerAction) {
	next := cloneTriggers(triggers)
	if o.triggersEnabled == enabled && sameJSON(o.triggers, next) {
		return
	}
	o.triggersEnabled = enabled
	o.triggers = next
	o.markDirty()
}

func (o *Object) SetFilters(filters []Filter) {
	next := cloneFilters(filters)
	if sameJSON(o.filters, next) {
		return
	}
	o.filters = next
	o.markDirty()
}

func (o *Object) SetSelected(v bool) { o.selected = v }
func (o *Object) SetDragging(v bool) { o.dragging = v }
func (o *Object) SetResizing(v bool) { o.resizing = v }
func (o *Object) SetPlacing(v bool) { o.placing = v }
func (o *Object) SetHighlighted(v bool) { o.highlighted = v }

// Serialize returns the full payload for the object's current state.
func (o *Object) Serialize() Serialized {
	s := Serialized{
		Type:                 o.typ,
		ID:                   o.id,
		Owners:               cloneList(o.owners),
		Version:              SchemaVersion,
		Layer:                o.layer,
		Name:                 o.name,
		Scope:                o.scope,
		ScopeOwners:          cloneList(o.scopeOwners),
		TriggersEnabled:      o.triggersEnabled,
		Triggers:             cloneTriggers(o.triggers),
		Bounds:               o.bounds,
		Skew:                 o.skew,
		Angle:                o.angle,
		Locked:               o.locked,
		Visible:              o.visible,
		Filters:              cloneFilters(o.filters),
		RestrictToVisualArea: o.restrictToVisualArea,
		ZIndex:               o.zIndex,
		Alpha:                o.alpha,
	}
	o.variant.Encode(&s)
	return s
}

// Apply is the local, partial deserialize: present keys are applied, absent
// keys are left alone, and the object is marked dirty if anything changed.
// Nothing is mutated when validation fails.
func (o *Object) Apply(p Patch) error {
	changed, err := o.apply(p)
	if err != nil {
		return err
	}
	if changed {
		o.markDirty()
	}
	return nil
}

// applyRemote applies a patch received from another client without marking
// the object dirty.
func (o *Object) applyRemote(p Patch, sender string) (bool, error) {
	changed, err := o.apply(p)
	if err != nil {
		return false, err
	}
	o.claimed = false
	o.writer = sender
	return changed, nil
}

func (o *Object) apply(p Patch) (bool, error) {
	if o.destroyed {
		return false, fmt.Errorf("%w: %s", ErrNotFound, o.id)
	}
	if p.ID != "" && p.ID != o.id {
		return false, fmt.Errorf("%w: patch id %q does not match %q", ErrInvalidValue, p.ID, o.id)
	}
	if err := validatePatch(p); err != nil {
		return false, err
	}
	if err := o.variant.Validate(p); err != nil {
		return false, err
	}

	changed := false
	set := func(c bool) {
		if c {
			changed = true
		}
	}
	prevLayer := o.layer
	prevZ := o.zIndex

	set(assign(&o.name, p.Name))
	set(assign(&o.layer, p.Layer))
	set(assign(&o.scope, p.Scope))
	set(assign(&o.triggersEnabled, p.TriggersEnabled))
	set(assign(&o.bounds, p.Bounds))
	set(assign(&o.skew, p.Skew))
	set(assign(&o.angle, p.Angle))
	set(assign(&o.locked, p.Locked))
	set(assign(&o.visible, p.Visible))
	set(assign(&o.restrictToVisualArea, p.RestrictToVisualArea))
	set(assign(&o.zIndex, p.ZIndex))
	set(assign(&o.alpha, p.Alpha))
	if p.Owners != nil && !sameJSON(o.owners, cloneList(*p.Owners)) {
		o.owners = cloneList(*p.Owners)
		changed = true
	}
	if p.ScopeOwners != nil && !sameJSON(o.scopeOwners, cloneList(*p.ScopeOwners)) {
		o.scopeOwners = cloneList(*p.ScopeOwners)
		changed = true
	}
	if p.Triggers != nil && !sameJSON(o.triggers, cloneTriggers(*p.Triggers)) {
		o.triggers = cloneTriggers(*p.Triggers)
		changed = true
	}
	if p.Filters != nil && !sameJSON(o.filters, cloneFilters(*p.Filters)) {
		o.filters = cloneFilters(*p.Filters)
		changed = true
	}
	set(o.variant.Apply(p))

	if o.collection != nil && o.collection.onReorder != nil && (prevLayer != o.layer || prevZ != o.zIndex) {
		o.collection.onReorder(o)
	}
	return changed, nil
}

// ScreenBounds converts the normalized bounds into screen pixels, relative
// to the visual area when the object is restricted to it.
func (o *Object) ScreenBounds(vp Viewport) Rect {
	frame := vp.Screen
	if o.restrictToVisualArea {
		frame = vp.VisualArea
	}
	return Rect{
		X:      frame.X + o.bounds.X*frame.Width,
		Y:      frame.Y + o.bounds.Y*frame.Height,
		Width:  o.bounds.Width * frame.Width,
		Height: o.bounds.Height * frame.Height,
	}
}

// Destroy detaches the render node and removes the object from its
// collection. Calling it again does nothing.
func (o *Object) Destroy() {
	if o.destroyed {
		return
	}
	o.destroyed = true
	if o.detach != nil {
		o.detach()
		o.detach = nil
	}
	if o.collection != nil {
		o.collection.Delete(o.id)
	}
}

func validatePatch(p Patch) error {
	if p.Layer != nil && !p.Layer.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLayer, *p.Layer)
	}
	if p.Scope != nil && !p.Scope.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidScope, *p.Scope)
	}
	if p.Alpha != nil && (*p.Alpha < 0 || *p.Alpha > 1) {
		return fmt.Errorf("%w: alpha %v out of range", ErrInvalidValue, *p.Alpha)
	}
	if p.Version != nil {
		if err := checkVersion(*p.Version); err != nil {
			return err
		}
	}
	return nil
}

// checkVersion accepts any payload whose major version is not newer than
// ours.
func checkVersion(raw string) error {
	version, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}
	if version.Major() > schemaVersion.Major() {
		return fmt.Errorf("%w: %s is newer than %s", ErrInvalidVersion, raw, SchemaVersion)
	}
	return nil
}

func assign[T comparable](dst *T, src *T) bool {
	if src == nil || *dst == *src {
		return false
	}
	*dst = *src
	return true
}

func cloneList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
