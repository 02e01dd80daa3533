package stage

import (
	"errors"
	"testing"
)

func newTestManager(self string) *Manager {
	perms := StaticPermissions{Self: self, Elevated: map[string]bool{"gm": true}}
	return NewManager(DefaultRegistry(), perms, nil)
}

func TestRegisterDuplicateType(t *testing.T) {
	m := newTestManager("gm")
	err := m.RegisterStageObject(TypeImage, newImage)
	if !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("expected duplicate type error, got %v", err)
	}
}

func TestAddValidation(t *testing.T) {
	m := newTestManager("gm")
	if _, err := m.Add("gm", "hologram", Patch{}); !errors.Is(err, ErrUnregisteredType) {
		t.Fatalf("expected unregistered type, got %v", err)
	}
	bad := Layer("overlay")
	if _, err := m.Add("gm", TypeImage, Patch{Src: ptr("a.png"), Layer: &bad}); !errors.Is(err, ErrInvalidLayer) {
		t.Fatalf("expected invalid layer, got %v", err)
	}
	if _, err := m.Add("gm", TypeImage, Patch{ID: "no-src"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing src, got %v", err)
	}
	if m.Objects().Len() != 0 {
		t.Fatalf("failed adds must not index anything, got %d", m.Objects().Len())
	}
	for _, layer := range Layers {
		if m.Container(layer).Len() != 0 {
			t.Fatalf("failed adds must not attach to layer %s", layer)
		}
	}
}

func TestAddAttachesToLayerInZOrder(t *testing.T) {
	m := newTestManager("gm")
	fg := LayerForeground
	top, err := m.Add("gm", TypeImage, Patch{ID: "top", Src: ptr("a.png"), Layer: &fg, ZIndex: ptr(5)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	bottom, err := m.Add("gm", TypeImage, Patch{ID: "bottom", Src: ptr("b.png"), Layer: &fg, ZIndex: ptr(1)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	children := m.Container(LayerForeground).Children()
	if len(children) != 2 || children[0] != bottom || children[1] != top {
		t.Fatalf("unexpected draw order %v", children)
	}
	if !top.Dirty() || !top.Claimed() {
		t.Fatalf("locally added object should be dirty and claimed")
	}

	bottom.SetZIndex(10)
	children = m.Container(LayerForeground).Children()
	if children[1] != bottom {
		t.Fatalf("expected re-sort after zIndex change")
	}

	ui := LayerUI
	if _, err := m.Update("gm", Patch{ID: "top", Layer: &ui}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.Container(LayerForeground).Len() != 1 || m.Container(LayerUI).Len() != 1 {
		t.Fatalf("expected top to move to the ui layer")
	}
}

func TestPermissionPredicates(t *testing.T) {
	m := newTestManager("gm")
	owned, err := m.Add("gm", TypeText, Patch{ID: "owned", Owners: &[]string{"alice"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !m.CanAddStageObjects("gm") || m.CanAddStageObjects("alice") {
		t.Fatalf("only elevated users may add")
	}
	if !m.CanDeleteStageObject("alice", owned.ID()) || m.CanDeleteStageObject("bob", owned.ID()) {
		t.Fatalf("owners may delete, others may not")
	}
	if !m.CanModifyStageObject("gm", owned.ID()) || m.CanModifyStageObject("bob", owned.ID()) {
		t.Fatalf("modify follows delete policy")
	}
	if _, err := m.Add("alice", TypeText, Patch{}); !errors.Is(err, ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	name := "hijack"
	if _, err := m.Update("bob", Patch{ID: "owned", Name: &name}); !errors.Is(err, ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if err := m.Remove("bob", "owned"); !errors.Is(err, ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if !m.Objects().Contains("owned") {
		t.Fatalf("object must survive a rejected remove")
	}
	if err := m.Remove("alice", "owned"); err != nil {
		t.Fatalf("owner remove: %v", err)
	}
	if err := m.Remove("alice", "owned"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
}

func TestAddRemoteIsIdempotent(t *testing.T) {
	source := newTestManager("gm")
	obj, err := source.Add("gm", TypeImage, Patch{ID: "img1", Src: ptr("a.png")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	payload := obj.Serialize()

	remote := newTestManager("alice")
	for i := 0; i < 2; i++ {
		if _, _, err := remote.AddRemote("gm", payload, 1); err != nil {
			t.Fatalf("add remote: %v", err)
		}
	}
	if remote.Objects().Len() != 1 {
		t.Fatalf("expected exactly one object, got %d", remote.Objects().Len())
	}
	copied, _ := remote.Get("img1")
	if copied.Dirty() || copied.Claimed() || copied.Writer() != "gm" {
		t.Fatalf("remote objects must not be dirty or claimed")
	}
	if !Equal(copied.Serialize(), payload) {
		t.Fatalf("remote copy differs from payload")
	}
}

func TestApplyRemoteRevisionOrdering(t *testing.T) {
	m := newTestManager("alice")
	obj, _, err := m.AddRemote("gm", Serialized{Type: TypeText, ID: "t", Text: "v1", Layer: LayerText, Scope: ScopeScene, Alpha: 1, Visible: true}, 3)
	if err != nil {
		t.Fatalf("add remote: %v", err)
	}
	stale := "stale"
	if accepted, err := m.ApplyRemote("gm", Patch{ID: "t", Text: &stale}, 2); err != nil || accepted {
		t.Fatalf("expected stale revision to be dropped, accepted=%v err=%v", accepted, err)
	}
	fresh := "fresh"
	if accepted, err := m.ApplyRemote("gm", Patch{ID: "t", Text: &fresh}, 4); err != nil || !accepted {
		t.Fatalf("expected newer revision to apply, accepted=%v err=%v", accepted, err)
	}
	if accepted, _ := m.ApplyRemote("bob", Patch{ID: "t", Text: &stale}, 4); !accepted {
		t.Fatalf("equal revision from a larger writer id should win the tie")
	}
	if accepted, _ := m.ApplyRemote("alice", Patch{ID: "t", Text: &fresh}, 4); accepted {
		t.Fatalf("equal revision from a smaller writer id should lose the tie")
	}
	if obj.Variant().(*Text).Text() != "stale" || obj.Dirty() || obj.Writer() != "bob" {
		t.Fatalf("unexpected state after remote apply")
	}
	if accepted, err := m.ApplyRemote("gm", Patch{ID: "missing", Text: &fresh}, 9); err != nil || accepted {
		t.Fatalf("unknown ids must be ignored")
	}
	if m.RemoveRemote("missing") {
		t.Fatalf("removing an unknown id must be a no-op")
	}
}

func TestLoadSkipsInvalidAndExisting(t *testing.T) {
	m := newTestManager("gm")
	list := []Serialized{
		{Type: TypeImage, ID: "a", Src: "a.png", Layer: LayerPrimary, Scope: ScopeScene, Alpha: 1, Visible: true},
		{Type: "unknown", ID: "b"},
		{Type: TypeImage, ID: "a", Src: "dup.png", Layer: LayerPrimary, Scope: ScopeScene, Alpha: 1, Visible: true},
	}
	loaded := m.Load(list)
	if len(loaded) != 1 || m.Objects().Len() != 1 {
		t.Fatalf("expected one loaded object, got %d", len(loaded))
	}
	if loaded[0].Dirty() || loaded[0].Claimed() {
		t.Fatalf("loaded objects must not be dirty or claimed")
	}
	m.Clear()
	if m.Objects().Len() != 0 {
		t.Fatalf("expected clear to destroy everything")
	}
}

type recordingRenderer struct {
	attached map[*Object]Layer
}

type recordedNode struct {
	obj *Object
}

func (r *recordingRenderer) Attach(layer Layer, obj *Object) RenderNode {
	r.attached[obj] = layer
	return recordedNode{obj: obj}
}

func (r *recordingRenderer) Detach(node RenderNode) {
	delete(r.attached, node.(recordedNode).obj)
}

func TestLayerChangeReattachesRenderNode(t *testing.T) {
	renderer := &recordingRenderer{attached: make(map[*Object]Layer)}
	m := NewManager(DefaultRegistry(), StaticPermissions{Self: "gm", Elevated: map[string]bool{"gm": true}}, renderer)
	obj, err := m.Add("gm", TypeImage, Patch{ID: "x", Src: ptr("a.png")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if renderer.attached[obj] != LayerPrimary {
		t.Fatalf("expected node attached under primary, got %q", renderer.attached[obj])
	}

	ui := LayerUI
	if _, err := m.Update("gm", Patch{ID: "x", Layer: &ui}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if renderer.attached[obj] != LayerUI || len(renderer.attached) != 1 {
		t.Fatalf("expected node re-attached under ui, got %v", renderer.attached)
	}
	if m.Container(LayerUI).Len() != 1 || m.Container(LayerPrimary).Len() != 0 {
		t.Fatalf("expected object moved to the ui container")
	}

	obj.Destroy()
	if len(renderer.attached) != 0 {
		t.Fatalf("destroy must detach the current node, got %v", renderer.attached)
	}
}

func TestAddRemoteRejectedTypeChangeKeepsObject(t *testing.T) {
	m := newTestManager("alice")
	original, _, err := m.AddRemote("gm", Serialized{Type: TypeImage, ID: "x", Src: "a.png", Layer: LayerPrimary, Scope: ScopeScene, Alpha: 1, Visible: true}, 1)
	if err != nil {
		t.Fatalf("add remote: %v", err)
	}

	invalid := Serialized{Type: TypeActor, ID: "x", Layer: LayerPrimary, Scope: ScopeScene, Alpha: 1, Visible: true}
	if _, accepted, err := m.AddRemote("zz", invalid, 9); !errors.Is(err, ErrValidation) || accepted {
		t.Fatalf("expected validation error, accepted=%v err=%v", accepted, err)
	}
	current, ok := m.Get("x")
	if !ok || current != original || original.Destroyed() || m.Container(LayerPrimary).Len() != 1 {
		t.Fatalf("rejected payload must leave the existing object in place")
	}
	if original.Revision() != 1 || original.Writer() != "gm" {
		t.Fatalf("rejected payload must not touch revision or writer")
	}

	text := Serialized{Type: TypeText, ID: "x", Text: "hello", Layer: LayerText, Scope: ScopeScene, Alpha: 1, Visible: true}
	replaced, accepted, err := m.AddRemote("zz", text, 9)
	if err != nil || !accepted {
		t.Fatalf("expected type change to apply, accepted=%v err=%v", accepted, err)
	}
	if !original.Destroyed() || replaced.Type() != TypeText || m.Objects().Len() != 1 {
		t.Fatalf("expected the image replaced by a text object")
	}
	if m.Container(LayerPrimary).Len() != 0 || m.Container(LayerText).Len() != 1 {
		t.Fatalf("expected replacement attached under the text layer")
	}
	if replaced.Writer() != "zz" || replaced.Revision() != 9 || replaced.Dirty() {
		t.Fatalf("unexpected replacement state writer=%s rev=%d", replaced.Writer(), replaced.Revision())
	}
}

func TestAddRemoteAppliesZeroValuedVariantKeys(t *testing.T) {
	m := newTestManager("alice")
	obj, _, err := m.AddRemote("gm", Serialized{Type: TypeImage, ID: "x", Src: "a.png", Loop: true, Tint: "#ff0000", Layer: LayerPrimary, Scope: ScopeScene, Alpha: 1, Visible: true}, 1)
	if err != nil {
		t.Fatalf("add remote: %v", err)
	}

	plain := obj.Serialize()
	plain.Tint = ""
	plain.Loop = false
	if _, accepted, err := m.AddRemote("gm", plain, 2); err != nil || !accepted {
		t.Fatalf("expected newer payload to apply, accepted=%v err=%v", accepted, err)
	}
	image := obj.Variant().(*Image)
	if image.Tint() != "" || image.Loop() {
		t.Fatalf("expected cleared tint and loop, got tint=%q loop=%v", image.Tint(), image.Loop())
	}
	if !Equal(obj.Serialize(), plain) || obj.Dirty() || obj.Revision() != 2 {
		t.Fatalf("local copy must match the payload exactly")
	}
}
