package socket

import (
	"context"
	"errors"
	"testing"

	"stage-manager/internal/stage"
)

type peer struct {
	stage     *stage.Manager
	dir       *Directory
	socket    *Manager
	transport *LocalTransport
}

func newPeer(t *testing.T, bus *LocalBus, id string, elevated bool) *peer {
	t.Helper()
	dir := NewDirectory(id, elevated)
	stageMgr := stage.NewManager(nil, dir, nil)
	transport := bus.Connect(id, elevated)
	t.Cleanup(func() { _ = transport.Close() })
	return &peer{
		stage:     stageMgr,
		dir:       dir,
		socket:    NewManager(stageMgr, dir, transport),
		transport: transport,
	}
}

// drain handles every envelope already queued for the peer.
func (p *peer) drain(t *testing.T) int {
	t.Helper()
	handled := 0
	for {
		select {
		case env, ok := <-p.transport.Incoming():
			if !ok {
				return handled
			}
			_ = p.socket.Handle(env)
			handled++
		default:
			return handled
		}
	}
}

func imagePatch(id, src string) stage.Patch {
	return stage.Patch{ID: id, Src: &src}
}

func TestUnprivilegedOperationsFailBeforeSend(t *testing.T) {
	bus := NewLocalBus("table", 16)
	gm := newPeer(t, bus, "gm", true)
	player := newPeer(t, bus, "player", false)
	gm.drain(t)
	player.drain(t)

	obj, err := gm.stage.Add("gm", stage.TypeImage, imagePatch("door", "door.png"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := gm.socket.AddStageObject(context.Background(), obj.Serialize()); err != nil {
		t.Fatalf("broadcast add: %v", err)
	}
	player.drain(t)

	ctx := context.Background()
	if err := player.socket.AddStageObject(ctx, obj.Serialize()); !errors.Is(err, stage.ErrPermission) {
		t.Fatalf("expected permission error on add, got %v", err)
	}
	if err := player.socket.RemoveStageObject(ctx, "door"); !errors.Is(err, stage.ErrPermission) {
		t.Fatalf("expected permission error on remove, got %v", err)
	}
	msg := NewSyncMessage()
	msg.Updated["door"] = stage.Patch{ID: "door"}
	if err := player.socket.SyncStageObjects(ctx, msg); !errors.Is(err, stage.ErrPermission) {
		t.Fatalf("expected permission error on sync, got %v", err)
	}
	if sent := player.transport.Emitted(); len(sent) != 0 {
		t.Fatalf("expected no sends, got %d", len(sent))
	}
	if _, ok := player.stage.Get("door"); !ok {
		t.Fatalf("object must remain after rejected remove")
	}
}

func TestAddStageObjectReceiptIsIdempotent(t *testing.T) {
	bus := NewLocalBus("table", 16)
	gm := newPeer(t, bus, "gm", true)
	player := newPeer(t, bus, "player", false)

	obj, err := gm.stage.Add("gm", stage.TypeImage, imagePatch("img1", "a.png"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := gm.socket.AddStageObject(context.Background(), obj.Serialize()); err != nil {
			t.Fatalf("broadcast add: %v", err)
		}
	}
	player.drain(t)

	if player.stage.Objects().Len() != 1 {
		t.Fatalf("expected one object, got %d", player.stage.Objects().Len())
	}
	copied, _ := player.stage.Get("img1")
	if !stage.Equal(copied.Serialize(), obj.Serialize()) {
		t.Fatalf("remote copy differs")
	}
	if gm.stage.Objects().Len() != 1 {
		t.Fatalf("sender must not receive its own add")
	}
}

func TestSyncReCreateWinsOverRemoval(t *testing.T) {
	bus := NewLocalBus("table", 16)
	gm := newPeer(t, bus, "gm", true)
	player := newPeer(t, bus, "player", false)

	obj, _ := gm.stage.Add("gm", stage.TypeImage, imagePatch("x", "old.png"))
	_ = gm.socket.AddStageObject(context.Background(), obj.Serialize())
	player.drain(t)

	recreated := obj.Serialize()
	recreated.Src = "new.png"
	recreated.Name = "fresh"
	msg := NewSyncMessage()
	msg.Removed = []string{"x"}
	msg.Added["x"] = recreated
	if err := gm.socket.SyncStageObjects(context.Background(), msg); err != nil {
		t.Fatalf("sync: %v", err)
	}
	player.drain(t)

	got, ok := player.stage.Get("x")
	if !ok {
		t.Fatalf("expected x to exist after re-creation")
	}
	if !stage.Equal(got.Serialize(), recreated) {
		t.Fatalf("expected added payload, got %+v", got.Serialize())
	}
}

func TestSyncAppliesUpdatesAndIgnoresUnknownIDs(t *testing.T) {
	bus := NewLocalBus("table", 16)
	gm := newPeer(t, bus, "gm", true)
	player := newPeer(t, bus, "player", false)

	obj, _ := gm.stage.Add("gm", stage.TypeImage, imagePatch("img1", "a.png"))
	_ = gm.socket.AddStageObject(context.Background(), obj.Serialize())
	player.drain(t)

	angle := 30.0
	msg := NewSyncMessage()
	msg.Updated["img1"] = stage.Patch{Angle: &angle}
	msg.Updated["ghost"] = stage.Patch{ID: "ghost", Angle: &angle}
	msg.Removed = []string{"also-missing"}
	msg.Revisions["img1"] = 1
	if err := gm.socket.SyncStageObjects(context.Background(), msg); err != nil {
		t.Fatalf("sync: %v", err)
	}
	player.drain(t)

	got, _ := player.stage.Get("img1")
	if got.Angle() != 30 || got.Dirty() {
		t.Fatalf("expected clean remote update, angle=%v dirty=%v", got.Angle(), got.Dirty())
	}
	if got.Writer() != "gm" || got.Revision() != 1 {
		t.Fatalf("expected writer gm at revision 1, got %s@%d", got.Writer(), got.Revision())
	}
}

func TestHandleRejectsUnprivilegedSender(t *testing.T) {
	dir := NewDirectory("player", false)
	stageMgr := stage.NewManager(nil, dir, nil)
	mgr := NewManager(stageMgr, dir, nil)

	data := stage.Serialized{Type: stage.TypeText, ID: "note", Layer: stage.LayerText, Scope: stage.ScopeScene, Alpha: 1, Visible: true, Owners: []string{"gm"}}
	add, _ := NewEnvelope(OpAddStageObject, TargetOthers, AddPayload{Object: data})
	add.Sender = "gm"
	add.Elevated = true
	if err := mgr.Handle(add); err != nil {
		t.Fatalf("add from elevated sender: %v", err)
	}

	remove, _ := NewEnvelope(OpRemoveStageObject, TargetOthers, RemovePayload{ID: "note"})
	remove.Sender = "mallory"
	if err := mgr.Handle(remove); !errors.Is(err, stage.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if _, ok := stageMgr.Get("note"); !ok {
		t.Fatalf("object must survive a rejected remote remove")
	}

	forged, _ := NewEnvelope(OpAddStageObject, TargetOthers, AddPayload{Object: data})
	if err := mgr.Handle(forged); !errors.Is(err, stage.ErrValidation) {
		t.Fatalf("expected missing sender to be rejected, got %v", err)
	}

	remove.Sender = "gm"
	if err := mgr.Handle(remove); err != nil {
		t.Fatalf("owner remove: %v", err)
	}
	if err := mgr.Handle(remove); err != nil {
		t.Fatalf("redelivered remove must be a silent no-op, got %v", err)
	}
}

func TestSendFailureIsTransient(t *testing.T) {
	bus := NewLocalBus("table", 16)
	gm := newPeer(t, bus, "gm", true)
	gm.transport.FailSends(errClosed)

	obj, _ := gm.stage.Add("gm", stage.TypeImage, imagePatch("img1", "a.png"))
	err := gm.socket.AddStageObject(context.Background(), obj.Serialize())
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected send failure, got %v", err)
	}
}
