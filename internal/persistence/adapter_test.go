package persistence

import (
	"context"
	"errors"
	"os"
	"testing"

	"stage-manager/internal/config"
	"stage-manager/internal/db"
	"stage-manager/internal/stage"
)

func object(id string, scope stage.Scope, owners ...string) stage.Serialized {
	if owners == nil {
		owners = []string{}
	}
	return stage.Serialized{
		Type:        stage.TypeText,
		ID:          id,
		Owners:      []string{},
		Version:     stage.SchemaVersion,
		Layer:       stage.LayerText,
		Name:        id,
		Scope:       scope,
		ScopeOwners: owners,
		Triggers:    map[string][]stage.TriggerAction{},
		Filters:     []stage.Filter{},
		Visible:     true,
		Alpha:       1,
		Text:        "hello " + id,
	}
}

func TestSaveGroupsByScopeAndSkipsEqualWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	adapter := NewAdapter(store)
	objects := []stage.Serialized{
		object("banner", stage.ScopeGlobal),
		object("door", stage.ScopeScene, "tavern"),
		object("loose", stage.ScopeScene),
		object("elsewhere", stage.ScopeScene, "dungeon"),
		object("notes", stage.ScopeUser, "alice"),
		object("cursor", stage.ScopeTemp),
	}
	keys := []Key{WorldKey(), SceneKey("tavern"), UserKey("alice")}

	written, err := adapter.Save(ctx, keys, objects)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if written != 3 || store.Writes() != 3 {
		t.Fatalf("expected three writes, got %d/%d", written, store.Writes())
	}
	scene, _ := store.Get(ctx, stage.ScopeScene, "tavern")
	if len(scene) != 2 || scene[0].ID != "door" || scene[1].ID != "loose" {
		t.Fatalf("unexpected scene list %+v", scene)
	}

	written, err = adapter.Save(ctx, keys, objects)
	if err != nil || written != 0 || store.Writes() != 3 {
		t.Fatalf("expected equal writes to be skipped, written=%d err=%v", written, err)
	}

	loaded, err := adapter.Load(ctx, "tavern", "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ids := make([]string, 0, len(loaded))
	for _, data := range loaded {
		ids = append(ids, data.ID)
		if data.Scope == stage.ScopeTemp {
			t.Fatalf("temp objects must never be stored")
		}
	}
	if len(ids) != 4 || ids[0] != "banner" || ids[3] != "notes" {
		t.Fatalf("unexpected load order %v", ids)
	}
}

func TestSaveWritesEmptyListAfterDeletion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	adapter := NewAdapter(store)
	keys := []Key{SceneKey("tavern")}
	if _, err := adapter.Save(ctx, keys, []stage.Serialized{object("door", stage.ScopeScene)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if written, err := adapter.Save(ctx, keys, nil); err != nil || written != 1 {
		t.Fatalf("expected deletion to be written, written=%d err=%v", written, err)
	}
	scene, _ := store.Get(ctx, stage.ScopeScene, "tavern")
	if len(scene) != 0 {
		t.Fatalf("expected empty scene, got %d", len(scene))
	}
}

func TestKeyValidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Set(ctx, stage.ScopeTemp, "", nil); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected temp scope to be rejected, got %v", err)
	}
	if _, err := store.Get(ctx, stage.ScopeScene, ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected scene without owner to be rejected, got %v", err)
	}
	if err := store.Set(ctx, stage.ScopeGlobal, "x", nil); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected owned world key to be rejected, got %v", err)
	}
	if got := SceneKey("tavern").String(); got != "stage:scene:tavern" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestImportValidatesAndReplacesByID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	registry := stage.DefaultRegistry()
	key := SceneKey("tavern")

	if _, err := Import(ctx, store, registry, key, []stage.Serialized{object("door", stage.ScopeScene)}); err != nil {
		t.Fatalf("import: %v", err)
	}
	updated := object("door", stage.ScopeScene)
	updated.Text = "open"
	if _, err := Import(ctx, store, registry, key, []stage.Serialized{updated, object("sign", stage.ScopeScene)}); err != nil {
		t.Fatalf("import: %v", err)
	}
	scene, _ := store.Get(ctx, stage.ScopeScene, "tavern")
	if len(scene) != 2 || scene[0].Text != "open" {
		t.Fatalf("unexpected scene list %+v", scene)
	}

	bad := object("ghost", stage.ScopeScene)
	bad.Type = "hologram"
	if _, err := Import(ctx, store, registry, key, []stage.Serialized{bad}); !errors.Is(err, stage.ErrUnregisteredType) {
		t.Fatalf("expected unregistered type, got %v", err)
	}
	if _, err := Import(ctx, store, registry, key, []stage.Serialized{object("banner", stage.ScopeGlobal)}); !errors.Is(err, stage.ErrInvalidScope) {
		t.Fatalf("expected scope mismatch, got %v", err)
	}
}

func TestGormStoreRoundTrip(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("skipping test; DATABASE_URL is not set")
	}
	conn, err := db.Open()
	if err != nil {
		t.Skipf("skipping test; database unavailable: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	exerciseStore(t, NewGormStore(conn))
}

func TestValkeyStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("VALKEY_ADDR")
	if addr == "" {
		t.Skip("skipping test; VALKEY_ADDR is not set")
	}
	store, err := NewValkeyStore(addr)
	if err != nil {
		t.Skipf("skipping test; valkey unavailable: %v", err)
	}
	t.Cleanup(store.Close)
	exerciseStore(t, store)
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	owner := "test-" + stage.NewID()
	empty, err := store.Get(ctx, stage.ScopeUser, owner)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list for a new key, got %v err=%v", empty, err)
	}
	list := []stage.Serialized{object("a", stage.ScopeUser, owner), object("b", stage.ScopeUser, owner)}
	if err := store.Set(ctx, stage.ScopeUser, owner, list); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, stage.ScopeUser, owner, list[:1]); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := store.Get(ctx, stage.ScopeUser, owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stage.EqualList(got, list[:1]) {
		t.Fatalf("stored list differs: %+v", got)
	}
}

func TestOpenDefaultsToMemory(t *testing.T) {
	cfg := config.Default()
	cfg.StoreBackend = "bogus"
	store, closeFn, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}
