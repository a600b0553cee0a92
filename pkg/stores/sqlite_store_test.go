package stores

import (
	"context"
	"path/filepath"
	"testing"
)

// setupTestStore creates a migrated SQLite store on a temp file.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "cdev.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "b8:0", "OWNER"); err != nil || ok {
		t.Fatalf("Get on empty store = (%v, %v), want absent", ok, err)
	}

	if err := store.Set(ctx, "b8:0", "OWNER", "ct1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := store.Get(ctx, "b8:0", "OWNER")
	if err != nil || !ok || v != "ct1" {
		t.Fatalf("Get = (%q, %v, %v), want (%q, true, nil)", v, ok, err, "ct1")
	}

	// Set replaces.
	if err := store.Set(ctx, "b8:0", "OWNER", "ct2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, _, _ := store.Get(ctx, "b8:0", "OWNER"); v != "ct2" {
		t.Fatalf("Get after update = %q, want %q", v, "ct2")
	}

	// Keys are scoped per device.
	if _, ok, _ := store.Get(ctx, "b8:16", "OWNER"); ok {
		t.Fatal("value leaked across device IDs")
	}
}

func TestSQLiteStoreRemove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"OWNER", "SEEN"} {
		if err := store.Set(ctx, "n2", key, "x"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := store.Set(ctx, "b8:0", "OWNER", "keep"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Remove(ctx, "n2"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "n2", "OWNER"); ok {
		t.Fatal("Remove left device state behind")
	}
	if v, ok, _ := store.Get(ctx, "b8:0", "OWNER"); !ok || v != "keep" {
		t.Fatal("Remove touched another device")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "+pci:0000:00:02.0", "CLAIMED", "1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := store.Get(ctx, "+pci:0000:00:02.0", "CLAIMED")
	if err != nil || !ok || v != "1" {
		t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
	}

	if err := store.Remove(ctx, "+pci:0000:00:02.0"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "+pci:0000:00:02.0", "CLAIMED"); ok {
		t.Fatal("Remove left state behind")
	}
}
