package core

import (
	"path/filepath"
	"testing"

	"raizcore/internal/infra/persistence/memory"
	"raizcore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("RAIZCORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("store type = %T", store)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv("RAIZCORE_STORAGE_DRIVER", "")
	path := filepath.Join(t.TempDir(), "raizcore.db")
	t.Setenv("RAIZCORE_SQLITE_PATH", path)

	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqliteStore, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("store type = %T", store)
	}
	defer func() { _ = sqliteStore.Close() }()
	if sqliteStore.Path() != path {
		t.Fatalf("path = %s", sqliteStore.Path())
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("RAIZCORE_STORAGE_DRIVER", "etcd")
	if _, err := OpenPersistentStore(NewDefaultRulesEngine()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
