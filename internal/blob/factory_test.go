package blob

import (
	"context"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Run("default fs", func(t *testing.T) {
		t.Setenv("RAIZCORE_BLOB_DRIVER", "")
		t.Setenv("RAIZCORE_BLOB_FS_ROOT", t.TempDir())
		store, err := Open(ctx)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if store.Driver() != DriverFS {
			t.Fatalf("driver = %s", store.Driver())
		}
	})

	t.Run("memory", func(t *testing.T) {
		t.Setenv("RAIZCORE_BLOB_DRIVER", "memory")
		store, err := Open(ctx)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if store.Driver() != DriverMemory {
			t.Fatalf("driver = %s", store.Driver())
		}
	})

	t.Run("s3 requires bucket", func(t *testing.T) {
		t.Setenv("RAIZCORE_BLOB_DRIVER", "s3")
		t.Setenv("RAIZCORE_BLOB_S3_BUCKET", "")
		if _, err := Open(ctx); err == nil {
			t.Fatalf("expected bucket requirement")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("RAIZCORE_BLOB_DRIVER", "carrier-pigeon")
		if _, err := Open(ctx); err == nil {
			t.Fatalf("expected unknown driver error")
		}
	})
}
