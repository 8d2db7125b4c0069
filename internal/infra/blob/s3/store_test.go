package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"raizcore/internal/blob/core"
)

func TestMockStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("driver = %s", store.Driver())
	}

	info, err := store.Put(ctx, "lots/l-1/evolution/1", strings.NewReader("payload"), core.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "lots/l-1/evolution/1" || info.Size != 7 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "lots/l-1/evolution/1", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected create-only violation")
	}

	g, rc, err := store.Get(ctx, "lots/l-1/evolution/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "payload" || g.ContentType != "image/jpeg" {
		t.Fatalf("unexpected get %+v %q", g, b)
	}

	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatalf("expected head miss")
	}
}

func TestMockStoreListAndPresign(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	for _, key := range []string{"reports/2026-06-12.txt", "reports/2026-06-13.txt", "lots/x"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "reports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "reports/2026-06-12.txt" {
		t.Fatalf("unexpected list %+v", list)
	}

	u, err := store.PresignURL(ctx, "reports/2026-06-12.txt", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "mock.s3.local") || !strings.Contains(u, "X-Amz-Signature") {
		t.Fatalf("unexpected presigned url %s", u)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket requirement")
	}
}

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	t.Setenv("RAIZCORE_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
