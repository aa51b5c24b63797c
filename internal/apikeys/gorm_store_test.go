package apikeys

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func TestGormStoreCreateGetVerifyAndRevoke(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "apikeys.db")
	store, err := NewGormStore(nil, "sqlite", dbPath)
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	key, token, err := store.Create(ctx, "ops", []types.APIKeyPermission{types.PermRead, types.PermWrite})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, key.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Permissions) != 2 {
		t.Fatalf("expected 2 round-tripped permissions, got %v", got.Permissions)
	}

	verified, err := store.VerifyToken(ctx, token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if verified.ID != key.ID {
		t.Fatalf("expected verify to return the created key, got %+v", verified)
	}
	if verified.LastUsedAt == nil {
		t.Fatalf("expected VerifyToken to stamp LastUsedAt")
	}

	if err := store.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.VerifyToken(ctx, token); err != ErrNotFound {
		t.Fatalf("expected a revoked key to fail verification, got %v", err)
	}
}

func TestGormStoreListAndMissingKeysReturnNotFound(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "apikeys.db")
	store, err := NewGormStore(nil, "sqlite", dbPath)
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for _, owner := range []string{"ops", "cursor"} {
		if _, _, err := store.Create(ctx, owner, []types.APIKeyPermission{types.PermRead}); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}

	if _, err := store.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for a missing id, got %v", err)
	}
	if err := store.Revoke(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound revoking a missing id, got %v", err)
	}
}
