package apikeys

import (
	"context"
	"strings"
	"testing"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func TestMemoryStoreCreateAndVerifyToken(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key, token, err := s.Create(ctx, "ops", []types.APIKeyPermission{types.PermRead, types.PermWrite})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(token, types.APIKeyPrefix) {
		t.Fatalf("expected token to carry the %q prefix, got %q", types.APIKeyPrefix, token)
	}
	if key.HashedKey == "" || key.HashedKey == token {
		t.Fatalf("expected a hashed key distinct from the raw token, got %q", key.HashedKey)
	}

	verified, err := s.VerifyToken(ctx, token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if verified.ID != key.ID {
		t.Fatalf("expected verify to return the created key, got %+v", verified)
	}
	if verified.LastUsedAt == nil {
		t.Fatalf("expected VerifyToken to stamp LastUsedAt")
	}

	if _, err := s.VerifyToken(ctx, "quack_not-a-real-token"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for an unknown token, got %v", err)
	}
}

func TestMemoryStoreRevokedKeyFailsVerification(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key, token, err := s.Create(ctx, "ops", []types.APIKeyPermission{types.PermAdmin})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if _, err := s.VerifyToken(ctx, token); err != ErrNotFound {
		t.Fatalf("expected a revoked key to fail verification, got %v", err)
	}

	got, err := s.Get(ctx, key.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Revoked {
		t.Fatalf("expected Get to still surface the revoked key with Revoked=true")
	}
}

func TestMemoryStoreRevokeAndGetMissingReturnNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Revoke(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound revoking an unknown key, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound getting an unknown key, got %v", err)
	}
}

func TestMemoryStoreListReturnsAllCreatedKeys(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, owner := range []string{"ops", "cursor", "claude"} {
		if _, _, err := s.Create(ctx, owner, []types.APIKeyPermission{types.PermRead}); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
}

func TestHasPermissionAdminSubsumesReadAndWrite(t *testing.T) {
	admin := types.APIKey{Permissions: []types.APIKeyPermission{types.PermAdmin}}
	if !HasPermission(admin, types.PermRead) || !HasPermission(admin, types.PermWrite) || !HasPermission(admin, types.PermAdmin) {
		t.Fatalf("expected an admin key to satisfy every permission")
	}

	readOnly := types.APIKey{Permissions: []types.APIKeyPermission{types.PermRead}}
	if !HasPermission(readOnly, types.PermRead) {
		t.Fatalf("expected a read key to satisfy PermRead")
	}
	if HasPermission(readOnly, types.PermWrite) || HasPermission(readOnly, types.PermAdmin) {
		t.Fatalf("expected a read-only key to be denied write and admin")
	}
}

func TestTokenFromRequestPrefersAuthHeaderOverQuery(t *testing.T) {
	if got := TokenFromRequest("Bearer abc123", "xyz"); got != "abc123" {
		t.Fatalf("expected bearer token abc123, got %q", got)
	}
	if got := TokenFromRequest("", "xyz"); got != "xyz" {
		t.Fatalf("expected fallback to query token xyz, got %q", got)
	}
	if got := TokenFromRequest("not-a-bearer-header", "xyz"); got != "xyz" {
		t.Fatalf("expected a malformed header to fall back to the query token, got %q", got)
	}
}
