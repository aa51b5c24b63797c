package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFileStore(nil, dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestUploadAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta, err := s.Upload(ctx, "notes.txt", []byte("hello world"), types.BlobDoc, "text/plain")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if meta.Size != len("hello world") {
		t.Fatalf("unexpected size %d", meta.Size)
	}
	if meta.ExpiresAt.Sub(meta.CreatedAt) != types.BlobTTL {
		t.Fatalf("expected TTL of %s, got %s", types.BlobTTL, meta.ExpiresAt.Sub(meta.CreatedAt))
	}

	blob, err := s.Get(ctx, meta.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(blob.Payload) != "hello world" {
		t.Fatalf("unexpected payload %q", blob.Payload)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetMeta(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesPayloadAndIndexEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta, err := s.Upload(ctx, "f", []byte("x"), types.BlobData, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, meta.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetMeta(ctx, meta.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := os.Stat(s.payloadPath(meta.ID)); !os.IsNotExist(err) {
		t.Fatalf("expected payload file removed, stat err = %v", err)
	}
}

func TestSweepRemovesExpiredBlobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta, err := s.Upload(ctx, "old", []byte("x"), types.BlobData, "")
	if err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	entry := s.index[meta.ID]
	entry.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	s.index[meta.ID] = entry
	s.mu.Unlock()

	fresh, err := s.Upload(ctx, "fresh", []byte("y"), types.BlobData, "")
	if err != nil {
		t.Fatal(err)
	}

	removed, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := s.GetMeta(ctx, meta.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired blob gone, got %v", err)
	}
	if _, err := s.GetMeta(ctx, fresh.ID); err != nil {
		t.Fatalf("expected fresh blob to survive sweep: %v", err)
	}
}

func TestIndexSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewFileStore(nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	meta, err := s1.Upload(context.Background(), "persisted", []byte("data"), types.BlobCode, "")
	if err != nil {
		t.Fatal(err)
	}

	s2, err := NewFileStore(nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s2.GetMeta(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("expected reloaded store to find blob: %v", err)
	}
	if got.Name != "persisted" {
		t.Fatalf("unexpected reloaded meta: %+v", got)
	}
}

func TestPayloadsDirectoryCreated(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFileStore(nil, dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "payloads")); err != nil {
		t.Fatalf("expected payloads dir to exist: %v", err)
	}
}
