package blobstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// indexEntry is the on-disk metadata record for one blob (payloads live in
// their own file so the index stays cheap to load and rewrite).
type indexEntry struct {
	Name      string         `json:"name"`
	Type      types.BlobType `json:"type"`
	MIME      string         `json:"mimeType,omitempty"`
	Size      int            `json:"size"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// FileStore is the durable Store implementation: an index.json describing
// every blob's metadata, and one payload file per blob under payloads/.
type FileStore struct {
	logger    *log.Logger
	dir       string
	indexPath string

	mu    sync.Mutex
	index map[string]indexEntry
}

// NewFileStore loads (or creates) the blob index rooted at dir.
func NewFileStore(logger *log.Logger, dir string) (*FileStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, "payloads"), 0o755); err != nil {
		return nil, fmt.Errorf("create blob payload directory: %w", err)
	}
	indexPath := filepath.Join(dir, "index.json")
	index, err := readIndex(indexPath)
	if err != nil {
		return nil, fmt.Errorf("load blob index: %w", err)
	}
	return &FileStore{logger: logger, dir: dir, indexPath: indexPath, index: index}, nil
}

func (s *FileStore) payloadPath(id string) string {
	return filepath.Join(s.dir, "payloads", id)
}

func (s *FileStore) Upload(ctx context.Context, name string, payload []byte, blobType types.BlobType, mime string) (types.BlobMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id := types.NewID()
	entry := indexEntry{
		Name:      name,
		Type:      blobType,
		MIME:      mime,
		Size:      len(payload),
		CreatedAt: now,
		ExpiresAt: now.Add(types.BlobTTL),
	}
	if err := writeAtomic(s.payloadPath(id), payload); err != nil {
		return types.BlobMeta{}, fmt.Errorf("write blob payload: %w", err)
	}
	s.index[id] = entry
	if err := s.persistLocked(); err != nil {
		delete(s.index, id)
		os.Remove(s.payloadPath(id))
		return types.BlobMeta{}, fmt.Errorf("persist blob index: %w", err)
	}
	return entry.toMeta(id), nil
}

func (s *FileStore) GetMeta(ctx context.Context, id string) (types.BlobMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.index[id]
	if !ok {
		return types.BlobMeta{}, ErrNotFound
	}
	if time.Now().UTC().After(entry.ExpiresAt) {
		return types.BlobMeta{}, ErrExpired
	}
	return entry.toMeta(id), nil
}

func (s *FileStore) Get(ctx context.Context, id string) (types.Blob, error) {
	meta, err := s.GetMeta(ctx, id)
	if err != nil {
		return types.Blob{}, err
	}
	payload, err := os.ReadFile(s.payloadPath(id))
	if err != nil {
		return types.Blob{}, fmt.Errorf("read blob payload: %w", err)
	}
	return types.Blob{BlobMeta: meta, Payload: payload}, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return ErrNotFound
	}
	delete(s.index, id)
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist blob index: %w", err)
	}
	os.Remove(s.payloadPath(id))
	return nil
}

// Sweep removes every blob whose TTL has expired (spec §4.C "hourly sweep").
func (s *FileStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var expired []string
	for id, entry := range s.index {
		if now.After(entry.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	for _, id := range expired {
		delete(s.index, id)
	}
	if err := s.persistLocked(); err != nil {
		return 0, fmt.Errorf("persist blob index: %w", err)
	}
	for _, id := range expired {
		if err := os.Remove(s.payloadPath(id)); err != nil && !os.IsNotExist(err) {
			s.logger.Printf("blobstore: failed to remove expired payload %s: %v", id, err)
		}
	}
	return len(expired), nil
}

func (s *FileStore) persistLocked() error {
	return writeIndexAtomic(s.indexPath, s.index)
}

func (e indexEntry) toMeta(id string) types.BlobMeta {
	return types.BlobMeta{
		ID:        id,
		Name:      e.Name,
		Type:      e.Type,
		MIME:      e.MIME,
		Size:      e.Size,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
	}
}

var _ Store = (*FileStore)(nil)
