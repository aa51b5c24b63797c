// Package blobstore implements Component C: the file blob store. Blobs carry
// a fixed TTL and are persisted as an index file plus one payload file per
// blob, so metadata listing never has to touch payload bytes.
package blobstore

import (
	"context"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// Store is Component C's operation surface (spec §4.C).
type Store interface {
	Upload(ctx context.Context, name string, payload []byte, blobType types.BlobType, mime string) (types.BlobMeta, error)
	Get(ctx context.Context, id string) (types.Blob, error)
	GetMeta(ctx context.Context, id string) (types.BlobMeta, error)
	Delete(ctx context.Context, id string) error
	Sweep(ctx context.Context) (int, error)
}
