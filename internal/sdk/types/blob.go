package types

import "time"

// BlobType classifies an uploaded file blob.
type BlobType string

const (
	BlobCode  BlobType = "code"
	BlobDoc   BlobType = "doc"
	BlobImage BlobType = "image"
	BlobData  BlobType = "data"
)

// BlobTTL is the fixed lifetime of a file blob (spec §4.C).
const BlobTTL = 24 * time.Hour

// BlobMeta is a file blob's metadata, without its payload.
type BlobMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      BlobType  `json:"type"`
	MIME      string    `json:"mimeType,omitempty"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Blob is a file blob's metadata plus its opaque payload.
type Blob struct {
	BlobMeta
	Payload []byte `json:"-"`
}
