package model

import (
	"time"

	"github.com/google/uuid"
)

// FileManifest records a file this client stored successfully.
type FileManifest struct {
	ID         uuid.UUID
	Filename   string
	Size       int64
	Digest     string
	HashBucket int
	StoredAt   time.Time
}

func NewFileManifest(filename string, size int64, digest string, bucket int) FileManifest {
	return FileManifest{
		ID:         uuid.New(),
		Filename:   filename,
		Size:       size,
		Digest:     digest,
		HashBucket: bucket,
		StoredAt:   time.Now().UTC(),
	}
}
