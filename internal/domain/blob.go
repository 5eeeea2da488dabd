package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader reads objects back out of storage. The operator API uses it to
// list and fetch archive exports.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// Archiver exports aged records from the database to cold storage and prunes
// them afterwards.
type Archiver interface {
	ArchiveLiquidations(ctx context.Context, before time.Time) (int64, error)
	ArchiveHarvests(ctx context.Context, before time.Time) (int64, error)
}
