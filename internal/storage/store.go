package storage

import (
	"context"
	"io"
)

// Store defines the contract for archiving original invoice documents.
// The pipeline records the returned URI but never depends on the blob being
// retrievable; upload failures are reported as storage errors and tolerated.
type Store interface {
	Upload(ctx context.Context, data []byte, path string, contentType string) (uri string, err error)
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}
