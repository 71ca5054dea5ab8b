// Package blob abstracts the object store that holds built static artifacts,
// partitioned by deployment id as a key prefix.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates no object exists at the requested key.
var ErrNotFound = errors.New("blob: object not found")

// Store is a minimal put/get object store keyed by path.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}
