// Package binding holds the subdomain routing table shared between the
// provisioner (writer) and the traffic router (reader).
package binding

import (
	"context"
	"errors"

	"github.com/DhruvWebDev/Deploify/internal/domain"
)

// ErrExists indicates an insert targeted an already-bound subdomain.
var ErrExists = errors.New("binding: subdomain already bound")

// ErrNotFound indicates no binding exists for the subdomain.
var ErrNotFound = errors.New("binding: not found")

// Store is a concurrency-safe subdomain binding table. Put is insert-if-absent;
// Remove only deletes when the stored binding still references containerRef,
// so a re-provision that raced a teardown cannot lose its fresh binding.
type Store interface {
	Put(ctx context.Context, b domain.SubdomainBinding) error
	Get(ctx context.Context, subdomain string) (domain.SubdomainBinding, error)
	Remove(ctx context.Context, subdomain, containerRef string) error
}
