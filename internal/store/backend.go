package store

import (
	"context"

	"order-store/internal/models"
)

// Backend is the durable key-value engine the record store is layered on.
//
// Implementations must commit a Write's record and index entries atomically:
// a reader never sees the record without its entries or the reverse. Driver
// failures are reported wrapped in models.ErrBackendUnavailable and primary
// key misses as models.ErrNotFound.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// EnsureCollection creates the collection and its indexes if absent.
	EnsureCollection(ctx context.Context, schema models.CollectionSchema) (models.SchemaStatus, error)

	// Put replaces the record stored under w.Key together with its index entries.
	Put(ctx context.Context, w models.Write) error

	Get(ctx context.Context, schema models.CollectionSchema, key string) (models.Record, error)

	// Scan calls fn for every record of the collection in unspecified order.
	// Records are fetched lazily; a non-nil error from fn stops the scan and is returned.
	Scan(ctx context.Context, collection string, fn func(models.Record) error) error

	// Query returns the projected records of all matching index entries,
	// ordered by index sort value then primary key.
	Query(ctx context.Context, q models.IndexQuery) ([]models.Record, error)

	Close() error
}
