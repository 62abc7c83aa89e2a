package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-store/internal/models"
	"order-store/internal/util"

	"go.uber.org/zap"
)

type indexRef struct {
	collection models.CollectionSchema
	index      models.IndexSchema
}

// Store is the record store: it owns the collections, validates writes
// against their schema and keeps secondary indexes in step with base records.
// It holds no mutable state of its own; all of it lives in the backend.
type Store struct {
	backend     Backend
	collections map[string]models.CollectionSchema
	order       []string
	indexes     map[string]indexRef
	logger      *zap.Logger
}

// NewStore creates a record store over a backend with a fixed schema
func NewStore(backend Backend, schemas []models.CollectionSchema) *Store {
	s := &Store{
		backend:     backend,
		collections: make(map[string]models.CollectionSchema, len(schemas)),
		indexes:     make(map[string]indexRef),
		logger:      util.GetLogger().With(zap.String("backend", backend.Name())),
	}

	for _, schema := range schemas {
		s.collections[schema.Name] = schema
		s.order = append(s.order, schema.Name)
		for _, idx := range schema.Indexes {
			s.indexes[idx.Name] = indexRef{collection: schema, index: idx}
		}
	}

	return s
}

// BackendName returns the name of the underlying backend
func (s *Store) BackendName() string {
	return s.backend.Name()
}

// Close closes the underlying backend
func (s *Store) Close() error {
	return s.backend.Close()
}

// Collection returns the schema of a collection
func (s *Store) Collection(name string) (models.CollectionSchema, error) {
	schema, ok := s.collections[name]
	if !ok {
		return models.CollectionSchema{}, fmt.Errorf("%w: unknown collection %q", models.ErrInvalidArgument, name)
	}
	return schema, nil
}

// Index returns a declared index and the collection it belongs to
func (s *Store) Index(name string) (models.CollectionSchema, models.IndexSchema, error) {
	ref, ok := s.indexes[name]
	if !ok {
		return models.CollectionSchema{}, models.IndexSchema{}, fmt.Errorf("%w: %q", models.ErrInvalidIndex, name)
	}
	return ref.collection, ref.index, nil
}

// EnsureSchema creates every collection and index that does not exist yet.
// It is safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) (map[string]models.SchemaStatus, error) {
	statuses := make(map[string]models.SchemaStatus, len(s.order))

	for _, name := range s.order {
		if err := s.collections[name].Validate(); err != nil {
			return statuses, err
		}
	}

	for _, name := range s.order {
		start := time.Now()
		status, err := s.backend.EnsureCollection(ctx, s.collections[name])
		s.observe("ensure_collection", start)
		if err != nil {
			return statuses, fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}

		statuses[name] = status
		s.logger.Info("Collection ready",
			zap.String("collection", name),
			zap.String("status", string(status)))
	}

	return statuses, nil
}

// Put inserts or fully replaces a record keyed by the collection's primary key.
// For indexed collections the derived index entries are written in the same backend call.
func (s *Store) Put(ctx context.Context, collection string, rec models.Record) error {
	schema, err := s.Collection(collection)
	if err != nil {
		return err
	}

	key, err := validateRecord(schema, rec)
	if err != nil {
		util.RecordWritesFailedTotal.WithLabelValues(collection, failureReason(err)).Inc()
		return err
	}

	entries, err := DeriveIndexEntries(schema, key, rec)
	if err != nil {
		util.RecordWritesFailedTotal.WithLabelValues(collection, failureReason(err)).Inc()
		return err
	}

	start := time.Now()
	err = s.backend.Put(ctx, models.Write{
		Collection: schema,
		Key:        key,
		Record:     rec.Clone(),
		Entries:    entries,
	})
	s.observe("put", start)
	if err != nil {
		util.RecordWritesFailedTotal.WithLabelValues(collection, failureReason(err)).Inc()
		return fmt.Errorf("failed to put %s %s: %w", collection, key, err)
	}

	util.RecordsWrittenTotal.WithLabelValues(collection).Inc()
	for _, e := range entries {
		util.IndexEntriesWrittenTotal.WithLabelValues(e.Index).Inc()
	}

	return nil
}

// Get retrieves a record by primary key
func (s *Store) Get(ctx context.Context, collection, key string) (models.Record, error) {
	schema, err := s.Collection(collection)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty primary key", models.ErrInvalidArgument)
	}

	start := time.Now()
	rec, err := s.backend.Get(ctx, schema, key)
	s.observe("get", start)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", collection, key, err)
	}
	return rec, nil
}

// Scan streams every record of a collection to fn in unspecified order
func (s *Store) Scan(ctx context.Context, collection string, fn func(models.Record) error) error {
	if _, err := s.Collection(collection); err != nil {
		return err
	}

	start := time.Now()
	err := s.backend.Scan(ctx, collection, fn)
	s.observe("scan", start)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", collection, err)
	}
	return nil
}

// QueryIndex returns the records whose index entry matches the partition value
// and, when sortValue is not empty, the exact sort value.
func (s *Store) QueryIndex(ctx context.Context, indexName, partition, sortValue string) ([]models.Record, error) {
	collection, idx, err := s.Index(indexName)
	if err != nil {
		return nil, err
	}
	if partition == "" {
		return nil, fmt.Errorf("%w: %s requires %q", models.ErrInvalidArgument, indexName, idx.PartitionKey)
	}
	if sortValue != "" && idx.SortKey == "" {
		return nil, fmt.Errorf("%w: %s has no sort key", models.ErrInvalidArgument, indexName)
	}

	start := time.Now()
	records, err := s.backend.Query(ctx, models.IndexQuery{
		Collection: collection,
		Index:      idx,
		Partition:  partition,
		Sort:       sortValue,
	})
	s.observe("query", start)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", indexName, err)
	}
	return records, nil
}

func (s *Store) observe(op string, start time.Time) {
	util.BackendLatency.WithLabelValues(s.backend.Name(), op).Observe(time.Since(start).Seconds())
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, models.ErrCoercion):
		return "coercion"
	case errors.Is(err, models.ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "other"
	}
}
