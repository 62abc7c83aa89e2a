package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"order-store/internal/backend/keyspace"
	"order-store/internal/models"
)

// Backend is a thread-safe in-process backend.
// Record and index replacement happen under one write lock.
type Backend struct {
	mu          sync.RWMutex
	collections map[string]models.CollectionSchema
	records     map[string]map[string]models.Record
	// index -> partition -> entries
	entries map[string]map[string][]models.IndexEntry
	// collection -> key -> entries currently pointing at the record
	refs map[string]map[string][]models.IndexEntry
}

// New creates an empty in-memory backend
func New() *Backend {
	return &Backend{
		collections: make(map[string]models.CollectionSchema),
		records:     make(map[string]map[string]models.Record),
		entries:     make(map[string]map[string][]models.IndexEntry),
		refs:        make(map[string]map[string][]models.IndexEntry),
	}
}

func (b *Backend) Name() string { return "memory" }

func (b *Backend) Close() error { return nil }

func (b *Backend) EnsureCollection(ctx context.Context, schema models.CollectionSchema) (models.SchemaStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.collections[schema.Name]; ok {
		return models.SchemaExists, nil
	}

	b.collections[schema.Name] = schema
	b.records[schema.Name] = make(map[string]models.Record)
	b.refs[schema.Name] = make(map[string][]models.IndexEntry)
	for _, idx := range schema.Indexes {
		b.entries[idx.Name] = make(map[string][]models.IndexEntry)
	}
	return models.SchemaCreated, nil
}

func (b *Backend) Put(ctx context.Context, w models.Write) error {
	if err := ctx.Err(); err != nil {
		return models.Unavailable("put", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records, ok := b.records[w.Collection.Name]
	if !ok {
		return models.Unavailable("put", fmt.Errorf("collection %s does not exist", w.Collection.Name))
	}

	for _, old := range b.refs[w.Collection.Name][w.Key] {
		b.removeEntry(old)
	}

	records[w.Key] = w.Record.Clone()
	for _, e := range w.Entries {
		b.entries[e.Index][e.Partition] = append(b.entries[e.Index][e.Partition], e)
	}
	b.refs[w.Collection.Name][w.Key] = append([]models.IndexEntry(nil), w.Entries...)

	return nil
}

func (b *Backend) removeEntry(e models.IndexEntry) {
	part := b.entries[e.Index][e.Partition]
	for i := range part {
		if part[i] == e {
			part = append(part[:i], part[i+1:]...)
			break
		}
	}
	if len(part) == 0 {
		delete(b.entries[e.Index], e.Partition)
		return
	}
	b.entries[e.Index][e.Partition] = part
}

func (b *Backend) Get(ctx context.Context, schema models.CollectionSchema, key string) (models.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.records[schema.Name][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", models.ErrNotFound, schema.Name, key)
	}
	return rec.Clone(), nil
}

// Scan snapshots the collection in primary key order before calling fn so fn
// may write to the backend
func (b *Backend) Scan(ctx context.Context, collection string, fn func(models.Record) error) error {
	b.mu.RLock()
	records, ok := b.records[collection]
	if !ok {
		b.mu.RUnlock()
		return models.Unavailable("scan", fmt.Errorf("collection %s does not exist", collection))
	}
	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	snapshot := make([]models.Record, 0, len(records))
	for _, key := range keys {
		snapshot = append(snapshot, records[key].Clone())
	}
	b.mu.RUnlock()

	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, q models.IndexQuery) ([]models.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	partitions, ok := b.entries[q.Index.Name]
	if !ok {
		return nil, models.Unavailable("query", fmt.Errorf("index %s does not exist", q.Index.Name))
	}

	matched := make([]models.IndexEntry, 0, len(partitions[q.Partition]))
	for _, e := range partitions[q.Partition] {
		if q.Sort != "" && e.Sort != q.Sort {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return keyspace.EntryLess(matched[i], matched[j])
	})

	out := make([]models.Record, 0, len(matched))
	for _, e := range matched {
		out = append(out, b.records[q.Collection.Name][e.Key].Clone())
	}
	return out, nil
}
