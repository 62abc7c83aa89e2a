package pebblekv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"order-store/internal/backend/keyspace"
	"order-store/internal/models"

	"github.com/cockroachdb/pebble"
)

// Backend stores records and index entries in one Pebble keyspace.
// A put replaces the record, its previous index entries and its new ones in a single batch.
type Backend struct {
	db *pebble.DB
	// serializes read-old-refs / commit so two puts of one key cannot interleave
	writeMu sync.Mutex
	sync    bool
}

// Options tunes the Pebble backend
type Options struct {
	// Sync forces an fsync on every committed batch
	Sync bool
	// MemTableSize in bytes; zero keeps the Pebble default
	MemTableSize uint64
}

// Open opens (or creates) a Pebble database in dir
func Open(dir string, o Options) (*Backend, error) {
	opts := &pebble.Options{}
	if o.MemTableSize > 0 {
		opts.MemTableSize = o.MemTableSize
	}

	db, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, models.Unavailable("pebble open", err)
	}
	return &Backend{db: db, sync: o.Sync}, nil
}

func (b *Backend) Name() string { return "pebble" }

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) writeOpts() *pebble.WriteOptions {
	if b.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (b *Backend) EnsureCollection(ctx context.Context, schema models.CollectionSchema) (models.SchemaStatus, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	key := []byte(keyspace.SchemaKey(schema.Name))
	_, closer, err := b.db.Get(key)
	if err == nil {
		_ = closer.Close()
		return models.SchemaExists, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return "", models.Unavailable("pebble get schema", err)
	}

	if err := b.db.Set(key, []byte(schema.PrimaryKey), pebble.Sync); err != nil {
		return "", models.Unavailable("pebble set schema", err)
	}
	return models.SchemaCreated, nil
}

func (b *Backend) Put(ctx context.Context, w models.Write) error {
	if err := keyspace.CheckComponents(w.Key); err != nil {
		return err
	}
	for _, e := range w.Entries {
		if err := keyspace.CheckComponents(e.Partition, e.Sort); err != nil {
			return err
		}
	}

	recBytes, err := keyspace.EncodeRecord(w.Record)
	if err != nil {
		return err
	}
	refBytes, err := keyspace.EncodeEntries(w.Entries)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	refsKey := []byte(keyspace.RefsKey(w.Collection.Name, w.Key))
	old, err := b.loadRefs(refsKey)
	if err != nil {
		return err
	}

	batch := b.db.NewBatch()
	defer batch.Close()

	for _, e := range old {
		if err := batch.Delete([]byte(keyspace.EntryKey(e)), nil); err != nil {
			return models.Unavailable("pebble batch delete", err)
		}
	}
	if err := batch.Set([]byte(keyspace.RecordKey(w.Collection.Name, w.Key)), recBytes, nil); err != nil {
		return models.Unavailable("pebble batch set", err)
	}
	// Entries carry the full projection
	for _, e := range w.Entries {
		if err := batch.Set([]byte(keyspace.EntryKey(e)), recBytes, nil); err != nil {
			return models.Unavailable("pebble batch set", err)
		}
	}
	if err := batch.Set(refsKey, refBytes, nil); err != nil {
		return models.Unavailable("pebble batch set", err)
	}

	if err := batch.Commit(b.writeOpts()); err != nil {
		return models.Unavailable("pebble commit", err)
	}
	return nil
}

func (b *Backend) loadRefs(key []byte) ([]models.IndexEntry, error) {
	v, closer, err := b.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.Unavailable("pebble get refs", err)
	}
	defer closer.Close()
	return keyspace.DecodeEntries(v)
}

func (b *Backend) Get(ctx context.Context, schema models.CollectionSchema, key string) (models.Record, error) {
	v, closer, err := b.db.Get([]byte(keyspace.RecordKey(schema.Name, key)))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", models.ErrNotFound, schema.Name, key)
	}
	if err != nil {
		return nil, models.Unavailable("pebble get", err)
	}
	defer closer.Close()
	return keyspace.DecodeRecord(v)
}

func (b *Backend) Scan(ctx context.Context, collection string, fn func(models.Record) error) error {
	return b.iterate(ctx, keyspace.RecordPrefix(collection), fn)
}

func (b *Backend) Query(ctx context.Context, q models.IndexQuery) ([]models.Record, error) {
	var out []models.Record
	err := b.iterate(ctx, keyspace.EntryPrefix(q.Index.Name, q.Partition, q.Sort), func(rec models.Record) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Record{}
	}
	return out, nil
}

// iterate walks a prefix on a consistent snapshot of the database
func (b *Backend) iterate(ctx context.Context, prefix string, fn func(models.Record) error) error {
	snap := b.db.NewSnapshot()
	defer snap.Close()

	it, err := snap.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(keyspace.PrefixEnd(prefix)),
	})
	if err != nil {
		return models.Unavailable("pebble iterator", err)
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := keyspace.DecodeRecord(it.Value())
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return models.Unavailable("pebble iterate", err)
	}
	return nil
}
