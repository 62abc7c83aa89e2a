package redisbackend

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-store/internal/backend/keyspace"
	"order-store/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/put_record.lua
var putRecordScript string

const scanBatch = 100

// Backend keeps each record as a JSON string and each index partition as a
// sorted set whose members are "<sort>\x00<primary key>". A Lua script
// replaces a record and its index memberships atomically.
type Backend struct {
	rdb       *redis.Client
	prefix    string
	putScript *redis.Script
}

// Open creates a Redis backend and verifies the connection
func Open(addr, password string, db int, prefix string) (*Backend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, models.Unavailable("redis ping", err)
	}

	return &Backend{
		rdb:       rdb,
		prefix:    prefix,
		putScript: redis.NewScript(putRecordScript),
	}, nil
}

func (b *Backend) Name() string { return "redis" }

// Close closes the Redis connection
func (b *Backend) Close() error {
	return b.rdb.Close()
}

func (b *Backend) recordKey(collection, key string) string {
	return b.prefix + keyspace.RecordKey(collection, key)
}

func (b *Backend) collectionSet(collection string) string {
	return b.prefix + keyspace.Join("k", collection)
}

func (b *Backend) indexKey(index, partition string) string {
	return b.prefix + keyspace.Join("i", index, partition)
}

func (b *Backend) EnsureCollection(ctx context.Context, schema models.CollectionSchema) (models.SchemaStatus, error) {
	def, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	created, err := b.rdb.SetNX(ctx, b.prefix+keyspace.SchemaKey(schema.Name), def, 0).Result()
	if err != nil {
		return "", models.Unavailable("redis setnx schema", err)
	}
	if !created {
		return models.SchemaExists, nil
	}
	return models.SchemaCreated, nil
}

func (b *Backend) Put(ctx context.Context, w models.Write) error {
	if err := keyspace.CheckComponents(w.Key); err != nil {
		return err
	}

	body, err := keyspace.EncodeRecord(w.Record)
	if err != nil {
		return err
	}

	args := make([]interface{}, 0, 2+2*len(w.Entries))
	args = append(args, body, w.Key)
	for _, e := range w.Entries {
		if err := keyspace.CheckComponents(e.Partition, e.Sort); err != nil {
			return err
		}
		args = append(args, b.indexKey(e.Index, e.Partition), e.Sort+keyspace.Sep+e.Key)
	}

	keys := []string{
		b.recordKey(w.Collection.Name, w.Key),
		b.collectionSet(w.Collection.Name),
		b.prefix + keyspace.RefsKey(w.Collection.Name, w.Key),
	}

	if err := b.putScript.Run(ctx, b.rdb, keys, args...).Err(); err != nil {
		return models.Unavailable("put record script", err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, schema models.CollectionSchema, key string) (models.Record, error) {
	body, err := b.rdb.Get(ctx, b.recordKey(schema.Name, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s/%s", models.ErrNotFound, schema.Name, key)
	}
	if err != nil {
		return nil, models.Unavailable("redis get", err)
	}
	return keyspace.DecodeRecord(body)
}

func (b *Backend) Scan(ctx context.Context, collection string, fn func(models.Record) error) error {
	var cursor uint64
	for {
		keys, next, err := b.rdb.SScan(ctx, b.collectionSet(collection), cursor, "", scanBatch).Result()
		if err != nil {
			return models.Unavailable("redis sscan", err)
		}

		records, err := b.load(ctx, collection, keys)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := fn(rec); err != nil {
				return err
			}
		}

		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (b *Backend) Query(ctx context.Context, q models.IndexQuery) ([]models.Record, error) {
	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if q.Sort != "" {
		by = &redis.ZRangeBy{Min: "[" + q.Sort + keyspace.Sep, Max: "(" + q.Sort + "\x01"}
	}

	members, err := b.rdb.ZRangeByLex(ctx, b.indexKey(q.Index.Name, q.Partition), by).Result()
	if err != nil {
		return nil, models.Unavailable("redis zrangebylex", err)
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, m[strings.LastIndex(m, keyspace.Sep)+1:])
	}
	return b.load(ctx, q.Collection.Name, keys)
}

// load fetches records in key order, skipping keys without a record
func (b *Backend) load(ctx context.Context, collection string, keys []string) ([]models.Record, error) {
	out := make([]models.Record, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	recordKeys := make([]string, len(keys))
	for i, k := range keys {
		recordKeys[i] = b.recordKey(collection, k)
	}

	values, err := b.rdb.MGet(ctx, recordKeys...).Result()
	if err != nil {
		return nil, models.Unavailable("redis mget", err)
	}

	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := keyspace.DecodeRecord([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
