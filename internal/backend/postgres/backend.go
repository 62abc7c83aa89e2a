package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-store/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Backend stores records as JSONB rows and index entries in a side table.
// A put rewrites the record row and its entries inside one transaction.
type Backend struct {
	db *sqlx.DB
}

type entryRow struct {
	IndexName    string `db:"index_name"`
	PartitionKey string `db:"partition_key"`
	SortKey      string `db:"sort_key"`
	Collection   string `db:"collection"`
	PK           string `db:"pk"`
}

// Open connects to Postgres and applies the storage schema
func Open(ctx context.Context, databaseURL string) (*Backend, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, models.Unavailable("connect to database", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, models.Unavailable("ping database", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, models.Unavailable("apply storage schema", err)
	}

	return &Backend{db: db}, nil
}

func (b *Backend) Name() string { return "postgres" }

// Close closes the database connection
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) EnsureCollection(ctx context.Context, schema models.CollectionSchema) (models.SchemaStatus, error) {
	def, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	res, err := b.db.ExecContext(ctx,
		"INSERT INTO collections (name, definition) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING",
		schema.Name, def)
	if err != nil {
		return "", models.Unavailable("insert collection", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", models.Unavailable("insert collection", err)
	}
	if n == 0 {
		return models.SchemaExists, nil
	}
	return models.SchemaCreated, nil
}

func (b *Backend) Put(ctx context.Context, w models.Write) error {
	body, err := json.Marshal(w.Record)
	if err != nil {
		return err
	}

	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (collection, pk, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, pk) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
		w.Collection.Name, w.Key, body)
	if err != nil {
		return models.Unavailable("upsert record", err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM index_entries WHERE collection = $1 AND pk = $2",
		w.Collection.Name, w.Key)
	if err != nil {
		return models.Unavailable("delete index entries", err)
	}

	if len(w.Entries) > 0 {
		rows := make([]entryRow, 0, len(w.Entries))
		for _, e := range w.Entries {
			rows = append(rows, entryRow{
				IndexName:    e.Index,
				PartitionKey: e.Partition,
				SortKey:      e.Sort,
				Collection:   w.Collection.Name,
				PK:           e.Key,
			})
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO index_entries (index_name, partition_key, sort_key, collection, pk)
			VALUES (:index_name, :partition_key, :sort_key, :collection, :pk)`, rows)
		if err != nil {
			return models.Unavailable("insert index entries", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Unavailable("commit", err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, schema models.CollectionSchema, key string) (models.Record, error) {
	var body []byte
	err := b.db.GetContext(ctx, &body,
		"SELECT body FROM records WHERE collection = $1 AND pk = $2", schema.Name, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", models.ErrNotFound, schema.Name, key)
	}
	if err != nil {
		return nil, models.Unavailable("select record", err)
	}
	return decode(body)
}

func (b *Backend) Scan(ctx context.Context, collection string, fn func(models.Record) error) error {
	rows, err := b.db.QueryxContext(ctx, "SELECT body FROM records WHERE collection = $1", collection)
	if err != nil {
		return models.Unavailable("scan records", err)
	}
	defer rows.Close()

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return models.Unavailable("scan row", err)
		}
		rec, err := decode(body)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return models.Unavailable("scan records", err)
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, q models.IndexQuery) ([]models.Record, error) {
	query := `
		SELECT r.body FROM index_entries e
		JOIN records r ON r.collection = e.collection AND r.pk = e.pk
		WHERE e.index_name = $1 AND e.partition_key = $2`
	args := []interface{}{q.Index.Name, q.Partition}
	if q.Sort != "" {
		query += " AND e.sort_key = $3"
		args = append(args, q.Sort)
	}
	query += ` ORDER BY e.sort_key COLLATE "C", e.pk COLLATE "C"`

	var bodies [][]byte
	if err := b.db.SelectContext(ctx, &bodies, query, args...); err != nil {
		return nil, models.Unavailable("query "+q.Index.Name, err)
	}

	out := make([]models.Record, 0, len(bodies))
	for _, body := range bodies {
		rec, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decode(body []byte) (models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record body: %w", err)
	}
	return rec, nil
}
