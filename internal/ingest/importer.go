// Package ingest bulk-loads flat rows into the record store through the same
// write path as single inserts. Rows that fail validation are skipped and
// reported; only an unavailable backend aborts an import.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-store/internal/models"
	"order-store/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RecordWriter writes one record. *service.OrderService satisfies it.
type RecordWriter interface {
	PutRecord(ctx context.Context, collection string, rec models.Record) error
}

// SchemaLookup resolves a collection name. *store.Store satisfies it.
type SchemaLookup interface {
	Collection(name string) (models.CollectionSchema, error)
}

// Publisher announces finished imports
type Publisher interface {
	PublishImportCompleted(ctx context.Context, event *models.ImportCompletedEvent) error
}

// Options tunes write parallelism and throughput
type Options struct {
	Concurrency int
	// WritesPerSecond caps the write rate; zero means unlimited
	WritesPerSecond float64
}

// RowError describes one skipped row. Row is 1-based and excludes any header.
type RowError struct {
	Row    int    `json:"row"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
}

// Result summarizes one import
type Result struct {
	Collection string     `json:"collection"`
	Source     string     `json:"source,omitempty"`
	Imported   int        `json:"imported"`
	Skipped    []RowError `json:"skipped"`
}

// Importer writes batches of rows with bounded parallelism
type Importer struct {
	writer      RecordWriter
	schemas     SchemaLookup
	publisher   Publisher
	limiter     *rate.Limiter
	concurrency int
	logger      *zap.Logger
}

// NewImporter creates an importer. publisher may be nil.
func NewImporter(writer RecordWriter, schemas SchemaLookup, publisher Publisher, opts Options) *Importer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.WritesPerSecond > 0 {
		burst := int(opts.WritesPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.WritesPerSecond), burst)
	}

	return &Importer{
		writer:      writer,
		schemas:     schemas,
		publisher:   publisher,
		limiter:     limiter,
		concurrency: opts.Concurrency,
		logger:      util.GetLogger(),
	}
}

// row is one input row; err is set when the row was rejected before writing
type row struct {
	num int
	rec models.Record
	err error
}

// Import writes rows into a collection. Row numbers in the result start at 1.
func (im *Importer) Import(ctx context.Context, collection string, records []models.Record) (*Result, error) {
	rows := make([]row, len(records))
	for i, rec := range records {
		rows[i] = row{num: i + 1, rec: rec}
	}
	return im.run(ctx, collection, "", rows)
}

func (im *Importer) run(ctx context.Context, collection, source string, rows []row) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "Importer.Import",
		attribute.String("collection", collection),
		attribute.String("source", source),
		attribute.Int("rows", len(rows)))
	defer span.End()

	schema, err := im.schemas.Collection(collection)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	errs := make([]error, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)

	for i := range rows {
		if rows[i].err != nil {
			errs[i] = rows[i].err
			continue
		}
		i := i
		g.Go(func() error {
			if err := im.limiter.Wait(gctx); err != nil {
				return err
			}
			err := im.writer.PutRecord(gctx, collection, rows[i].rec)
			if errors.Is(err, models.ErrBackendUnavailable) {
				return err
			}
			errs[i] = err
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		im.logger.Error("Import aborted",
			zap.String("collection", collection),
			zap.String("source", source),
			zap.Error(err))
		return nil, fmt.Errorf("import into %s aborted: %w", collection, err)
	}

	result := &Result{
		Collection: collection,
		Source:     source,
		Skipped:    []RowError{},
	}
	for i, err := range errs {
		if err == nil {
			result.Imported++
			continue
		}
		rowErr := RowError{
			Row:    rows[i].num,
			Key:    rows[i].rec[schema.PrimaryKey],
			Reason: err.Error(),
		}
		result.Skipped = append(result.Skipped, rowErr)
		im.logger.Warn("Skipped import row",
			zap.String("collection", collection),
			zap.Int("row", rowErr.Row),
			zap.String("key", rowErr.Key),
			zap.String("reason", rowErr.Reason))
	}

	util.ImportRowsTotal.WithLabelValues(collection, "imported").Add(float64(result.Imported))
	util.ImportRowsTotal.WithLabelValues(collection, "skipped").Add(float64(len(result.Skipped)))

	im.logger.Info("Import finished",
		zap.String("collection", collection),
		zap.String("source", source),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", len(result.Skipped)),
		zap.Duration("took", time.Since(start)))

	im.publishCompleted(ctx, result)
	return result, nil
}

func (im *Importer) publishCompleted(ctx context.Context, result *Result) {
	if im.publisher == nil {
		return
	}

	event := &models.ImportCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeImportCompleted,
			Timestamp: time.Now(),
		},
		Collection: result.Collection,
		Source:     result.Source,
		Imported:   result.Imported,
		Skipped:    len(result.Skipped),
	}
	if err := im.publisher.PublishImportCompleted(ctx, event); err != nil {
		im.logger.Error("Failed to publish ImportCompleted event", zap.Error(err))
	}
}
