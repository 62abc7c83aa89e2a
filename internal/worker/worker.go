package worker

import (
	"context"
	"errors"

	"order-store/internal/broker"
	"order-store/internal/models"
	"order-store/internal/util"

	"go.uber.org/zap"
)

// RecordWriter writes one record through the store's write path
type RecordWriter interface {
	PutRecord(ctx context.Context, collection string, rec models.Record) error
}

// IngestWorker writes rows queued on the ingest topic
type IngestWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	writer       RecordWriter
	logger       *zap.Logger
}

// NewIngestWorker creates a new ingest worker
func NewIngestWorker(consumer *broker.Consumer, writer RecordWriter) *IngestWorker {
	w := &IngestWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		writer:       writer,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnImportRow(w.HandleImportRow)
	return w
}

// Start starts the worker
func (w *IngestWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting ingest worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *IngestWorker) Stop() error {
	w.logger.Info("Stopping ingest worker")
	return w.consumer.Close()
}

// HandleImportRow writes one queued row. Rows the store rejects are dropped
// so they are committed. An unavailable backend is returned, and the consumer
// retries the same message until the write succeeds.
func (w *IngestWorker) HandleImportRow(ctx context.Context, event *models.ImportRowEvent) error {
	err := w.writer.PutRecord(ctx, event.Collection, event.Row)
	switch {
	case err == nil:
		util.ImportRowsTotal.WithLabelValues(event.Collection, "imported").Inc()
		return nil
	case errors.Is(err, models.ErrBackendUnavailable):
		return err
	default:
		util.ImportRowsTotal.WithLabelValues(event.Collection, "skipped").Inc()
		w.logger.Warn("Dropped queued import row",
			zap.String("event_id", event.EventID),
			zap.String("collection", event.Collection),
			zap.Error(err))
		return nil
	}
}
