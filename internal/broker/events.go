package broker

import (
	"context"
	"encoding/json"
	"time"

	"order-store/internal/models"
	"order-store/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing record and import events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// recordKey keeps every event of one record on one partition
func recordKey(collection, key string) string {
	return collection + "/" + key
}

// PublishRecordPut publishes RecordPut event
func (ep *EventPublisher) PublishRecordPut(ctx context.Context, event *models.RecordPutEvent) error {
	return ep.producer.PublishEvent(ctx, recordKey(event.Collection, event.Key), event)
}

// PublishImportCompleted publishes ImportCompleted event
func (ep *EventPublisher) PublishImportCompleted(ctx context.Context, event *models.ImportCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, "import/"+event.Collection, event)
}

// PublishImportRows publishes one ImportRow event per row for the ingest worker
func (ep *EventPublisher) PublishImportRows(ctx context.Context, collection, primaryKey string, rows []models.Record) error {
	events := make([]KeyedEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, KeyedEvent{
			Key: recordKey(collection, row[primaryKey]),
			Event: &models.ImportRowEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeImportRow,
					Timestamp: time.Now(),
				},
				Collection: collection,
				Row:        row,
			},
		})
	}
	return ep.producer.PublishEvents(ctx, events...)
}

// EventHandler handles incoming events
type EventHandler struct {
	onImportRow func(context.Context, *models.ImportRowEvent) error
	logger      *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnImportRow registers a handler for ImportRow events
func (eh *EventHandler) OnImportRow(handler func(context.Context, *models.ImportRowEvent) error) {
	eh.onImportRow = handler
}

// HandleMessage routes messages to appropriate handlers. Messages that cannot
// be decoded are logged and skipped; only handler errors are returned.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Error("Skipping undecodable message",
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeImportRow:
		if eh.onImportRow != nil {
			var event models.ImportRowEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Error("Skipping undecodable ImportRow event",
					zap.String("id", baseEvent.EventID),
					zap.Error(err))
				return nil
			}
			return eh.onImportRow(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
