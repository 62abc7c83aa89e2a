package service

import (
	"context"
	"time"

	"order-store/internal/models"
	"order-store/internal/store"
	"order-store/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// EventPublisher receives a change event after every successful write
type EventPublisher interface {
	PublishRecordPut(ctx context.Context, event *models.RecordPutEvent) error
}

// OrderService handles writes and point lookups on the record store
type OrderService struct {
	store     *store.Store
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service. publisher may be nil.
func NewOrderService(store *store.Store, publisher EventPublisher) *OrderService {
	return &OrderService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// PutOrder inserts or replaces an order together with its index entries
func (s *OrderService) PutOrder(ctx context.Context, order *models.Order) error {
	return s.PutRecord(ctx, models.CollectionOrders, order.ToRecord())
}

// PutRecord inserts or replaces a record in any collection
func (s *OrderService) PutRecord(ctx context.Context, collection string, rec models.Record) error {
	ctx, span := util.StartSpan(ctx, "OrderService.PutRecord",
		attribute.String("collection", collection))
	defer span.End()

	if err := s.store.Put(ctx, collection, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put failed")
		return err
	}

	schema, _ := s.store.Collection(collection)
	key := rec[schema.PrimaryKey]
	s.logger.Debug("Record written",
		zap.String("collection", collection),
		zap.String("key", key))

	if s.publisher == nil {
		return nil
	}

	event := &models.RecordPutEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRecordPut,
			Timestamp: time.Now(),
		},
		Collection: collection,
		Key:        key,
		Record:     rec.Clone(),
	}
	// the write is already committed; a lost event does not fail it
	if err := s.publisher.PublishRecordPut(ctx, event); err != nil {
		s.logger.Error("Failed to publish RecordPut event",
			zap.String("collection", collection),
			zap.String("key", key),
			zap.Error(err))
	}

	return nil
}

// GetOrder retrieves an order by order_id
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (models.Record, error) {
	return s.GetRecord(ctx, models.CollectionOrders, orderID)
}

// GetRecord retrieves a record by primary key
func (s *OrderService) GetRecord(ctx context.Context, collection, key string) (models.Record, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetRecord",
		attribute.String("collection", collection),
		attribute.String("key", key))
	defer span.End()

	rec, err := s.store.Get(ctx, collection, key)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rec, nil
}
