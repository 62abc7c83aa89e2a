package worker

import (
	"context"
	"errors"
	"testing"

	"order-store/internal/backend/memory"
	"order-store/internal/models"
	"order-store/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeWriter struct {
	store *store.Store
}

func (w storeWriter) PutRecord(ctx context.Context, collection string, rec models.Record) error {
	return w.store.Put(ctx, collection, rec)
}

type failingWriter struct{ err error }

func (f failingWriter) PutRecord(context.Context, string, models.Record) error { return f.err }

func TestHandleImportRow(t *testing.T) {
	s := store.NewStore(memory.New(), models.DefaultSchema())
	ctx := context.Background()
	_, err := s.EnsureSchema(ctx)
	require.NoError(t, err)

	w := NewIngestWorker(nil, storeWriter{store: s})

	err = w.HandleImportRow(ctx, &models.ImportRowEvent{
		Collection: models.CollectionOrders,
		Row: models.Record{
			models.AttrOrderID:    "O1",
			models.AttrOrderDate:  "2024-01-01",
			models.AttrProductID:  "P1",
			models.AttrCustomerID: "C1",
		},
	})
	require.NoError(t, err)

	got, err := s.QueryIndex(ctx, models.IndexProduct, "P1", "")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// rejected rows are dropped, not retried
	err = w.HandleImportRow(ctx, &models.ImportRowEvent{
		Collection: models.CollectionProducts,
		Row:        models.Record{models.AttrProductID: "P1", models.AttrPrice: "free"},
	})
	assert.NoError(t, err)
}

func TestHandleImportRow_BackendUnavailableIsRetried(t *testing.T) {
	unavailable := models.Unavailable("put", errors.New("timeout"))
	w := NewIngestWorker(nil, failingWriter{err: unavailable})

	err := w.HandleImportRow(context.Background(), &models.ImportRowEvent{
		Collection: models.CollectionCustomers,
		Row:        models.Record{models.AttrCustomerID: "C1"},
	})
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
}
