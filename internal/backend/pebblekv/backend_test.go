package pebblekv

import (
	"context"
	"testing"

	"order-store/internal/backend/backendtest"
	"order-store/internal/models"
	"order-store/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) store.Backend {
		b, err := Open(t.TempDir(), Options{})
		require.NoError(t, err)
		return b
	})
}

func TestRecordsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := Open(dir, Options{Sync: true})
	require.NoError(t, err)
	s := store.NewStore(b, models.DefaultSchema())

	statuses, err := s.EnsureSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SchemaCreated, statuses[models.CollectionOrders])

	require.NoError(t, s.Put(ctx, models.CollectionOrders, models.Record{
		models.AttrOrderID:    "O1",
		models.AttrOrderDate:  "2024-01-05",
		models.AttrProductID:  "P1",
		models.AttrCustomerID: "C1",
	}))
	require.NoError(t, s.Close())

	b, err = Open(dir, Options{})
	require.NoError(t, err)
	s = store.NewStore(b, models.DefaultSchema())
	defer s.Close()

	statuses, err = s.EnsureSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SchemaExists, statuses[models.CollectionOrders])

	got, err := s.QueryIndex(ctx, models.IndexProduct, "P1", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "O1", got[0][models.AttrOrderID])
}

func TestPutRejectsNulInKey(t *testing.T) {
	b, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	defer b.Close()

	schema := models.DefaultSchema()[1]
	_, err = b.EnsureCollection(context.Background(), schema)
	require.NoError(t, err)

	err = b.Put(context.Background(), models.Write{
		Collection: schema,
		Key:        "C\x001",
		Record:     models.Record{models.AttrCustomerID: "C\x001"},
	})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
