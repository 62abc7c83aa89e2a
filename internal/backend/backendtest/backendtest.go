// Package backendtest holds the behaviour every storage backend must share.
// Each backend package runs it against its own implementation.
package backendtest

import (
	"context"
	"errors"
	"testing"

	"order-store/internal/models"
	"order-store/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a backend ready for use. The backend is closed by the caller.
type Factory func(t *testing.T) store.Backend

// Run exercises a backend through the record store.
// Keys carry a per-run suffix so shared databases can be reused between runs.
func Run(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s *store.Store, suffix string)
	}{
		{"EnsureSchemaIsIdempotent", testEnsureSchemaIdempotent},
		{"PutGetRoundTrip", testRoundTrip},
		{"GetMissingIsNotFound", testNotFound},
		{"UpsertReplacesIndexEntries", testUpsertReplacesEntries},
		{"ProductIndexSelectivity", testProductIndexSelectivity},
		{"OrderDateIndexExactMatch", testOrderDateExactMatch},
		{"RejectedWriteLeavesNothing", testRejectedWrite},
		{"ScanVisitsEveryRecord", testScan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			s := store.NewStore(b, models.DefaultSchema())
			t.Cleanup(func() { _ = s.Close() })

			_, err := s.EnsureSchema(context.Background())
			require.NoError(t, err)

			tt.fn(t, s, "-"+uuid.NewString()[:8])
		})
	}
}

func order(id, date, product, customer, suffix string) models.Record {
	return models.Record{
		models.AttrOrderID:    id + suffix,
		models.AttrOrderDate:  date,
		models.AttrProductID:  product + suffix,
		models.AttrCustomerID: customer + suffix,
		models.AttrQuantity:   "1",
		models.AttrStatus:     models.OrderStatusPending,
		models.AttrTotalPrice: "10.00",
	}
}

func keys(records []models.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r[models.AttrOrderID])
	}
	return out
}

func testEnsureSchemaIdempotent(t *testing.T, s *store.Store, _ string) {
	statuses, err := s.EnsureSchema(context.Background())
	require.NoError(t, err)

	assert.Len(t, statuses, 3)
	for name, status := range statuses {
		assert.Equal(t, models.SchemaExists, status, name)
	}
}

func testRoundTrip(t *testing.T, s *store.Store, suffix string) {
	ctx := context.Background()

	product := models.Record{
		models.AttrProductID: "P1" + suffix,
		models.AttrPrice:     "19.99",
		"name":               "Widget",
	}
	require.NoError(t, s.Put(ctx, models.CollectionProducts, product))

	got, err := s.Get(ctx, models.CollectionProducts, "P1"+suffix)
	require.NoError(t, err)
	assert.Equal(t, product, got)

	o := order("O1", "2024-01-05", "P1", "C1", suffix)
	require.NoError(t, s.Put(ctx, models.CollectionOrders, o))

	got, err = s.Get(ctx, models.CollectionOrders, "O1"+suffix)
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

func testNotFound(t *testing.T, s *store.Store, suffix string) {
	_, err := s.Get(context.Background(), models.CollectionCustomers, "missing"+suffix)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func testUpsertReplacesEntries(t *testing.T, s *store.Store, suffix string) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, models.CollectionOrders, order("O1", "2024-01-05", "P1", "C1", suffix)))
	require.NoError(t, s.Put(ctx, models.CollectionOrders, order("O1", "2024-02-01", "P2", "C1", suffix)))

	got, err := s.QueryIndex(ctx, models.IndexProduct, "P1"+suffix, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.QueryIndex(ctx, models.IndexProduct, "P2"+suffix, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1" + suffix}, keys(got))
	assert.Equal(t, "2024-02-01", got[0][models.AttrOrderDate])

	got, err = s.QueryIndex(ctx, models.IndexOrderDate, "O1"+suffix, "2024-01-05")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.QueryIndex(ctx, models.IndexOrderDate, "O1"+suffix, "2024-02-01")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testProductIndexSelectivity(t *testing.T, s *store.Store, suffix string) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, models.CollectionOrders, order("O2", "2024-01-06", "P1", "C1", suffix)))
	require.NoError(t, s.Put(ctx, models.CollectionOrders, order("O1", "2024-01-05", "P1", "C2", suffix)))
	require.NoError(t, s.Put(ctx, models.CollectionOrders, order("O3", "2024-01-07", "P2", "C1", suffix)))

	got, err := s.QueryIndex(ctx, models.IndexProduct, "P1"+suffix, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1" + suffix, "O2" + suffix}, keys(got))
	for _, rec := range got {
		assert.Equal(t, "10.00", rec[models.AttrTotalPrice], "projection carries every attribute")
	}

	got, err = s.QueryIndex(ctx, models.IndexProduct, "P9"+suffix, "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func testOrderDateExactMatch(t *testing.T, s *store.Store, suffix string) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, models.CollectionOrders, order("O1", "2024-01-05", "P1", "C1", suffix)))

	got, err := s.QueryIndex(ctx, models.IndexOrderDate, "O1"+suffix, "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1" + suffix}, keys(got))

	got, err = s.QueryIndex(ctx, models.IndexOrderDate, "O1"+suffix, "2024-01-06")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.QueryIndex(ctx, models.IndexOrderDate, "O1"+suffix, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testRejectedWrite(t *testing.T, s *store.Store, suffix string) {
	ctx := context.Background()

	bad := order("O1", "2024-01-05", "P1", "C1", suffix)
	bad[models.AttrQuantity] = "two"
	err := s.Put(ctx, models.CollectionOrders, bad)
	assert.True(t, errors.Is(err, models.ErrCoercion))

	noProduct := order("O2", "2024-01-05", "P1", "C1", suffix)
	delete(noProduct, models.AttrProductID)
	err = s.Put(ctx, models.CollectionOrders, noProduct)
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))

	for _, id := range []string{"O1", "O2"} {
		_, err := s.Get(ctx, models.CollectionOrders, id+suffix)
		assert.True(t, errors.Is(err, models.ErrNotFound), id)
	}

	got, err := s.QueryIndex(ctx, models.IndexProduct, "P1"+suffix, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testScan(t *testing.T, s *store.Store, suffix string) {
	ctx := context.Background()

	want := map[string]bool{}
	for _, id := range []string{"C1", "C2", "C3", "C4", "C5"} {
		require.NoError(t, s.Put(ctx, models.CollectionCustomers, models.Record{
			models.AttrCustomerID: id + suffix,
			"name":                "customer " + id,
		}))
		want[id+suffix] = true
	}

	seen := map[string]bool{}
	err := s.Scan(ctx, models.CollectionCustomers, func(rec models.Record) error {
		if id := rec[models.AttrCustomerID]; want[id] {
			seen[id] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, seen)

	stop := errors.New("stop")
	calls := 0
	err = s.Scan(ctx, models.CollectionCustomers, func(models.Record) error {
		calls++
		return stop
	})
	assert.True(t, errors.Is(err, stop))
	assert.Equal(t, 1, calls)
}
