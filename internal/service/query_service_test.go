package service

import (
	"context"
	"testing"

	"order-store/internal/backend/memory"
	"order-store/internal/models"
	"order-store/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.NewStore(memory.New(), models.DefaultSchema())
	_, err := s.EnsureSchema(context.Background())
	require.NoError(t, err)
	return s
}

func putOrder(t *testing.T, s *store.Store, id, product, customer, date, status string) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), models.CollectionOrders, models.Record{
		models.AttrOrderID:    id,
		models.AttrProductID:  product,
		models.AttrCustomerID: customer,
		models.AttrOrderDate:  date,
		models.AttrStatus:     status,
		models.AttrQuantity:   "1",
		models.AttrTotalPrice: "9.99",
	}))
}

func ids(records []models.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r[models.AttrOrderID])
	}
	return out
}

func TestGetOrdersByProductAndDateRange_Scenario(t *testing.T) {
	s := newTestStore(t)
	putOrder(t, s, "O1", "A", "C1", "2023-03-01", models.OrderStatusPending)
	putOrder(t, s, "O2", "B", "C1", "2023-03-01", models.OrderStatusPending)
	putOrder(t, s, "O3", "A", "C1", "2024-01-01", models.OrderStatusPending)

	qs := NewQueryService(s)
	got, err := qs.GetOrdersByProductAndDateRange(context.Background(), "A", "2023-01-01", "2023-12-31")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1"}, ids(got))
}

func TestGetOrdersByProductAndDateRange_InclusiveBounds(t *testing.T) {
	s := newTestStore(t)
	putOrder(t, s, "before", "A", "C1", "2023-12-31", models.OrderStatusPending)
	putOrder(t, s, "first", "A", "C1", "2024-01-01", models.OrderStatusPending)
	putOrder(t, s, "middle", "A", "C1", "2024-01-15", models.OrderStatusPending)
	putOrder(t, s, "last", "A", "C1", "2024-01-31", models.OrderStatusPending)
	putOrder(t, s, "after", "A", "C1", "2024-02-01", models.OrderStatusPending)

	qs := NewQueryService(s)
	got, err := qs.GetOrdersByProductAndDateRange(context.Background(), "A", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "middle", "last"}, ids(got))
}

func TestGetOrdersByProductAndDateRange_Arguments(t *testing.T) {
	qs := NewQueryService(newTestStore(t))
	ctx := context.Background()

	tests := []struct {
		name              string
		product, from, to string
		wantErr           error
	}{
		{"missing product", "", "2024-01-01", "2024-01-31", models.ErrInvalidArgument},
		{"bad from", "A", "2024/01/01", "2024-01-31", models.ErrInvalidArgument},
		{"bad to", "A", "2024-01-01", "", models.ErrInvalidArgument},
		{"inverted range", "A", "2024-02-01", "2024-01-01", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := qs.GetOrdersByProductAndDateRange(ctx, tt.product, tt.from, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestGetOrdersByProduct_Selectivity(t *testing.T) {
	s := newTestStore(t)
	putOrder(t, s, "O1", "A", "C1", "2024-01-01", models.OrderStatusPending)
	putOrder(t, s, "O2", "B", "C1", "2024-01-01", models.OrderStatusPending)
	putOrder(t, s, "O3", "A", "C2", "2024-01-02", models.OrderStatusShipped)

	qs := NewQueryService(s)
	got, err := qs.GetOrdersByProduct(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1", "O3"}, ids(got))

	got, err = qs.GetOrdersByProduct(context.Background(), "Z")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = qs.GetOrdersByProduct(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestGetOrdersByOrderIDAndDate_ExactMatch(t *testing.T) {
	s := newTestStore(t)
	putOrder(t, s, "O1", "A", "C1", "2024-01-01", models.OrderStatusPending)

	qs := NewQueryService(s)
	ctx := context.Background()

	got, err := qs.GetOrdersByOrderIDAndDate(ctx, "O1", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1"}, ids(got))

	got, err = qs.GetOrdersByOrderIDAndDate(ctx, "O1", "2024-01")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = qs.GetOrdersByOrderIDAndDate(ctx, "O1", "")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestSortProductsByPrice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prices := map[string]string{
		"P1": "10.50",
		"P2": "9.99",
		"P3": "100",
		"P4": "9.99",
		"P5": "0.5",
	}
	for id, price := range prices {
		require.NoError(t, s.Put(ctx, models.CollectionProducts, models.Record{
			models.AttrProductID: id,
			models.AttrPrice:     price,
		}))
	}

	got, err := NewQueryService(s).SortProductsByPrice(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(prices))

	var order []string
	for i, rec := range got {
		order = append(order, rec[models.AttrProductID])
		if i == 0 {
			continue
		}
		prev := decimal.RequireFromString(got[i-1][models.AttrPrice])
		cur := decimal.RequireFromString(rec[models.AttrPrice])
		assert.True(t, prev.LessThanOrEqual(cur), "prices must be non-decreasing")
	}
	assert.Equal(t, []string{"P5", "P2", "P4", "P1", "P3"}, order)
}

// reverseScan returns records in descending primary key order
type reverseScan struct {
	*memory.Backend
}

func (b reverseScan) Scan(ctx context.Context, collection string, fn func(models.Record) error) error {
	var all []models.Record
	if err := b.Backend.Scan(ctx, collection, func(rec models.Record) error {
		all = append(all, rec)
		return nil
	}); err != nil {
		return err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if err := fn(all[i]); err != nil {
			return err
		}
	}
	return nil
}

func TestSortProductsByPrice_TiesKeepScanOrder(t *testing.T) {
	s := store.NewStore(reverseScan{memory.New()}, models.DefaultSchema())
	ctx := context.Background()
	_, err := s.EnsureSchema(ctx)
	require.NoError(t, err)

	for id, price := range map[string]string{"P1": "5", "P2": "1.0", "P3": "5.00", "P4": "1"} {
		require.NoError(t, s.Put(ctx, models.CollectionProducts, models.Record{
			models.AttrProductID: id,
			models.AttrPrice:     price,
		}))
	}

	got, err := NewQueryService(s).SortProductsByPrice(ctx)
	require.NoError(t, err)

	var order []string
	for _, rec := range got {
		order = append(order, rec[models.AttrProductID])
	}
	assert.Equal(t, []string{"P4", "P2", "P3", "P1"}, order)
}

func TestSortProductsByPrice_EmptyCollection(t *testing.T) {
	got, err := NewQueryService(newTestStore(t)).SortProductsByPrice(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSortProductsByPrice_MissingPriceIsCoercionError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put(context.Background(), models.CollectionProducts, models.Record{
		models.AttrProductID: "P1",
		"name":               "no price",
	}))

	_, err := NewQueryService(s).SortProductsByPrice(context.Background())
	assert.ErrorIs(t, err, models.ErrCoercion)
}

func TestFilterOrdersByStatusAndCustomer(t *testing.T) {
	s := newTestStore(t)
	putOrder(t, s, "O1", "A", "C1", "2024-01-02", models.OrderStatusShipped)
	putOrder(t, s, "O2", "A", "C1", "2024-01-01", models.OrderStatusShipped)
	putOrder(t, s, "O3", "A", "C1", "2024-01-03", models.OrderStatusPending)
	putOrder(t, s, "O4", "A", "C2", "2024-01-01", models.OrderStatusShipped)

	qs := NewQueryService(s)
	ctx := context.Background()

	got, err := qs.FilterOrdersByStatusAndCustomer(ctx, models.OrderStatusShipped, "C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"O2", "O1"}, ids(got))
	for _, rec := range got {
		assert.Equal(t, models.OrderStatusShipped, rec[models.AttrStatus])
		assert.Equal(t, "C1", rec[models.AttrCustomerID])
	}

	got, err = qs.FilterOrdersByStatusAndCustomer(ctx, models.OrderStatusDelivered, "C1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = qs.FilterOrdersByStatusAndCustomer(ctx, "", "C1")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = qs.FilterOrdersByStatusAndCustomer(ctx, models.OrderStatusShipped, "")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestGetOrdersForCustomer_NaturalOrder(t *testing.T) {
	s := newTestStore(t)
	putOrder(t, s, "O3", "A", "C1", "2024-03-01", models.OrderStatusPending)
	putOrder(t, s, "O2", "B", "C1", "2024-01-01", models.OrderStatusPending)
	putOrder(t, s, "O1", "A", "C1", "2024-01-01", models.OrderStatusPending)
	putOrder(t, s, "O4", "A", "C2", "2023-01-01", models.OrderStatusPending)

	got, err := NewQueryService(s).GetOrdersForCustomer(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1", "O2", "O3"}, ids(got))
}

func TestGetOrdersForCustomer_FollowsSchemaNaturalOrder(t *testing.T) {
	schemas := models.DefaultSchema()
	schemas[2].NaturalOrder = []string{models.AttrStatus}

	s := store.NewStore(memory.New(), schemas)
	_, err := s.EnsureSchema(context.Background())
	require.NoError(t, err)

	putOrder(t, s, "O1", "A", "C1", "2024-01-01", models.OrderStatusShipped)
	putOrder(t, s, "O2", "A", "C1", "2024-02-01", models.OrderStatusDelivered)
	putOrder(t, s, "O3", "A", "C1", "2024-03-01", models.OrderStatusPending)

	got, err := NewQueryService(s).GetOrdersForCustomer(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"O2", "O3", "O1"}, ids(got))
}

func TestQueryIndex(t *testing.T) {
	s := newTestStore(t)
	putOrder(t, s, "O1", "A", "C1", "2024-01-01", models.OrderStatusPending)

	qs := NewQueryService(s)
	ctx := context.Background()

	got, err := qs.QueryIndex(ctx, models.IndexProduct, map[string]string{models.AttrProductID: "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"O1"}, ids(got))

	got, err = qs.QueryIndex(ctx, models.IndexOrderDate, map[string]string{
		models.AttrOrderID:   "O1",
		models.AttrOrderDate: "2024-01-01",
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = qs.QueryIndex(ctx, models.IndexProduct, map[string]string{models.AttrProductID: "nope"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = qs.QueryIndex(ctx, "CustomerIndex", map[string]string{models.AttrCustomerID: "C1"})
	assert.ErrorIs(t, err, models.ErrInvalidIndex)

	_, err = qs.QueryIndex(ctx, models.IndexProduct, map[string]string{})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = qs.QueryIndex(ctx, models.IndexProduct, map[string]string{
		models.AttrProductID: "A",
		models.AttrStatus:    "pending",
	})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
