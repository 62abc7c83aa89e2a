package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"order-store/internal/backend/keyspace"
	"order-store/internal/models"
	"order-store/internal/store"
	"order-store/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// QueryService answers the read paths over orders and products:
// index lookups, index lookups narrowed client-side, and full scans.
type QueryService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewQueryService creates a new query service
func NewQueryService(store *store.Store) *QueryService {
	return &QueryService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// GetOrdersByProduct returns every order of a product through ProductIndex
func (s *QueryService) GetOrdersByProduct(ctx context.Context, productID string) ([]models.Record, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.GetOrdersByProduct",
		attribute.String("product_id", productID))
	defer span.End()

	if productID == "" {
		return nil, s.fail(span, "by_product", missing(models.AttrProductID))
	}

	records, err := s.store.QueryIndex(ctx, models.IndexProduct, productID, "")
	return s.done(span, "by_product", records, err)
}

// GetOrdersByOrderIDAndDate returns the order matching both values exactly through OrderDateIndex
func (s *QueryService) GetOrdersByOrderIDAndDate(ctx context.Context, orderID, orderDate string) ([]models.Record, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.GetOrdersByOrderIDAndDate",
		attribute.String("order_id", orderID),
		attribute.String("order_date", orderDate))
	defer span.End()

	if orderID == "" {
		return nil, s.fail(span, "by_order_date", missing(models.AttrOrderID))
	}
	if orderDate == "" {
		return nil, s.fail(span, "by_order_date", missing(models.AttrOrderDate))
	}

	records, err := s.store.QueryIndex(ctx, models.IndexOrderDate, orderID, orderDate)
	return s.done(span, "by_order_date", records, err)
}

// GetOrdersByProductAndDateRange returns the orders of a product dated within
// [from, to], both bounds inclusive. ProductIndex has no sort key, so the range
// is applied to the projected order_date after the index lookup.
func (s *QueryService) GetOrdersByProductAndDateRange(ctx context.Context, productID, from, to string) ([]models.Record, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.GetOrdersByProductAndDateRange",
		attribute.String("product_id", productID),
		attribute.String("date_from", from),
		attribute.String("date_to", to))
	defer span.End()

	const query = "by_product_date_range"

	if productID == "" {
		return nil, s.fail(span, query, missing(models.AttrProductID))
	}
	for _, bound := range [][2]string{{"date_from", from}, {"date_to", to}} {
		if _, err := time.Parse(dateLayout, bound[1]); err != nil {
			return nil, s.fail(span, query,
				fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", models.ErrInvalidArgument, bound[0], bound[1]))
		}
	}

	records, err := s.store.QueryIndex(ctx, models.IndexProduct, productID, "")
	if err != nil {
		return nil, s.fail(span, query, err)
	}

	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		d := rec[models.AttrOrderDate]
		if d >= from && d <= to {
			out = append(out, rec)
		}
	}
	if err := s.sortNatural(models.CollectionOrders, out); err != nil {
		return nil, s.fail(span, query, err)
	}

	return s.done(span, query, out, nil)
}

// SortProductsByPrice returns every product in ascending numeric price order.
// Equal prices keep the order the scan returned them in.
func (s *QueryService) SortProductsByPrice(ctx context.Context) ([]models.Record, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.SortProductsByPrice")
	defer span.End()

	const query = "products_by_price"

	type priced struct {
		rec   models.Record
		price decimal.Decimal
	}
	var products []priced

	err := s.store.Scan(ctx, models.CollectionProducts, func(rec models.Record) error {
		raw, ok := rec[models.AttrPrice]
		if !ok {
			return fmt.Errorf("%w: product %s has no price", models.ErrCoercion, rec[models.AttrProductID])
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%w: product %s price %q: %v", models.ErrCoercion, rec[models.AttrProductID], raw, err)
		}
		products = append(products, priced{rec: rec, price: price})
		return nil
	})
	if err != nil {
		return nil, s.fail(span, query, err)
	}

	sort.SliceStable(products, func(i, j int) bool {
		return products[i].price.LessThan(products[j].price)
	})

	out := make([]models.Record, 0, len(products))
	for _, p := range products {
		out = append(out, p.rec)
	}
	return s.done(span, query, out, nil)
}

// FilterOrdersByStatusAndCustomer scans orders for an exact match on both status and customer_id
func (s *QueryService) FilterOrdersByStatusAndCustomer(ctx context.Context, status, customerID string) ([]models.Record, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.FilterOrdersByStatusAndCustomer",
		attribute.String("status", status),
		attribute.String("customer_id", customerID))
	defer span.End()

	const query = "by_status_customer"

	if status == "" {
		return nil, s.fail(span, query, missing(models.AttrStatus))
	}
	if customerID == "" {
		return nil, s.fail(span, query, missing(models.AttrCustomerID))
	}

	out, err := s.scanOrders(ctx, func(rec models.Record) bool {
		return rec[models.AttrStatus] == status && rec[models.AttrCustomerID] == customerID
	})
	if err != nil {
		return nil, s.fail(span, query, err)
	}
	return s.done(span, query, out, nil)
}

// GetOrdersForCustomer scans orders for a customer, ordered by order_date then order_id
func (s *QueryService) GetOrdersForCustomer(ctx context.Context, customerID string) ([]models.Record, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.GetOrdersForCustomer",
		attribute.String("customer_id", customerID))
	defer span.End()

	const query = "for_customer"

	if customerID == "" {
		return nil, s.fail(span, query, missing(models.AttrCustomerID))
	}

	out, err := s.scanOrders(ctx, func(rec models.Record) bool {
		return rec[models.AttrCustomerID] == customerID
	})
	if err != nil {
		return nil, s.fail(span, query, err)
	}
	return s.done(span, query, out, nil)
}

// QueryIndex runs an equality query against any declared index. keys must
// hold the partition attribute and may hold the sort attribute.
func (s *QueryService) QueryIndex(ctx context.Context, indexName string, keys map[string]string) ([]models.Record, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.QueryIndex",
		attribute.String("index", indexName))
	defer span.End()

	const query = "index"

	_, idx, err := s.store.Index(indexName)
	if err != nil {
		return nil, s.fail(span, query, err)
	}

	for attr := range keys {
		if attr != idx.PartitionKey && attr != idx.SortKey {
			return nil, s.fail(span, query,
				fmt.Errorf("%w: %q is not a key of %s", models.ErrInvalidArgument, attr, indexName))
		}
	}
	partition := keys[idx.PartitionKey]
	if partition == "" {
		return nil, s.fail(span, query, missing(idx.PartitionKey))
	}

	var sortValue string
	if idx.SortKey != "" {
		sortValue = keys[idx.SortKey]
	}

	records, err := s.store.QueryIndex(ctx, indexName, partition, sortValue)
	return s.done(span, query, records, err)
}

// scanOrders collects matching orders in natural order
func (s *QueryService) scanOrders(ctx context.Context, match func(models.Record) bool) ([]models.Record, error) {
	out := []models.Record{}
	err := s.store.Scan(ctx, models.CollectionOrders, func(rec models.Record) error {
		if match(rec) {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.sortNatural(models.CollectionOrders, out); err != nil {
		return nil, err
	}
	return out, nil
}

// sortNatural orders records by the collection's natural order, then by primary key
func (s *QueryService) sortNatural(collection string, records []models.Record) error {
	schema, err := s.store.Collection(collection)
	if err != nil {
		return err
	}

	attrs := make([]string, 0, len(schema.NaturalOrder)+1)
	attrs = append(attrs, schema.NaturalOrder...)
	attrs = append(attrs, schema.PrimaryKey)
	keyspace.SortRecords(records, attrs...)
	return nil
}

func (s *QueryService) done(span trace.Span, query string, records []models.Record, err error) ([]models.Record, error) {
	if err != nil {
		return nil, s.fail(span, query, err)
	}
	if records == nil {
		records = []models.Record{}
	}

	util.QueriesTotal.WithLabelValues(query, "ok").Inc()
	util.QueryResultSize.WithLabelValues(query).Observe(float64(len(records)))
	span.SetAttributes(attribute.Int("result_size", len(records)))
	return records, nil
}

func (s *QueryService) fail(span trace.Span, query string, err error) error {
	util.QueriesTotal.WithLabelValues(query, outcome(err)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, query+" failed")

	if errors.Is(err, models.ErrBackendUnavailable) {
		s.logger.Error("Query failed", zap.String("query", query), zap.Error(err))
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidIndex):
		return "invalid_index"
	case errors.Is(err, models.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, models.ErrCoercion):
		return "coercion"
	case errors.Is(err, models.ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "error"
	}
}

func missing(attr string) error {
	return fmt.Errorf("%w: %s is required", models.ErrInvalidArgument, attr)
}
