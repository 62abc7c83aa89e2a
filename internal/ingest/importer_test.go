package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

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

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.ImportCompletedEvent
}

func (p *recordingPublisher) PublishImportCompleted(ctx context.Context, event *models.ImportCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newTestImporter(t *testing.T, pub Publisher) (*Importer, *store.Store) {
	t.Helper()
	s := store.NewStore(memory.New(), models.DefaultSchema())
	_, err := s.EnsureSchema(context.Background())
	require.NoError(t, err)
	return NewImporter(storeWriter{store: s}, s, pub, Options{Concurrency: 3}), s
}

func TestImport_SkipsBadRowAndContinues(t *testing.T) {
	pub := &recordingPublisher{}
	im, s := newTestImporter(t, pub)
	ctx := context.Background()

	rows := []models.Record{
		{models.AttrProductID: "P1", models.AttrPrice: "1.00"},
		{models.AttrProductID: "P2", models.AttrPrice: "2.00"},
		{models.AttrProductID: "P3", models.AttrPrice: "three"},
		{models.AttrProductID: "P4", models.AttrPrice: "4.00"},
		{models.AttrProductID: "P5", models.AttrPrice: "5.00"},
	}

	res, err := im.Import(ctx, models.CollectionProducts, rows)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Imported)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 3, res.Skipped[0].Row)
	assert.Equal(t, "P3", res.Skipped[0].Key)
	assert.Contains(t, res.Skipped[0].Reason, "coercion")

	for _, id := range []string{"P1", "P2", "P4", "P5"} {
		_, err := s.Get(ctx, models.CollectionProducts, id)
		assert.NoError(t, err, id)
	}
	_, err = s.Get(ctx, models.CollectionProducts, "P3")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.Len(t, pub.events, 1)
	assert.Equal(t, 4, pub.events[0].Imported)
	assert.Equal(t, 1, pub.events[0].Skipped)
}

func TestImport_UnknownCollection(t *testing.T) {
	im, _ := newTestImporter(t, nil)

	_, err := im.Import(context.Background(), "Invoices", []models.Record{{"id": "1"}})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

type unavailableWriter struct{}

func (unavailableWriter) PutRecord(ctx context.Context, collection string, rec models.Record) error {
	return models.Unavailable("put", errors.New("connection refused"))
}

func TestImport_AbortsWhenBackendUnavailable(t *testing.T) {
	s := store.NewStore(memory.New(), models.DefaultSchema())
	im := NewImporter(unavailableWriter{}, s, nil, Options{Concurrency: 2})

	_, err := im.Import(context.Background(), models.CollectionCustomers, []models.Record{
		{models.AttrCustomerID: "C1"},
		{models.AttrCustomerID: "C2"},
	})
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
}

func TestImportCSV(t *testing.T) {
	im, s := newTestImporter(t, nil)
	ctx := context.Background()

	data := "\ufefforder_id,order_date,product_id,customer_id,quantity,status,total_price\n" +
		"O1,2023-03-01,A,C1,2,pending,19.98\n" +
		"O2,2023-03-02,B,C1\n" +
		"O3,2023-03-03,A,C2,1,,9.99\n" +
		"O4,,A,C2,1,shipped,9.99\n"

	res, err := im.ImportCSV(ctx, models.CollectionOrders, strings.NewReader(data), "orders.csv")
	require.NoError(t, err)
	assert.Equal(t, "orders.csv", res.Source)
	assert.Equal(t, 2, res.Imported)

	var skipped []int
	for _, e := range res.Skipped {
		skipped = append(skipped, e.Row)
	}
	assert.ElementsMatch(t, []int{2, 4}, skipped)

	rec, err := s.Get(ctx, models.CollectionOrders, "O1")
	require.NoError(t, err)
	assert.Equal(t, "19.98", rec[models.AttrTotalPrice])

	rec, err = s.Get(ctx, models.CollectionOrders, "O3")
	require.NoError(t, err)
	_, hasStatus := rec[models.AttrStatus]
	assert.False(t, hasStatus, "empty cells are not stored")

	got, err := s.QueryIndex(ctx, models.IndexProduct, "A", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestImportCSV_MalformedQuoteSkipsOnlyThatRow(t *testing.T) {
	im, s := newTestImporter(t, nil)
	ctx := context.Background()

	data := "product_id,price,name\n" +
		"P1,1.00,Lamp\n" +
		"P2,2.00,Pen\n" +
		"P3,3\"0,Cup\n" +
		"P4,4.00,Mu\"g\n" +
		"P5,5.00,Desk\n"

	res, err := im.ImportCSV(ctx, models.CollectionProducts, strings.NewReader(data), "products.csv")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Imported)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 3, res.Skipped[0].Row)
	assert.Equal(t, "P3", res.Skipped[0].Key)

	for _, key := range []string{"P1", "P2", "P5"} {
		_, err := s.Get(ctx, models.CollectionProducts, key)
		assert.NoError(t, err, key)
	}

	rec, err := s.Get(ctx, models.CollectionProducts, "P4")
	require.NoError(t, err)
	assert.Equal(t, `Mu"g`, rec["name"])
}

func TestImportCSV_ReadErrorAborts(t *testing.T) {
	im, s := newTestImporter(t, nil)
	ctx := context.Background()

	r := io.MultiReader(
		strings.NewReader("customer_id,name\nC1,Ada\n"),
		iotest.ErrReader(errors.New("disk failure")),
	)

	_, err := im.ImportCSV(ctx, models.CollectionCustomers, r, "customers.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk failure")

	_, err = s.Get(ctx, models.CollectionCustomers, "C1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestImportCSV_HeaderOnly(t *testing.T) {
	im, _ := newTestImporter(t, nil)

	res, err := im.ImportCSV(context.Background(), models.CollectionCustomers,
		strings.NewReader("customer_id,name\n"), "customers.csv")
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Empty(t, res.Skipped)
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DataFileName(models.CollectionProducts)),
		[]byte("product_id,price,name\nP1,3.50,Mug\nP2,1.25,Pen\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DataFileName(models.CollectionCustomers)),
		[]byte("customer_id,name\nC1,Ada\n"), 0o644))

	im, s := newTestImporter(t, nil)
	ctx := context.Background()

	results, err := im.ImportDir(ctx, dir, []string{
		models.CollectionProducts,
		models.CollectionCustomers,
		models.CollectionOrders,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Imported)
	assert.Equal(t, 1, results[1].Imported)

	rec, err := s.Get(ctx, models.CollectionProducts, "P1")
	require.NoError(t, err)
	assert.Equal(t, "Mug", rec["name"])
}

func TestImportFile_Missing(t *testing.T) {
	im, _ := newTestImporter(t, nil)

	_, err := im.ImportFile(context.Background(), models.CollectionOrders, filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReadRecords(t *testing.T) {
	in := "\ufeffcustomer_id, name\nC1,Ada\nC2\nC3, \n"

	records, skipped, err := ReadRecords(strings.NewReader(in))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, models.Record{"customer_id": "C1", "name": "Ada"}, records[0])
	assert.Equal(t, models.Record{"customer_id": "C3"}, records[1])

	require.Len(t, skipped, 1)
	assert.Equal(t, 2, skipped[0].Row)
}
